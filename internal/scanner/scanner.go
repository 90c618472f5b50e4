package scanner

import "context"

// Listing is the current content of a source directory. Both slices hold
// full paths in lexical order.
type Listing struct {
	// Packages are the package files found in the directory
	Packages []string

	// Others are the remaining files: signatures, icons and .conf files
	Others []string
}

// Scanner lists the files of a package source
type Scanner interface {
	// List returns the files directly under dir
	List(ctx context.Context, dir string) (*Listing, error)
}
