package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ralt/qpkgrepo/internal/models"
	"github.com/sirupsen/logrus"
)

// FileSystemScanner implements Scanner interface for filesystem scanning
type FileSystemScanner struct{}

// NewFileSystemScanner creates a new filesystem scanner
func NewFileSystemScanner() *FileSystemScanner {
	return &FileSystemScanner{}
}

// List reads the top level of dir; subdirectories are not descended into.
// A missing or unreadable directory is reported as ErrSourceUnavailable.
func (s *FileSystemScanner) List(ctx context.Context, dir string) (*Listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, models.NewError(models.ErrSourceUnavailable, dir, fmt.Errorf("failed to list directory: %w", err))
	}

	listing := &Listing{}
	for _, entry := range entries {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Skip directories
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if IsPackageFile(path) {
			logrus.Debugf("Found package: %s", path)
			listing.Packages = append(listing.Packages, path)
		} else {
			listing.Others = append(listing.Others, path)
		}
	}

	logrus.Debugf("Found %d packages in %s", len(listing.Packages), dir)
	return listing, nil
}
