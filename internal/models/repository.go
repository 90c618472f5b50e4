package models

import "net/url"

// RepositoryConfig contains the settings shared by every source of a repository
type RepositoryConfig struct {
	// StorageRoot is the directory published package paths are relative to
	StorageRoot string

	// WebsiteRoot is the public base URI download locations are resolved against
	WebsiteRoot *url.URL

	// CacheDir holds one cache artifact per source; empty disables persistence
	CacheDir string

	// DefaultPlatforms is used when a request names no platform model
	DefaultPlatforms []string
}

// SourceDefaults are per-source fallbacks for optional descriptor fields
// missing from a package's auxiliary configuration file
type SourceDefaults struct {
	Category               string
	Type                   string
	Languages              string
	FirmwareMinimumVersion string
}
