package models

import "time"

// Package is the normalized, immutable descriptor built once per package file.
// Field names in JSON tags are the persisted cache format.
type Package struct {
	Signature   string `json:"signature"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Author      string `json:"author"`
	Summary     string `json:"summary"`

	LiteralVersion string       `json:"literalVersion"`
	Version        Version      `json:"version"`
	Architecture   Architecture `json:"architecture"`

	Category      string `json:"category"`
	Type          string `json:"type"`
	Languages     string `json:"languages"`
	TutorialLink  string `json:"tutorialLink"`
	ForumLink     string `json:"forumLink"`
	ChangelogLink string `json:"changelogLink"`
	BannerImg     string `json:"bannerImg"`
	SnapshotURI   string `json:"snapshotUri,omitempty"`

	// Icon paths are relative to the storage root, empty when the icon was missing at build time
	Icon80Path  string `json:"icon80Path"`
	Icon100Path string `json:"icon100Path"`

	PublishedDate time.Time `json:"publishedDate"`

	// LocalPath is the cache key
	LocalPath string `json:"localPath"`
	// LocationPath is relative to the storage root and uses forward slashes
	LocationPath string `json:"location"`

	FirmwareMinimumVersion string `json:"firmwareMinimumVersion"`
}

// Architectures returns the set of architectures the package is published for
func (p *Package) Architectures() []Architecture {
	return p.Architecture.Expand()
}

// Supports reports whether the package is published for arch
func (p *Package) Supports(arch Architecture) bool {
	for _, a := range p.Architectures() {
		if a == arch {
			return true
		}
	}
	return false
}
