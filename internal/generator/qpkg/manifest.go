package qpkg

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ralt/qpkgrepo/internal/models"
)

// Date layouts of the manifest
const (
	CacheCheckLayout    = "200601021504"
	PublishedDateLayout = "2006/01/02"
)

// XML structures for the manifest

// Manifest is the root of the published feed
type Manifest struct {
	XMLName    xml.Name `xml:"plugins"`
	CacheCheck string   `xml:"cachechk"`
	Items      []Item   `xml:"item"`
}

// Item describes one published package
type Item struct {
	Name          cdata      `xml:"name"`
	InternalName  string     `xml:"internalName"`
	Description   cdata      `xml:"description"`
	Version       string     `xml:"version"`
	Maintainer    cdata      `xml:"maintainer"`
	Developer     cdata      `xml:"developer"`
	Platforms     []Platform `xml:"platform"`
	Category      string     `xml:"category"`
	Type          string     `xml:"type"`
	ChangeLog     cdata      `xml:"changeLog"`
	PublishedDate string     `xml:"publishedDate"`
	Language      string     `xml:"language"`
	Icon100       string     `xml:"icon100,omitempty"`
	Icon80        string     `xml:"icon80,omitempty"`
	Snapshot      *cdata     `xml:"snapshot,omitempty"`
	ForumLink     *cdata     `xml:"forumLink,omitempty"`
	BannerImg     *cdata     `xml:"bannerImg,omitempty"`
	TutorialLink  *cdata     `xml:"tutorialLink,omitempty"`
	FwVersion     string     `xml:"fwVersion"`
}

// Platform carries the download of an item for one platform model
type Platform struct {
	PlatformID string `xml:"platformID"`
	Location   string `xml:"location"`
	Signature  string `xml:"signature"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

func optionalCDATA(value string) *cdata {
	if value == "" {
		return nil
	}
	c := newCDATA(value)
	return &c
}

// newCDATA wraps value, replacing characters XML forbids with U+FFFD.
// CDATA sections are not escaped, so one control character in a package
// summary would otherwise break the whole document.
func newCDATA(value string) cdata {
	return cdata{Value: xmlSafe(value)}
}

func xmlSafe(value string) string {
	value = strings.ToValidUTF8(value, string(utf8.RuneError))
	return strings.Map(func(r rune) rune {
		if isXMLChar(r) {
			return r
		}
		return utf8.RuneError
	}, value)
}

// isXMLChar reports whether r is in the Char production of XML 1.0
func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}

// SelectLatest filters packages to arch and keeps the highest version per
// name. Equal versions keep the first one seen; names keep their order of
// first appearance.
func SelectLatest(packages []*models.Package, arch models.Architecture) []*models.Package {
	index := make(map[string]int)
	var selected []*models.Package

	for _, pkg := range packages {
		if pkg == nil || !pkg.Supports(arch) {
			continue
		}
		if i, ok := index[pkg.Name]; ok {
			if pkg.Version.Compare(selected[i].Version) > 0 {
				selected[i] = pkg
			}
			continue
		}
		index[pkg.Name] = len(selected)
		selected = append(selected, pkg)
	}

	return selected
}

// Render builds the manifest for req. It performs no I/O.
func Render(packages []*models.Package, req Request, websiteRoot *url.URL, now time.Time) *Manifest {
	manifest := &Manifest{
		CacheCheck: now.Format(CacheCheckLayout),
	}

	for _, pkg := range SelectLatest(packages, req.Architecture) {
		manifest.Items = append(manifest.Items, createItem(pkg, req.Models, websiteRoot))
	}

	return manifest
}

func createItem(pkg *models.Package, platforms []string, websiteRoot *url.URL) Item {
	item := Item{
		Name:          newCDATA(pkg.DisplayName),
		InternalName:  pkg.Name,
		Description:   newCDATA(pkg.Summary),
		Version:       pkg.LiteralVersion,
		Maintainer:    newCDATA(pkg.Author),
		Developer:     newCDATA(pkg.Author),
		Category:      pkg.Category,
		Type:          pkg.Type,
		ChangeLog:     newCDATA(pkg.ChangelogLink),
		PublishedDate: pkg.PublishedDate.Format(PublishedDateLayout),
		Language:      pkg.Languages,
		Icon100:       ResolveURI(websiteRoot, pkg.Icon100Path),
		Icon80:        ResolveURI(websiteRoot, pkg.Icon80Path),
		Snapshot:      optionalCDATA(resolveLink(websiteRoot, pkg.SnapshotURI)),
		ForumLink:     optionalCDATA(pkg.ForumLink),
		BannerImg:     optionalCDATA(pkg.BannerImg),
		TutorialLink:  optionalCDATA(pkg.TutorialLink),
		FwVersion:     pkg.FirmwareMinimumVersion,
	}

	location := ResolveURI(websiteRoot, pkg.LocationPath)
	for _, platform := range platforms {
		item.Platforms = append(item.Platforms, Platform{
			PlatformID: platform,
			Location:   location,
			Signature:  pkg.Signature,
		})
	}

	return item
}

// ResolveURI resolves a storage-relative path against the website root.
// Empty paths stay empty.
func ResolveURI(websiteRoot *url.URL, relative string) string {
	if relative == "" {
		return ""
	}
	ref := &url.URL{Path: relative}
	if websiteRoot == nil {
		return ref.String()
	}
	return websiteRoot.ResolveReference(ref).String()
}

// resolveLink resolves a relative link against the website root. Absolute
// and unparsable links are kept as written.
func resolveLink(websiteRoot *url.URL, link string) string {
	if link == "" || websiteRoot == nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil || ref.IsAbs() {
		return link
	}
	return websiteRoot.ResolveReference(ref).String()
}

// Marshal serializes the manifest as an indented XML document
func (m *Manifest) Marshal() ([]byte, error) {
	xmlBytes, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	return append([]byte(xml.Header), xmlBytes...), nil
}
