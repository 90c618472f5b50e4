package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ralt/qpkgrepo/internal/models"
)

func TestPathFlattensSourceRoot(t *testing.T) {
	tests := []struct {
		root     string
		expected string
	}{
		{"/srv/qpkg/stable", "srv-qpkg-stable.json"},
		{"stable/", "stable.json"},
		{"/", "root.json"},
		{"beta-channel/x", "beta--channel-x.json"},
	}

	for _, tt := range tests {
		got := Path("/var/cache/qpkgrepo", tt.root)
		want := filepath.Join("/var/cache/qpkgrepo", tt.expected)
		if got != want {
			t.Errorf("Path(%q) = %s, want %s", tt.root, got, want)
		}
	}

	if Path("/var/cache/qpkgrepo", "a-b") == Path("/var/cache/qpkgrepo", "a/b") {
		t.Error("Distinct roots must not share a cache artifact")
	}
	if Path("", "/srv/qpkg") != "" {
		t.Error("Empty cache directory disables persistence")
	}
}

func TestSaveAndLoad(t *testing.T) {
	cacheDir := t.TempDir()
	published := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	c := New()
	c.Replace([]*models.Package{
		{
			Name:           "Zeta",
			LiteralVersion: "2.0",
			Version:        models.MustParseVersion("2.0.0.1"),
			Architecture:   models.ArchX86_64,
			SnapshotURI:    "https://example.com/zeta.png",
			PublishedDate:  published,
			LocalPath:      "/srv/qpkg/Zeta_x86_64.qpkg",
			LocationPath:   "Zeta_x86_64.qpkg",
		},
		{
			Name:          "Alpha",
			Version:       models.MustParseVersion("1.0"),
			Architecture:  models.ArchAll,
			PublishedDate: published,
			LocalPath:     "/srv/qpkg/Alpha.qpkg",
		},
	})

	if err := Save(cacheDir, "/srv/qpkg", c); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := Load(cacheDir, "/srv/qpkg")
	if len(loaded.Packages) != 2 {
		t.Fatalf("Expected 2 packages, got %d", len(loaded.Packages))
	}
	if loaded.Packages[0].Name != "Alpha" {
		t.Errorf("Expected packages ordered by local path, got %s first", loaded.Packages[0].Name)
	}

	zeta := loaded.Index()["/srv/qpkg/Zeta_x86_64.qpkg"]
	if zeta == nil {
		t.Fatal("Zeta missing from index")
	}
	if zeta.Version.Compare(models.MustParseVersion("2.0.0.1")) != 0 || zeta.Version.String() != "2.0.0.1" {
		t.Errorf("Version not preserved: %s", zeta.Version)
	}
	if zeta.Architecture != models.ArchX86_64 {
		t.Errorf("Architecture not preserved: %s", zeta.Architecture)
	}
	if !zeta.PublishedDate.Equal(published) {
		t.Errorf("Published date not preserved: %s", zeta.PublishedDate)
	}
	if zeta.SnapshotURI != "https://example.com/zeta.png" || zeta.LiteralVersion != "2.0" {
		t.Errorf("Fields not preserved: %+v", zeta)
	}
}

func TestLoadMissingOrCorrupt(t *testing.T) {
	cacheDir := t.TempDir()

	if c := Load(cacheDir, "/srv/none"); len(c.Packages) != 0 {
		t.Errorf("Expected empty cache for missing artifact")
	}

	corrupt := []string{
		`{"version":1,"packages":[{"name":`,
		`{"version":99,"packages":[]}`,
		`{"version":1,"packages":[{"localPath":"/a","architecture":"sparc"}]}`,
	}
	for _, content := range corrupt {
		path := Path(cacheDir, "/srv/broken")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write cache: %v", err)
		}
		if c := Load(cacheDir, "/srv/broken"); len(c.Packages) != 0 {
			t.Errorf("Expected empty cache for %q", content)
		}
	}
}
