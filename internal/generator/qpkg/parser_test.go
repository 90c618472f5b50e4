package qpkg

import (
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/ralt/qpkgrepo/internal/models"
)

// plainExtractor treats the whole package file as a qpkg.cfg
func plainExtractor(r io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseControl(data)
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func testOptions(root string) BuildOptions {
	website, _ := url.Parse("https://apps.example.com/")
	return BuildOptions{
		Config: &models.RepositoryConfig{
			StorageRoot: root,
			WebsiteRoot: website,
		},
		Extract: plainExtractor,
	}
}

func TestParsePackage(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "stable")

	pkgPath := writeFile(t, filepath.Join(dir, "Backup_1.4.2_arm_64.qpkg"), `
QPKG_NAME="Backup"
QPKG_DISPLAY_NAME="Backup & Restore"
QPKG_VER="1.4.2"
QPKG_VER_LONG="1.4.2.20240101"
QPKG_AUTHOR="ACME"
QPKG_SUMMARY="Keeps <your> data safe"
QTS_MINI_VERSION="5.0.0"
`)
	writeFile(t, pkgPath+SignatureExtension, "  MEUCIQDsig==\n")
	conf := writeFile(t, filepath.Join(dir, "Backup.conf"), `
Category = "Backup & Sync"
Language=English, Français
snapshot="https://apps.example.com/shots/backup.png?size=large"
ChangeLog=https://example.com/changelog
`)
	icon := writeFile(t, filepath.Join(dir, "Backup_80.gif"), "gif")
	// Listed but already gone from disk
	missingIcon := filepath.Join(dir, "Backup_100.gif")

	pkg, err := ParsePackage(pkgPath, []string{conf, icon, missingIcon}, testOptions(root))
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}

	if pkg.Name != "Backup" || pkg.DisplayName != "Backup & Restore" {
		t.Errorf("Unexpected names: %q / %q", pkg.Name, pkg.DisplayName)
	}
	if pkg.LiteralVersion != "1.4.2" {
		t.Errorf("Expected literal version 1.4.2, got %s", pkg.LiteralVersion)
	}
	if pkg.Version.String() != "1.4.2.20240101" {
		t.Errorf("Expected long version to win, got %s", pkg.Version)
	}
	if pkg.Architecture != models.ArchArm64 {
		t.Errorf("Expected arm64, got %s", pkg.Architecture)
	}
	if pkg.Signature != "MEUCIQDsig==" {
		t.Errorf("Expected trimmed signature, got %q", pkg.Signature)
	}
	if pkg.Category != "Backup & Sync" {
		t.Errorf("Expected category from .conf, got %q", pkg.Category)
	}
	if pkg.Languages != "English, Français" {
		t.Errorf("Expected languages from .conf, got %q", pkg.Languages)
	}
	if pkg.SnapshotURI != "https://apps.example.com/shots/backup.png?size=large" {
		t.Errorf("Unexpected snapshot %q", pkg.SnapshotURI)
	}
	if pkg.ChangelogLink != "https://example.com/changelog" {
		t.Errorf("Unexpected changelog %q", pkg.ChangelogLink)
	}
	if pkg.Icon80Path != "stable/Backup_80.gif" {
		t.Errorf("Expected icon80 relative to storage root, got %q", pkg.Icon80Path)
	}
	if pkg.Icon100Path != "" {
		t.Errorf("Expected empty icon100 for missing file, got %q", pkg.Icon100Path)
	}
	if pkg.LocationPath != "stable/Backup_1.4.2_arm_64.qpkg" {
		t.Errorf("Unexpected location %q", pkg.LocationPath)
	}
	if pkg.LocalPath != pkgPath {
		t.Errorf("Unexpected local path %q", pkg.LocalPath)
	}
	if pkg.FirmwareMinimumVersion != "5.0.0" {
		t.Errorf("Unexpected firmware version %q", pkg.FirmwareMinimumVersion)
	}
	if pkg.PublishedDate.IsZero() {
		t.Error("Expected published date from file modification time")
	}
}

func TestParsePackageDefaults(t *testing.T) {
	root := t.TempDir()
	pkgPath := writeFile(t, filepath.Join(root, "Tool_1.0.qpkg"), "QPKG_NAME=Tool\nQPKG_VER=1.0\n")

	opts := testOptions(root)
	pkg, err := ParsePackage(pkgPath, nil, opts)
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}

	if pkg.Signature != "" {
		t.Errorf("Expected empty signature without sidecar, got %q", pkg.Signature)
	}
	if pkg.Category != DefaultCategory || pkg.Languages != DefaultLanguages {
		t.Errorf("Expected fixed fallbacks, got %q / %q", pkg.Category, pkg.Languages)
	}
	if pkg.Architecture != models.ArchAll {
		t.Errorf("Expected all, got %s", pkg.Architecture)
	}
	if pkg.DisplayName != "Tool" {
		t.Errorf("Expected display name to fall back to name, got %q", pkg.DisplayName)
	}

	opts.Defaults = models.SourceDefaults{Category: "Utilities", Type: "Tools", FirmwareMinimumVersion: "4.3.3"}
	pkg, err = ParsePackage(pkgPath, nil, opts)
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}
	if pkg.Category != "Utilities" || pkg.Type != "Tools" || pkg.FirmwareMinimumVersion != "4.3.3" {
		t.Errorf("Expected source defaults, got %q / %q / %q", pkg.Category, pkg.Type, pkg.FirmwareMinimumVersion)
	}
}

func TestParsePackageVersionFallbacks(t *testing.T) {
	root := t.TempDir()

	t.Run("invalid long version falls back to plain", func(t *testing.T) {
		path := writeFile(t, filepath.Join(root, "a.qpkg"), "QPKG_NAME=A\nQPKG_VER=2.1\nQPKG_VER_LONG=not-a-version\n")
		pkg, err := ParsePackage(path, nil, testOptions(root))
		if err != nil {
			t.Fatalf("ParsePackage failed: %v", err)
		}
		if pkg.Version.String() != "2.1" {
			t.Errorf("Expected 2.1, got %s", pkg.Version)
		}
	})

	path := writeFile(t, filepath.Join(root, "b.qpkg"), "QPKG_NAME=B\nQPKG_VER=nightly\n")

	t.Run("no hook is malformed", func(t *testing.T) {
		_, err := ParsePackage(path, nil, testOptions(root))
		if !models.IsErrorType(err, models.ErrMalformedPackage) {
			t.Errorf("Expected MalformedPackage, got %v", err)
		}
	})

	t.Run("hook supplies substitute", func(t *testing.T) {
		opts := testOptions(root)
		var asked string
		opts.OnVersionFailed = func(p string) (models.Version, bool) {
			asked = p
			return models.MustParseVersion("0.0.1"), true
		}
		pkg, err := ParsePackage(path, nil, opts)
		if err != nil {
			t.Fatalf("ParsePackage failed: %v", err)
		}
		if asked != path {
			t.Errorf("Hook called with %q, want %q", asked, path)
		}
		if pkg.Version.String() != "0.0.1" || pkg.LiteralVersion != "nightly" {
			t.Errorf("Unexpected versions %s / %s", pkg.Version, pkg.LiteralVersion)
		}
	})

	t.Run("hook accepting without a version is malformed", func(t *testing.T) {
		opts := testOptions(root)
		opts.OnVersionFailed = func(string) (models.Version, bool) { return models.Version{}, true }
		if _, err := ParsePackage(path, nil, opts); !models.IsErrorType(err, models.ErrMalformedPackage) {
			t.Errorf("Expected MalformedPackage, got %v", err)
		}
	})

	t.Run("hook rejects", func(t *testing.T) {
		opts := testOptions(root)
		opts.OnVersionFailed = func(string) (models.Version, bool) { return models.Version{}, false }
		pkg, err := ParsePackage(path, nil, opts)
		if err != nil || pkg != nil {
			t.Errorf("Expected silent exclusion, got %v / %v", pkg, err)
		}
	})
}

func TestParsePackageIconSkipsVanishedCandidate(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "stable")
	pkgPath := writeFile(t, filepath.Join(dir, "Backup.qpkg"), "QPKG_NAME=Backup\nQPKG_VER=1.0\n")
	vanished := filepath.Join(dir, "Backup_100_old.gif")
	icon := writeFile(t, filepath.Join(dir, "Backup_100.gif"), "gif")

	pkg, err := ParsePackage(pkgPath, []string{vanished, icon}, testOptions(root))
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}
	if pkg.Icon100Path != "stable/Backup_100.gif" {
		t.Errorf("Expected the next matching icon, got %q", pkg.Icon100Path)
	}
}

func TestParsePackageErrors(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name     string
		content  string
		path     string
		expected models.ErrorType
	}{
		{"missing name", "QPKG_VER=1.0\n", "noname.qpkg", models.ErrMalformedPackage},
		{"missing version", "QPKG_NAME=X\n", "nover.qpkg", models.ErrMalformedPackage},
		{"missing file", "", "gone.qpkg", models.ErrMissingFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(root, tt.path)
			if tt.content != "" {
				writeFile(t, path, tt.content)
			}
			_, err := ParsePackage(path, nil, testOptions(root))
			if !models.IsErrorType(err, tt.expected) {
				t.Errorf("Expected %s, got %v", tt.expected, err)
			}
		})
	}

	t.Run("extractor failure", func(t *testing.T) {
		path := writeFile(t, filepath.Join(root, "broken.qpkg"), "x")
		opts := testOptions(root)
		opts.Extract = func(io.Reader) (map[string]string, error) { return nil, errors.New("bad archive") }
		_, err := ParsePackage(path, nil, opts)
		if !models.IsErrorType(err, models.ErrMalformedPackage) {
			t.Errorf("Expected MalformedPackage, got %v", err)
		}
	})
}

func TestParseConf(t *testing.T) {
	conf := ParseConf("# comment\nCATEGORY = \"Home\"\r\nforumlink=https://forum.example.com/?t=1&p=2\nbroken line\n=novalue\n")

	if conf["category"] != "Home" {
		t.Errorf("Expected category Home, got %q", conf["category"])
	}
	if conf["forumlink"] != "https://forum.example.com/?t=1&p=2" {
		t.Errorf("Expected value with '=' kept, got %q", conf["forumlink"])
	}
	if len(conf) != 2 {
		t.Errorf("Expected 2 keys, got %v", conf)
	}
}
