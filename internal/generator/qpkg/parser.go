package qpkg

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/qpkgrepo/internal/models"
	"github.com/sirupsen/logrus"
)

// Control block keys
const (
	KeyName           = "QPKG_NAME"
	KeyDisplayName    = "QPKG_DISPLAY_NAME"
	KeyVersion        = "QPKG_VER"
	KeyVersionLong    = "QPKG_VER_LONG"
	KeyAuthor         = "QPKG_AUTHOR"
	KeySummary        = "QPKG_SUMMARY"
	KeyFirmwareMinVer = "QTS_MINI_VERSION"
)

// Fallbacks for optional descriptor fields
const (
	DefaultCategory  = "More"
	DefaultLanguages = "English"
)

// SignatureExtension is appended to a package path to find its signature
const SignatureExtension = ".codesigning"

// ControlExtractor returns the raw control block of a package
type ControlExtractor func(r io.Reader) (map[string]string, error)

// VersionFailedFunc is consulted when a package version cannot be parsed.
// It returns a substitute version, or false to exclude the package.
type VersionFailedFunc func(path string) (models.Version, bool)

// BuildOptions carries everything ParsePackage needs beyond the file itself
type BuildOptions struct {
	Config          *models.RepositoryConfig
	Defaults        models.SourceDefaults
	Extract         ControlExtractor
	OnVersionFailed VersionFailedFunc
}

// ParsePackage builds the descriptor of the package at path. others are the
// non-package files of the same directory, searched for icons and the .conf
// file. A nil package with a nil error means OnVersionFailed excluded it.
func ParsePackage(path string, others []string, opts BuildOptions) (*models.Package, error) {
	if opts.Extract == nil || opts.Config == nil {
		return nil, models.NewError(models.ErrInvalidConfig, path, errors.New("extractor and repository config are required"))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewError(models.ErrMissingFile, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, models.NewError(models.ErrMissingFile, path, err)
	}

	control, err := opts.Extract(f)
	if err != nil {
		return nil, models.NewError(models.ErrMalformedPackage, path, fmt.Errorf("failed to extract control: %w", err))
	}

	name := control[KeyName]
	if name == "" {
		return nil, models.NewError(models.ErrMalformedPackage, path, fmt.Errorf("missing %s", KeyName))
	}
	literalVersion, ok := control[KeyVersion]
	if !ok || literalVersion == "" {
		return nil, models.NewError(models.ErrMalformedPackage, path, fmt.Errorf("missing %s", KeyVersion))
	}

	version, ok := resolveVersion(control)
	if !ok {
		if opts.OnVersionFailed == nil {
			return nil, models.NewError(models.ErrMalformedPackage, path, fmt.Errorf("unparsable version %q", literalVersion))
		}
		version, ok = opts.OnVersionFailed(path)
		if ok && version.IsZero() {
			return nil, models.NewError(models.ErrMalformedPackage, path, fmt.Errorf("no substitute for unparsable version %q", literalVersion))
		}
		if !ok {
			logrus.Debugf("Excluding %s: version %q rejected", path, literalVersion)
			return nil, nil
		}
	}

	conf := loadConfFile(name, others)

	pkg := &models.Package{
		Signature:      readSignature(path),
		Name:           name,
		DisplayName:    firstNonEmpty(control[KeyDisplayName], name),
		Author:         control[KeyAuthor],
		Summary:        control[KeySummary],
		LiteralVersion: literalVersion,
		Version:        version,
		Architecture:   models.ArchitectureFromFileName(filepath.Base(path)),

		Category:      firstNonEmpty(conf[confCategory], opts.Defaults.Category, DefaultCategory),
		Type:          firstNonEmpty(conf[confType], opts.Defaults.Type),
		Languages:     firstNonEmpty(conf[confLanguage], opts.Defaults.Languages, DefaultLanguages),
		TutorialLink:  conf[confTutorialLink],
		ForumLink:     conf[confForumLink],
		ChangelogLink: conf[confChangelog],
		BannerImg:     conf[confBannerImg],
		SnapshotURI:   conf[confSnapshot],

		Icon80Path:  iconPath(name, 80, opts.Config.StorageRoot, others),
		Icon100Path: iconPath(name, 100, opts.Config.StorageRoot, others),

		PublishedDate:          info.ModTime(),
		LocalPath:              path,
		LocationPath:           relativePath(opts.Config.StorageRoot, path),
		FirmwareMinimumVersion: firstNonEmpty(control[KeyFirmwareMinVer], opts.Defaults.FirmwareMinimumVersion),
	}

	return pkg, nil
}

// resolveVersion prefers the long version and falls back to the plain one
func resolveVersion(control map[string]string) (models.Version, bool) {
	for _, key := range []string{KeyVersionLong, KeyVersion} {
		value := control[key]
		if value == "" {
			continue
		}
		v, err := models.ParseVersion(value)
		if err == nil {
			return v, true
		}
		logrus.Debugf("Cannot parse %s=%q: %v", key, value, err)
	}
	return models.Version{}, false
}

// readSignature returns the trimmed content of the .codesigning sidecar
func readSignature(path string) string {
	data, err := os.ReadFile(path + SignatureExtension)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logrus.Warnf("Failed to read signature of %s: %v", path, err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

// iconPath finds {name}_{size} among the auxiliary files
func iconPath(packageName string, size int, storageRoot string, others []string) string {
	iconName := fmt.Sprintf("%s_%d", packageName, size)
	for _, other := range others {
		if !strings.Contains(filepath.Base(other), iconName) {
			continue
		}
		if _, err := os.Stat(other); err != nil {
			continue
		}
		return relativePath(storageRoot, other)
	}
	return ""
}

// relativePath returns path relative to the storage root with forward slashes
func relativePath(storageRoot, path string) string {
	if storageRoot != "" {
		if rel, err := filepath.Rel(storageRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
		logrus.Warnf("%s is outside storage root %s", path, storageRoot)
	}
	return filepath.Base(path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
