package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ralt/qpkgrepo/internal/models"
	"github.com/ralt/qpkgrepo/internal/utils"
	"github.com/sirupsen/logrus"
)

// FormatVersion is bumped whenever the persisted descriptor layout changes
const FormatVersion = 1

// RepositoryCache is the persisted set of descriptors of one source, keyed
// by Package.LocalPath
type RepositoryCache struct {
	Version  int               `json:"version"`
	Packages []*models.Package `json:"packages"`
}

// New returns an empty cache
func New() *RepositoryCache {
	return &RepositoryCache{Version: FormatVersion}
}

// Index returns the cached descriptors keyed by local path
func (c *RepositoryCache) Index() map[string]*models.Package {
	index := make(map[string]*models.Package, len(c.Packages))
	for _, pkg := range c.Packages {
		index[pkg.LocalPath] = pkg
	}
	return index
}

// Replace sets the cached descriptors, ordered by local path
func (c *RepositoryCache) Replace(packages []*models.Package) {
	sorted := append([]*models.Package(nil), packages...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LocalPath < sorted[j].LocalPath
	})
	c.Version = FormatVersion
	c.Packages = sorted
}

// Path returns the artifact location for a source root, or "" when
// persistence is disabled. The root is flattened into a single file name:
// '-' is doubled and path separators become '-', so distinct roots never
// share an artifact.
func Path(cacheDir, sourceRoot string) string {
	if cacheDir == "" {
		return ""
	}

	root := filepath.ToSlash(filepath.Clean(sourceRoot))
	root = strings.Trim(root, "/")
	root = strings.ReplaceAll(root, "-", "--")
	root = strings.NewReplacer("/", "-", ":", "-").Replace(root)
	if root == "" || root == "." {
		root = "root"
	}

	return filepath.Join(cacheDir, root+".json")
}

// Load reads the cache of a source. It never fails: a missing artifact or
// one that cannot be decoded yields an empty cache.
func Load(cacheDir, sourceRoot string) *RepositoryCache {
	path := Path(cacheDir, sourceRoot)
	if path == "" {
		return New()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logrus.Debugf("No cache for %s", sourceRoot)
		} else {
			logrus.Warn(models.NewError(models.ErrCacheCorrupt, path, err))
		}
		return New()
	}

	c, err := decode(data)
	if err != nil {
		logrus.Warn(models.NewError(models.ErrCacheCorrupt, path, err))
		return New()
	}

	logrus.Debugf("Loaded %d cached packages for %s", len(c.Packages), sourceRoot)
	return c
}

func decode(data []byte) (*RepositoryCache, error) {
	var c RepositoryCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode cache: %w", err)
	}
	if c.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported cache version %d", c.Version)
	}

	packages := c.Packages[:0]
	for _, pkg := range c.Packages {
		if pkg == nil || pkg.LocalPath == "" {
			continue
		}
		packages = append(packages, pkg)
	}
	c.Packages = packages
	return &c, nil
}

// Save overwrites the artifact of a source with c
func Save(cacheDir, sourceRoot string, c *RepositoryCache) error {
	path := Path(cacheDir, sourceRoot)
	if path == "" {
		return nil
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	if err := utils.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache %s: %w", path, err)
	}

	logrus.Debugf("Saved %d packages to %s", len(c.Packages), path)
	return nil
}
