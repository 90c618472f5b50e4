package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ralt/qpkgrepo/internal/cache"
	"github.com/ralt/qpkgrepo/internal/generator/qpkg"
	"github.com/ralt/qpkgrepo/internal/models"
	"github.com/ralt/qpkgrepo/internal/scanner"
	"github.com/sirupsen/logrus"
)

// Repository aggregates the packages of every source and renders manifests
type Repository struct {
	config  *models.RepositoryConfig
	sources []*Source
	scanner scanner.Scanner
	now     func() time.Time
}

// Option customizes a Repository
type Option func(*Repository)

// WithScanner replaces the filesystem scanner
func WithScanner(s scanner.Scanner) Option {
	return func(r *Repository) {
		r.scanner = s
	}
}

// WithClock replaces the clock used for manifest timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// New creates a repository over sources. Sources sharing a cache artifact
// are rejected.
func New(config *models.RepositoryConfig, sources []*Source, opts ...Option) (*Repository, error) {
	if config == nil {
		return nil, models.NewError(models.ErrInvalidConfig, "", errors.New("repository config is required"))
	}

	seen := make(map[string]string)
	for _, source := range sources {
		if source == nil {
			return nil, models.NewError(models.ErrInvalidConfig, "", errors.New("nil source"))
		}
		key := cache.Path(config.CacheDir, source.Root)
		if key == "" {
			key = source.Root
		}
		if other, ok := seen[key]; ok {
			return nil, models.NewError(models.ErrInvalidConfig, source.Root, fmt.Errorf("shares its cache with %s", other))
		}
		seen[key] = source.Root
	}

	r := &Repository{
		config:  config,
		sources: append([]*Source(nil), sources...),
		scanner: scanner.NewFileSystemScanner(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the repository configuration
func (r *Repository) Config() *models.RepositoryConfig {
	return r.config
}

// Reload drops every source's in-memory cache
func (r *Repository) Reload() {
	for _, source := range r.sources {
		source.Reload()
	}
	logrus.Info("Repository caches dropped")
}

// Packages reconciles every source with its directory and returns the live
// descriptors, ordered by source then by file path. A source that cannot be
// scanned contributes nothing.
func (r *Repository) Packages(ctx context.Context, onVersionFailed qpkg.VersionFailedFunc) []*models.Package {
	results := make([][]*models.Package, len(r.sources))

	var wg sync.WaitGroup
	for i, source := range r.sources {
		wg.Add(1)
		go func(i int, source *Source) {
			defer wg.Done()
			packages, err := r.loadSource(ctx, source, onVersionFailed)
			if err != nil {
				logrus.Warnf("Skipping source %s: %v", source.Root, err)
				return
			}
			results[i] = packages
		}(i, source)
	}
	wg.Wait()

	var all []*models.Package
	for _, packages := range results {
		all = append(all, packages...)
	}
	return all
}

// Manifest renders the feed for req from the current package set
func (r *Repository) Manifest(ctx context.Context, req qpkg.Request, onVersionFailed qpkg.VersionFailedFunc) *qpkg.Manifest {
	if len(req.Models) == 0 {
		req.Models = r.config.DefaultPlatforms
	}
	packages := r.Packages(ctx, onVersionFailed)
	return qpkg.Render(packages, req, r.config.WebsiteRoot, r.now())
}

// loadSource reuses cached descriptors for files already known, builds the
// new ones and persists the cache when the file set changed
func (r *Repository) loadSource(ctx context.Context, source *Source, onVersionFailed qpkg.VersionFailedFunc) ([]*models.Package, error) {
	listing, err := r.scanner.List(ctx, source.Root)
	if err != nil {
		return nil, err
	}

	source.mu.Lock()
	defer source.mu.Unlock()

	if source.cache == nil {
		source.cache = cache.Load(r.config.CacheDir, source.Root)
	}
	known := source.cache.Index()

	opts := qpkg.BuildOptions{
		Config:          r.config,
		Defaults:        source.Defaults,
		Extract:         source.Extract,
		OnVersionFailed: onVersionFailed,
	}

	var live []*models.Package
	listed := make(map[string]bool, len(listing.Packages))
	hits, added := 0, 0
	for _, path := range listing.Packages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		listed[path] = true

		if pkg, ok := known[path]; ok {
			hits++
			live = append(live, pkg)
			continue
		}

		modTime := fileModTime(path)
		if source.isRejected(path, modTime) {
			continue
		}

		pkg, err := qpkg.ParsePackage(path, listing.Others, opts)
		if err != nil {
			if models.IsErrorType(err, models.ErrInvalidConfig) {
				return nil, err
			}
			logrus.Warnf("Skipping package: %v", err)
			source.reject(path, modTime)
			continue
		}
		if pkg == nil {
			source.reject(path, modTime)
			continue
		}

		logrus.Debugf("Loaded %s %s (%s) from %s", pkg.Name, pkg.LiteralVersion, pkg.Architecture, path)
		live = append(live, pkg)
		added++
	}
	source.pruneRejected(listed)

	removed := len(known) - hits
	if added == 0 && removed == 0 {
		return live, nil
	}

	logrus.Infof("Source %s changed: %d added, %d removed, %d packages", source.Root, added, removed, len(live))
	source.cache.Replace(live)
	if err := cache.Save(r.config.CacheDir, source.Root, source.cache); err != nil {
		logrus.Warnf("Failed to persist cache of %s: %v", source.Root, err)
	}
	return live, nil
}

// fileModTime returns the zero time when path cannot be inspected
func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
