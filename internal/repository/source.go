package repository

import (
	"errors"
	"sync"
	"time"

	"github.com/ralt/qpkgrepo/internal/cache"
	"github.com/ralt/qpkgrepo/internal/generator/qpkg"
	"github.com/ralt/qpkgrepo/internal/models"
)

// Source is one configured directory of package files. It owns the
// in-memory cache of that directory; the cache is loaded lazily and dropped
// by Reload. Files that could not be published are remembered with their
// modification time and not opened again until they change.
type Source struct {
	Root     string
	Extract  qpkg.ControlExtractor
	Defaults models.SourceDefaults

	mu       sync.Mutex
	cache    *cache.RepositoryCache
	rejected map[string]time.Time
}

// NewSource creates a source scanning root with the given control extractor
func NewSource(root string, extract qpkg.ControlExtractor, defaults models.SourceDefaults) (*Source, error) {
	if root == "" {
		return nil, models.NewError(models.ErrInvalidConfig, "", errors.New("source root is required"))
	}
	if extract == nil {
		return nil, models.NewError(models.ErrInvalidConfig, root, errors.New("control extractor is required"))
	}

	return &Source{
		Root:     root,
		Extract:  extract,
		Defaults: defaults,
	}, nil
}

// Reload drops the in-memory cache so the next scan reloads it from disk
func (s *Source) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.rejected = nil
}

// isRejected reports whether path was rejected and is unchanged since
func (s *Source) isRejected(path string, modTime time.Time) bool {
	rejectedAt, ok := s.rejected[path]
	return ok && rejectedAt.Equal(modTime)
}

func (s *Source) reject(path string, modTime time.Time) {
	if s.rejected == nil {
		s.rejected = make(map[string]time.Time)
	}
	s.rejected[path] = modTime
}

// pruneRejected forgets rejected files that left the directory
func (s *Source) pruneRejected(listed map[string]bool) {
	for path := range s.rejected {
		if !listed[path] {
			delete(s.rejected, path)
		}
	}
}
