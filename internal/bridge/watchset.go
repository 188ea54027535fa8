package bridge

import (
	"path/filepath"
	"slices"
	"strings"
)

// WatchSet is the registry of watched paths. It is owned by the Dispatcher
// and is not safe for concurrent use.
type WatchSet struct {
	paths map[string]struct{}
}

// NewWatchSet creates a set seeded with paths.
func NewWatchSet(paths ...string) *WatchSet {
	s := &WatchSet{paths: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		s.Add(p)
	}

	return s
}

// NormalizePath trims surrounding whitespace and cleans path. An empty
// result stays empty.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}

	return filepath.Clean(path)
}

// Add inserts path and reports whether it was new.
func (s *WatchSet) Add(path string) bool {
	path = NormalizePath(path)
	if _, ok := s.paths[path]; ok {
		return false
	}

	s.paths[path] = struct{}{}

	return true
}

// Remove deletes path and reports whether it was present.
func (s *WatchSet) Remove(path string) bool {
	path = NormalizePath(path)
	if _, ok := s.paths[path]; !ok {
		return false
	}

	delete(s.paths, path)

	return true
}

// Contains reports whether path is watched.
func (s *WatchSet) Contains(path string) bool {
	_, ok := s.paths[NormalizePath(path)]
	return ok
}

// Len returns the number of watched paths.
func (s *WatchSet) Len() int { return len(s.paths) }

// Paths returns the watched paths in sorted order.
func (s *WatchSet) Paths() []string {
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}

	slices.Sort(out)

	return out
}
