// Package resolver finds the nearest ancestor directory that contains a rule
// marker directory such as ".cursor/rules".
package resolver

import (
	"os"
	"path/filepath"
)

// Marker paths used by the editor over time. DefaultMarkerPath is used unless
// configuration selects another one.
const (
	DefaultMarkerPath = ".cursor/rules"
	LegacyMarkerPath  = ".cursorrules"
)

// Resolver searches upward for a marker directory. It never creates anything.
type Resolver struct {
	marker string
}

// New returns a Resolver for markerPath, a relative slash-separated path.
// An empty markerPath selects DefaultMarkerPath.
func New(markerPath string) *Resolver {
	if markerPath == "" {
		markerPath = DefaultMarkerPath
	}
	return &Resolver{marker: filepath.FromSlash(markerPath)}
}

// MarkerPath returns the marker path in OS form.
func (r *Resolver) MarkerPath() string { return r.marker }

// Nearest starts at the directory containing refPath and returns the closest
// "<ancestor>/<marker>" directory. ok is false when none exists up to and
// including the filesystem root.
func (r *Resolver) Nearest(refPath string) (string, bool) {
	abs, err := filepath.Abs(refPath)
	if err != nil {
		return "", false
	}
	return r.NearestFrom(filepath.Dir(abs))
}

// NearestFrom is like Nearest but starts the search at dir itself.
func (r *Resolver) NearestFrom(dir string) (string, bool) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(current, r.marker)
		if isDir(candidate) {
			return candidate, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			// current is the root and was checked above.
			return "", false
		}
		current = parent
	}
}

// isDir follows symlinks.
func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
