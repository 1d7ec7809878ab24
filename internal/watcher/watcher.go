// Package watcher observes project trees for rule files being created or
// modified and hands each changed path to a callback.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of events for one path.
const DefaultDebounce = 100 * time.Millisecond

// DefaultSkipDirs are never descended into.
var DefaultSkipDirs = []string{".git", "node_modules"}

// Handler is called with the absolute path of a created or modified file.
type Handler func(ctx context.Context, path string)

// Options configures Watch.
type Options struct {
	// Roots are watched recursively.
	Roots []string
	// Glob is matched against the slash-separated path relative to a root,
	// e.g. "**/.cursor/rules/*".
	Glob string
	// Debounce delays delivery until a path has been quiet this long.
	// Zero delivers every event immediately.
	Debounce time.Duration
	// SkipDirs are directory base names that are never watched.
	SkipDirs []string
}

// GlobFor returns the default watch glob for a marker path.
func GlobFor(markerPath string) string {
	return "**/" + strings.Trim(filepath.ToSlash(markerPath), "/") + "/*"
}

// Watch starts an fsnotify watcher on every root and delivers matching
// create/write events to handle until ctx is cancelled. Remove and rename
// events are ignored: a rule deleted in a project stays in the shared store.
//
// New directories created at runtime are added to the watch list, and any
// matching files already inside them are delivered.
func Watch(ctx context.Context, opts Options, logger *slog.Logger, handle Handler) error {
	if !doublestar.ValidatePattern(opts.Glob) {
		return fmt.Errorf("watcher: invalid glob %q", opts.Glob)
	}
	if opts.SkipDirs == nil {
		opts.SkipDirs = DefaultSkipDirs
	}
	m := newMatcher(opts.Roots, opts.Glob)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create: %w", err)
	}
	defer w.Close()

	for _, root := range m.roots {
		if err := addDirsRecursive(w, root, opts.SkipDirs); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("watcher: root missing", slog.String("root", root))
				continue
			}
			return fmt.Errorf("watcher: add %s: %w", root, err)
		}
		logger.Info("watcher: started", slog.String("root", root), slog.String("glob", opts.Glob))
	}

	// Each path has its own quiet-period timer. Timers fire on their own
	// goroutine and hand the path back to this loop through ready.
	timers := make(map[string]*time.Timer)
	ready := make(chan string)
	done := make(chan struct{})
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
		close(done)
	}()

	enqueue := func(path string) {
		if opts.Debounce <= 0 {
			handle(ctx, path)
			return
		}
		if t, ok := timers[path]; ok {
			t.Reset(opts.Debounce)
			return
		}
		timers[path] = time.AfterFunc(opts.Debounce, func() {
			select {
			case ready <- path:
			case <-done:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case p := <-ready:
			delete(timers, p)
			handle(ctx, p)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			info, statErr := os.Stat(ev.Name)
			if statErr != nil {
				// Gone again before we looked; nothing to sync.
				continue
			}

			if info.IsDir() {
				if !ev.Has(fsnotify.Create) || slices.Contains(opts.SkipDirs, filepath.Base(ev.Name)) {
					continue
				}
				if addErr := addDirsRecursive(w, ev.Name, opts.SkipDirs); addErr != nil {
					logger.Warn("watcher: add new dir failed",
						slog.String("path", ev.Name),
						slog.String("error", addErr.Error()))
				} else {
					logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
				}
				for _, p := range m.scan(ev.Name, opts.SkipDirs) {
					enqueue(p)
				}
				continue
			}

			if !info.Mode().IsRegular() || !m.match(ev.Name) {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			enqueue(ev.Name)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// matcher tests absolute paths against a glob relative to the watch roots.
type matcher struct {
	roots []string
	glob  string
}

func newMatcher(roots []string, glob string) *matcher {
	m := &matcher{glob: glob}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			m.roots = append(m.roots, abs)
		}
	}
	return m
}

func (m *matcher) match(path string) bool {
	for _, root := range m.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if ok, _ := doublestar.Match(m.glob, filepath.ToSlash(rel)); ok {
			return true
		}
	}
	return false
}

// scan returns the matching regular files under dir.
func (m *matcher) scan(dir string, skip []string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && slices.Contains(skip, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && m.match(p) {
			out = append(out, p)
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string, skip []string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subtree; keep watching the rest.
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && slices.Contains(skip, d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
