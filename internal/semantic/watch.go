package semantic

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-indexes a project when files under it change.
type Watcher struct {
	memory   *Memory
	root     string
	scope    Scope
	debounce time.Duration
	logger   *zap.Logger
	onIndex  func(IndexReport)
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period before a re-index runs.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIndexCallback is called with the report of every watch-triggered pass.
func WithIndexCallback(fn func(IndexReport)) WatchOption {
	return func(w *Watcher) { w.onIndex = fn }
}

// WithWatchLogger sets the watcher's logger.
func WithWatchLogger(l *zap.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher creates a watcher for root.
func NewWatcher(m *Memory, root string, scope Scope, opts ...WatchOption) *Watcher {
	w := &Watcher{
		memory:   m,
		root:     root,
		scope:    scope,
		debounce: 500 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run watches until ctx is canceled. It blocks.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("semantic: create watcher: %w", err)
	}
	defer fw.Close()

	root, err := filepath.Abs(w.root)
	if err != nil {
		return fmt.Errorf("semantic: resolve watch root: %w", err)
	}
	if err := w.addTree(fw, root); err != nil {
		return err
	}
	w.logger.Info("watching project", zap.String("project", root))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(root, ev) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				// New directories must be added explicitly; fsnotify is not recursive.
				_ = w.addTree(fw, ev.Name)
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			report := w.memory.EnsureIndexedProject(ctx, root, w.scope)
			if w.onIndex != nil {
				w.onIndex(report)
			}
		}
	}
}

// relevant reports whether ev touches indexable content under root.
func relevant(root string, ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skipDirs[part] {
			return false
		}
	}
	return true
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return nil
			}
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("semantic: watch %s: %w", path, err)
		}
		return nil
	})
}
