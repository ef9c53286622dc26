// Package watch reports batches of changed source files below a project root.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Config tunes a Watcher.
type Config struct {
	// Debounce is how long the watcher waits for quiet before flushing.
	Debounce time.Duration
	// MaxBatch flushes early once this many distinct paths are pending.
	MaxBatch int
	// Ignore holds doublestar patterns matched against slash-separated
	// paths relative to the root.
	Ignore []string
	// WatchHidden includes dot files and directories.
	WatchHidden bool
}

// DefaultConfig returns the settings used by check --watch.
func DefaultConfig() Config {
	return Config{
		Debounce: 300 * time.Millisecond,
		MaxBatch: 100,
		Ignore: []string{
			"**/node_modules/**",
			"**/dist/**",
			"**/build/**",
			"**/coverage/**",
			"**/vendor/**",
			"**/*.log",
		},
	}
}

// Handler receives each flushed batch of relative, sorted paths.
type Handler func(ctx context.Context, paths []string)

// Watcher watches a directory tree recursively.
type Watcher struct {
	root     string
	cfg      Config
	fs       *fsnotify.Watcher
	onChange Handler
	logger   *zap.Logger
}

// New starts watching root and every non-ignored directory below it. Events
// are only delivered once Run is called.
func New(root string, cfg Config, onChange Handler, logger *zap.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: change handler is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultConfig().MaxBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", root, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{root: abs, cfg: cfg, fs: fsw, onChange: onChange, logger: logger}
	if _, err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run delivers batches until ctx is cancelled, then releases the underlying
// watcher. Pending changes are dropped on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	pending := newDebouncer(w.cfg.MaxBatch)
	timer := time.NewTimer(w.cfg.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	flush := func() {
		if batch := pending.take(); len(batch) > 0 {
			w.logger.Debug("flushing changes", zap.Int("count", len(batch)))
			w.onChange(ctx, batch)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			paths := w.convert(event)
			if len(paths) == 0 {
				continue
			}
			full := false
			for _, p := range paths {
				full = pending.add(p) || full
			}
			if full {
				timer.Stop()
				flush()
				continue
			}
			timer.Reset(w.cfg.Debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-timer.C:
			flush()
		}
	}
}

// convert maps an fsnotify event to changed file paths. New directories are
// watched and their existing files reported.
func (w *Watcher) convert(event fsnotify.Event) []string {
	rel, ok := w.relative(event.Name)
	if !ok || w.ignored(rel) {
		return nil
	}
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			files, err := w.addTree(event.Name)
			if err != nil {
				w.logger.Debug("watch new directory", zap.String("path", rel), zap.Error(err))
			}
			return files
		}
	case event.Has(fsnotify.Write), event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
	default:
		return nil
	}
	return []string{rel}
}

// addTree watches dir and its subdirectories and returns the files found.
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, ok := w.relative(p)
		if !ok {
			return nil
		}
		if rel != "." && w.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, rel)
			return nil
		}
		if err := w.fs.Add(p); err != nil {
			return fmt.Errorf("watch: add %s: %w", rel, err)
		}
		return nil
	})
	return files, err
}

func (w *Watcher) relative(p string) (string, bool) {
	rel, err := filepath.Rel(w.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) ignored(rel string) bool {
	if !w.cfg.WatchHidden {
		for _, part := range strings.Split(rel, "/") {
			if strings.HasPrefix(part, ".") && part != "." {
				return true
			}
		}
	}
	for _, pattern := range w.cfg.Ignore {
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}
	return false
}

// debouncer collects distinct paths between flushes. It is owned by the Run
// loop and needs no locking.
type debouncer struct {
	max     int
	pending map[string]struct{}
}

func newDebouncer(max int) *debouncer {
	return &debouncer{max: max, pending: map[string]struct{}{}}
}

// add records p and reports whether the batch is full.
func (d *debouncer) add(p string) bool {
	d.pending[p] = struct{}{}
	return len(d.pending) >= d.max
}

func (d *debouncer) take() []string {
	if len(d.pending) == 0 {
		return nil
	}
	out := make([]string, 0, len(d.pending))
	for p := range d.pending {
		out = append(out, p)
	}
	d.pending = map[string]struct{}{}
	sort.Strings(out)
	return out
}
