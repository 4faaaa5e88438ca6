package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a folder must stay quiet before queued files
// are handed over.
const DefaultDebounce = 2 * time.Second

// Watcher reports supported files created or written under a folder.
type Watcher struct {
	root     string
	reg      *Registry
	debounce time.Duration
	log      *slog.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher watches root and every non-hidden directory below it.
func NewWatcher(root string, reg *Registry, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{root: root, reg: reg, debounce: debounce, log: log, watcher: fw}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run delivers batches of changed paths to fn until ctx is cancelled. fn
// runs on the watcher goroutine; events arriving meanwhile are queued.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context, paths []string)) error {
	defer func() { _ = w.watcher.Close() }()

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.interesting(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if _, ok := w.reg.Lookup(event.Name); !ok {
				continue
			}
			pending[event.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", "error", err)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				if _, err := os.Stat(p); err == nil {
					paths = append(paths, p)
				}
			}
			clear(pending)
			if len(paths) == 0 {
				continue
			}
			sort.Strings(paths)
			w.log.Debug("files changed", "count", len(paths))
			fn(ctx, paths)
		}
	}
}

func (w *Watcher) interesting(e fsnotify.Event) bool {
	if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	return !strings.HasPrefix(filepath.Base(e.Name), ".")
}
