package credential

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultSettleDelay = 50 * time.Millisecond

// Reloader re-reads a store from its backing file.
type Reloader interface {
	Reload() error
}

// FileWatcher watches the file backing a store and reloads the store when
// another process writes it.
type FileWatcher struct {
	path    string
	target  Reloader
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	settle  time.Duration
	started bool
	done    chan struct{}
}

// NewFileWatcher creates a watcher for path that reloads target on change.
func NewFileWatcher(path string, target Reloader, logger *slog.Logger) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{
		path:    filepath.Clean(path),
		target:  target,
		watcher: fsw,
		logger:  logger.With("component", "credential-watcher"),
		settle:  defaultSettleDelay,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. The directory is watched rather than the file so
// that replace-by-rename writes are seen too.
func (w *FileWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	w.started = true
	go w.loop(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *FileWatcher) Stop() error {
	err := w.watcher.Close()
	if w.started {
		<-w.done
	}
	return err
}

func (w *FileWatcher) loop(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// bbolt writes land as several events; collapse them.
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				timer.Reset(w.settle)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.target.Reload(); err != nil {
				w.logger.Warn("reloading credential slot failed", "error", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}
