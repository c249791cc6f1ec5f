package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vahidzee/dypy/internal/dylog"
)

// Watcher reloads an override document whenever the file changes on disk
// and publishes the parsed result. Rapid saves are debounced.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	pending  time.Time
	updates  chan *Overrides
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	logger   *zap.Logger
}

// NewWatcher builds a watcher for the given override file. The file's
// directory is watched, so editor save strategies that replace the file
// still produce events.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	logger = dylog.Named(logger, "watcher")
	w := &Watcher{
		watcher:  fw,
		path:     filepath.Clean(path),
		debounce: 200 * time.Millisecond,
		updates:  make(chan *Overrides, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Updates returns the channel on which reloaded documents are published.
func (w *Watcher) Updates() <-chan *Overrides { return w.updates }

// Start begins watching. Non-blocking; stop with Close or the context.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()
	go w.run(ctx)
}

// Close stops the watcher and releases the filesystem watch.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	o, err := Load(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		w.logger.Warn("reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Debug("reloaded overrides",
		zap.String("path", w.path),
		zap.Int("fields", len(o.Fields)),
		zap.Int("methods", len(o.Methods)))
	select {
	case w.updates <- o:
	default:
		// Drop when the consumer lags; the next change republishes.
	}
}
