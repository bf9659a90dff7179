package watch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher follows one event directory. The producer writes files named
// <unix_ms>_<uuid>.json via atomic rename, so lexicographic filename order
// is arrival order; dot-prefixed names are producer temp files and are
// skipped.
type Watcher struct {
	dir     string
	handler Handler
	logger  *zap.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// New creates a watcher for dir. Nothing happens until Start.
func New(dir string, handler Handler, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:     dir,
		handler: handler,
		logger:  logger,
	}
}

// Start creates the directory if needed, drains files already present in
// filename order, then follows filesystem notifications. Calling Start on a
// running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}

	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true
	go w.loop(fsw, w.stop, w.done)

	w.logger.Info("event watcher started", zap.String("dir", w.dir))
	return nil
}

// Stop halts the watcher and waits for the loop to exit. Files already
// dispatched stay deleted; files not yet picked up are left for the next
// Start. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stop)
	<-w.done
	w.running = false
	w.logger.Info("event watcher stopped")
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)
	defer fsw.Close()

	// The notification stream is live before this scan, so nothing written
	// between Add and here is missed; a file seen by both paths is consumed
	// once because dispatch deletes it.
	w.scan()

	for {
		select {
		case evt, ok := <-fsw.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				w.consume(evt.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("event watcher error", zap.Error(err))
		case <-stop:
			return
		}
	}
}

func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("event dir scan failed", zap.Error(err))
		return
	}
	// ReadDir sorts by filename, which the producer's naming makes arrival
	// order.
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.consume(filepath.Join(w.dir, entry.Name()))
	}
}

// consume reads, dispatches and deletes one event file.
func (w *Watcher) consume(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}

	// Only regular files are events; a stray subdirectory must not be
	// read or removed.
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	body, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("event file unreadable", zap.String("file", name), zap.Error(err))
		}
		return
	}

	evt, err := decodeEvent(body)
	switch {
	case errors.Is(err, errUnknownType):
		// Future event kinds are not an error.
	case err != nil:
		w.logger.Warn("malformed event file dropped", zap.String("file", name), zap.Error(err))
	default:
		w.handler(evt)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("event file not removed", zap.String("file", name), zap.Error(err))
	}
}
