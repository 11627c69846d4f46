// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Watches a configuration file and dispatches reload hooks on change.

package control

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher fires its hooks whenever the watched file is written or replaced.
// The parent directory is watched so editors that rename over the file still trigger.
type FileWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	log     *slog.Logger

	mu    sync.Mutex
	hooks []func()

	done chan struct{}
	once sync.Once
}

// WatchFile starts watching path. Close stops it.
func WatchFile(path string, log *slog.Logger) (*FileWatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	fw := &FileWatcher{
		path:    abs,
		watcher: w,
		log:     log,
		done:    make(chan struct{}),
	}
	go fw.loop()
	return fw, nil
}

// OnChange registers a hook. Hooks run on the watcher goroutine.
func (fw *FileWatcher) OnChange(fn func()) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.hooks = append(fw.hooks, fn)
}

// Trigger runs all hooks synchronously.
func (fw *FileWatcher) Trigger() {
	fw.mu.Lock()
	hooks := append([]func(){}, fw.hooks...)
	fw.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Close stops the watcher; it is idempotent.
func (fw *FileWatcher) Close() error {
	var err error
	fw.once.Do(func() {
		close(fw.done)
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) loop() {
	for {
		select {
		case <-fw.done:
			return
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != fw.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			fw.log.Debug("config file changed", "path", fw.path, "op", ev.Op.String())
			fw.Trigger()
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Warn("config watcher error", "path", fw.path, "error", err)
		}
	}
}
