package schema

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/crmbridge/sql-to-soql/lib/plog"
)

// Watcher reloads a Store whenever its backing schema file changes, so
// column lists can be edited without restarting the service. Events are
// debounced because editors tend to emit several writes per save.
type Watcher struct {
	store *Store
	path  string
	fsw   *fsnotify.Watcher
	log   plog.Logger

	mu       sync.Mutex
	debounce time.Duration
	timer    *time.Timer

	done chan struct{}
}

// WatchFile starts watching path and reloading store on changes. The parent
// directory is watched rather than the file itself so rename-and-replace
// saves keep working.
func WatchFile(store *Store, path string, logger plog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = plog.Nop{}
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{
		store:    store,
		path:     filepath.Clean(path),
		fsw:      fsw,
		log:      logger,
		debounce: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				w.scheduleReload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Errorf("schema watcher: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.store.Reload(w.path); err != nil {
			// Keep the last good mapping; a half-written file is expected
			// mid-save.
			w.log.Errorf("schema reload failed: %v", err)
			return
		}
		w.log.Infof("schema reloaded from %s (%d tables)", w.path, len(w.store.Tables()))
	})
}
