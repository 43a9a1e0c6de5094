package services

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"soundry/types"
	"soundry/websocket"
)

// Watcher tells websocket clients when audio files or cover images in the
// download directory change so they can list it again. It does not track
// artifacts itself.
type Watcher struct {
	watcher *fsnotify.Watcher
	hub     websocket.Hub
	logger  *log.Logger

	debounce time.Duration
	timerMu  sync.Mutex
	timer    *time.Timer

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewWatcher starts watching the top level of root
func NewWatcher(root Root, hub websocket.Hub, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(root.Dir()); err != nil {
		fw.Close()
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	w := &Watcher{
		watcher:  fw,
		hub:      hub,
		logger:   logger,
		debounce: debounce,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Close stops the watcher
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
		w.closeErr = w.watcher.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 && (IsAudio(event.Name) || IsImage(event.Name)) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// schedule coalesces bursts of events into one notification.
func (w *Watcher) schedule() {
	select {
	case <-w.done:
		return
	default:
	}

	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.hub.Broadcast(types.Event{Type: types.EventCatalog, Message: "download directory changed"})
	})
}
