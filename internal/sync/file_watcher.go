package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	eventBufferSize        = 64
	defaultDebounceTimeout = 50 * time.Millisecond
)

// FilterCallback returns true when an event path should be dropped before
// debouncing.
type FilterCallback func(path string) bool

// FileWatcher watches a directory tree and emits debounced change events.
// A burst of events on one path collapses into a single delivery.
type FileWatcher struct {
	watchDir  string
	log       *slog.Logger
	events    chan notify.EventInfo
	rawEvents chan notify.EventInfo
	filter    FilterCallback
	done      chan struct{}
	wg        sync.WaitGroup

	pendingEvents   map[string]notify.EventInfo
	eventTimers     map[string]*time.Timer
	debounceMu      sync.Mutex
	debounceTimeout time.Duration
}

func NewFileWatcher(watchDir string, log *slog.Logger) *FileWatcher {
	return &FileWatcher{
		watchDir:        watchDir,
		log:             log,
		done:            make(chan struct{}),
		pendingEvents:   make(map[string]notify.EventInfo),
		eventTimers:     make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

// SetDebounceTimeout sets the debounce window for events. Must be called
// before Start.
func (fw *FileWatcher) SetDebounceTimeout(timeout time.Duration) {
	fw.debounceTimeout = timeout
}

// FilterPaths sets a callback that drops raw events before debouncing.
// Must be called before Start.
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.filter = callback
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.log.Info("file watcher start", "dir", fw.watchDir)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.events = make(chan notify.EventInfo, eventBufferSize)

	// watch everything: creates, removes and renames matter just as much
	// as writes when the consumer reacts with a full reconciliation pass
	recursivePath := fw.watchDir + "/..."
	if err := notify.Watch(recursivePath, fw.rawEvents, notify.All); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.filterEvents(ctx)

	return nil
}

func (fw *FileWatcher) Stop() {
	fw.log.Info("file watcher stopping")

	close(fw.done)

	// stopping notify closes the raw channel
	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}

	fw.wg.Wait()

	fw.log.Info("file watcher stopped")
}

func (fw *FileWatcher) Events() <-chan notify.EventInfo {
	return fw.events
}

// filterEvents drops filtered paths, debounces the rest, and forwards them
// to the events channel.
func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer func() {
		fw.log.Debug("file watcher filter events done")

		// cancel pending timers and flush what they were holding
		fw.debounceMu.Lock()
		for path, timer := range fw.eventTimers {
			timer.Stop()
			if event, exists := fw.pendingEvents[path]; exists {
				select {
				case fw.events <- event:
					fw.log.Debug("file watcher flushing pending event on exit", "path", path)
				default:
					fw.log.Warn("file watcher channel full during exit, dropping event", "path", path)
				}
			}
		}
		fw.debounceMu.Unlock()

		fw.wg.Done()
		close(fw.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}

			if fw.filter != nil && fw.filter(event.Path()) {
				continue
			}

			// On linux, writing a file triggers a BURST of inotify events
			// until the file is completely written, so events are held back
			// for a debounce window at the cost of that much added latency.
			fw.debounceEvent(event)
		}
	}
}

// debounceEvent resets the per-path flush timer for each new raw event.
func (fw *FileWatcher) debounceEvent(event notify.EventInfo) {
	path := event.Path()

	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, exists := fw.eventTimers[path]; exists {
		timer.Stop()
		delete(fw.eventTimers, path)
	}

	fw.pendingEvents[path] = event

	timer := time.AfterFunc(fw.debounceTimeout, func() {
		fw.flushEvent(path)
	})

	fw.eventTimers[path] = timer
}

// flushEvent sends the pending event for a path and cleans up.
func (fw *FileWatcher) flushEvent(path string) {
	fw.debounceMu.Lock()
	event, exists := fw.pendingEvents[path]
	if !exists {
		fw.debounceMu.Unlock()
		return
	}

	delete(fw.pendingEvents, path)
	delete(fw.eventTimers, path)
	fw.debounceMu.Unlock()

	select {
	case fw.events <- event:
		fw.log.Debug("file watcher", "event", event.Event(), "path", path)
	default:
		fw.log.Warn("file watcher dropped", "reason", "channel full", "path", path)
	}
}
