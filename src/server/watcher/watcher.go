package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"lsp-tester/src/internal/common"
)

// DefaultDebounceDelay groups the burst of events a single editor save produces
const DefaultDebounceDelay = 200 * time.Millisecond

// FileChangeEvent represents a file change event
type FileChangeEvent struct {
	Path      string
	Operation string // "write", "create", "remove", "rename"
	Timestamp time.Time
}

// FileWatcher watches a fixed set of files and reports debounced changes.
// Parent directories are watched rather than the files themselves, since
// editors that save by rename would otherwise drop the watch.
type FileWatcher struct {
	watcher       *fsnotify.Watcher
	files         map[string]bool
	dirs          map[string]bool
	onChange      func([]FileChangeEvent)
	debounceDelay time.Duration
	logger        *common.SafeLogger

	// Debouncing
	pendingEvents map[string]*FileChangeEvent
	eventMutex    sync.Mutex
	debounceTimer *time.Timer

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// Option configures a FileWatcher
type Option func(*FileWatcher)

// WithDebounceDelay sets how long the watcher waits for events to settle
func WithDebounceDelay(delay time.Duration) Option {
	return func(fw *FileWatcher) {
		fw.debounceDelay = delay
	}
}

// WithLogger overrides the component logger
func WithLogger(logger *common.SafeLogger) Option {
	return func(fw *FileWatcher) {
		fw.logger = logger
	}
}

// NewFileWatcher creates a new file watcher. onChange receives each debounced batch,
// sorted by path, from its own goroutine.
func NewFileWatcher(onChange func([]FileChangeEvent), opts ...Option) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	fw := &FileWatcher{
		watcher:       watcher,
		files:         make(map[string]bool),
		dirs:          make(map[string]bool),
		onChange:      onChange,
		debounceDelay: DefaultDebounceDelay,
		logger:        common.LSPLogger,
		pendingEvents: make(map[string]*FileChangeEvent),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(fw)
	}

	return fw, nil
}

// AddFile starts reporting changes to path. Call before Start.
func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := common.AbsPath(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(absPath)
	if !fw.dirs[dir] {
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		fw.dirs[dir] = true
		fw.logger.Debug("FileWatcher: Added watch path: %s", dir)
	}

	fw.files[absPath] = true
	return nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start() {
	fw.started = true
	go fw.watchLoop()
}

// watchLoop is the main event processing loop
func (fw *FileWatcher) watchLoop() {
	defer close(fw.done)

	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if !fw.files[filepath.Clean(event.Name)] {
				continue
			}

			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("FileWatcher error: %v", err)
		}
	}
}

// handleEvent processes a file system event with debouncing
func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	fw.eventMutex.Lock()
	defer fw.eventMutex.Unlock()

	var operation string
	switch {
	case event.Has(fsnotify.Write):
		operation = "write"
	case event.Has(fsnotify.Create):
		operation = "create"
	case event.Has(fsnotify.Remove):
		operation = "remove"
	case event.Has(fsnotify.Rename):
		operation = "rename"
	default:
		return // chmod
	}

	path := filepath.Clean(event.Name)
	fw.pendingEvents[path] = &FileChangeEvent{
		Path:      path,
		Operation: operation,
		Timestamp: time.Now(),
	}

	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.debounceTimer = time.AfterFunc(fw.debounceDelay, fw.flushEvents)
}

// flushEvents sends all pending events to the callback
func (fw *FileWatcher) flushEvents() {
	fw.eventMutex.Lock()
	defer fw.eventMutex.Unlock()

	if len(fw.pendingEvents) == 0 || fw.ctx.Err() != nil {
		return
	}

	events := make([]FileChangeEvent, 0, len(fw.pendingEvents))
	for _, event := range fw.pendingEvents {
		events = append(events, *event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	fw.pendingEvents = make(map[string]*FileChangeEvent)

	if fw.onChange != nil {
		fw.logger.Debug("FileWatcher: Flushing %d file change events", len(events))
		go fw.onChange(events)
	}
}

// Stop stops the file watcher. Pending events are dropped.
func (fw *FileWatcher) Stop() error {
	fw.cancel()

	fw.eventMutex.Lock()
	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.pendingEvents = make(map[string]*FileChangeEvent)
	fw.eventMutex.Unlock()

	err := fw.watcher.Close()

	if fw.started {
		<-fw.done
	}

	return err
}
