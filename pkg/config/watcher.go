package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"AutoFlip/pkg/logging"
)

// DefaultDebounce 文件变化防抖时间
const DefaultDebounce = 300 * time.Millisecond

// DirWatcher monitors a directory and calls onChange once matching files
// settle after a burst of writes.
type DirWatcher struct {
	dir      string
	match    func(name string) bool
	onChange func()
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
}

// NewDirWatcher watches dir; match receives base names
func NewDirWatcher(dir string, match func(name string) bool, onChange func()) *DirWatcher {
	return &DirWatcher{
		dir:      dir,
		match:    match,
		onChange: onChange,
		debounce: DefaultDebounce,
	}
}

// Start begins watching
func (w *DirWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})

	logging.LogInfo("watcher").Str("path", w.dir).Msg("Started watching directory")
	go w.watch(watcher, w.stopCh, w.done)
	return nil
}

// Stop stops watching and waits for the watch loop to exit
func (w *DirWatcher) Stop() {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.watcher.Close()
	w.watcher = nil
	done := w.done
	w.mu.Unlock()

	<-done
	logging.LogInfo("watcher").Str("path", w.dir).Msg("Stopped watching directory")
}

// watch is the main watch loop
func (w *DirWatcher) watch(watcher *fsnotify.Watcher, stopCh, done chan struct{}) {
	defer close(done)

	// Debounce: wait for events to settle before notifying
	var debounceTimer *time.Timer
	var pending sync.WaitGroup
	defer func() {
		if debounceTimer != nil && debounceTimer.Stop() {
			pending.Done()
		}
		pending.Wait()
	}()

	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if w.match != nil && !w.match(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// Debounce: reset timer on each event
			if debounceTimer != nil && debounceTimer.Stop() {
				pending.Done()
			}
			pending.Add(1)
			debounceTimer = time.AfterFunc(w.debounce, func() {
				defer pending.Done()
				logging.LogDebug("watcher").Str("file", event.Name).Msg("Change detected")
				w.onChange()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.LogError("watcher").Err(err).Msg("Watcher error")
		}
	}
}

// Watcher reloads a config file whenever it changes
type Watcher struct {
	*DirWatcher
}

// NewWatcher calls onChange with each successfully reloaded Config.
// Invalid files are logged and skipped.
func NewWatcher(path string, onChange func(*Config)) *Watcher {
	base := filepath.Base(path)
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			logging.LogWarn("config").Err(err).Str("path", path).Msg("Config reload failed, keeping current config")
			return
		}
		logging.LogInfo("config").Str("path", path).Msg("Config reloaded")
		onChange(cfg)
	}
	return &Watcher{
		DirWatcher: NewDirWatcher(filepath.Dir(path), func(name string) bool { return name == base }, reload),
	}
}
