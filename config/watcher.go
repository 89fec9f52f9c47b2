package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/soyjavierquiroz/kurukin-core/registry"
)

// StacksWatcher monitors the stack inventory file and invokes a callback
// with the freshly loaded stacks when its content changes. It watches the
// containing directory for atomic-save compatibility.
type StacksWatcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	onChange func([]registry.Stack)

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	lastHash  string

	mu      sync.Mutex
	pending bool
	lastHit time.Time
}

// NewStacksWatcher creates a watcher for the given stacks file.
func NewStacksWatcher(path string, onChange func([]registry.Stack), logger *slog.Logger) *StacksWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StacksWatcher{
		path:     path,
		debounce: 500 * time.Millisecond,
		logger:   logger,
		onChange: onChange,
		done:     make(chan struct{}),
	}
}

// Start begins watching the stacks file's directory for changes.
func (w *StacksWatcher) Start() error {
	hash, err := fileHash(w.path)
	if err != nil {
		return fmt.Errorf("stacks watcher: initial hash: %w", err)
	}
	w.lastHash = hash

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("stacks watcher: create fsnotify: %w", err)
	}
	w.fsWatcher = fsw

	// Watch the directory so we catch atomic saves (rename-over).
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("stacks watcher: watch %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watcher and waits for the background goroutine.
// Safe to call more than once.
func (w *StacksWatcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

func (w *StacksWatcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending = true
				w.lastHit = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("stacks watcher error", "err", err)

		case <-ticker.C:
			w.mu.Lock()
			ready := w.pending && time.Since(w.lastHit) >= w.debounce
			if ready {
				w.pending = false
			}
			w.mu.Unlock()
			if ready {
				w.processChange()
			}
		}
	}
}

// processChange reloads the stacks file and calls onChange if the content
// actually changed since the last known hash.
func (w *StacksWatcher) processChange() {
	newHash, err := fileHash(w.path)
	if err != nil {
		w.logger.Error("stacks watcher: failed to hash file", "path", w.path, "err", err)
		return
	}
	if newHash == w.lastHash {
		return
	}

	stacks, err := registry.LoadStacksFile(w.path)
	if err != nil {
		w.logger.Error("stacks watcher: failed to load stacks, keeping previous inventory",
			"path", w.path, "err", err)
		return
	}

	w.lastHash = newHash
	w.logger.Info("stacks file changed", "path", w.path, "stacks", len(stacks))
	w.onChange(stacks)
}

func fileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
