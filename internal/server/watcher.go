package server

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"pongogo/internal/knowledge"
	"pongogo/internal/logging"
)

// debounceWindow is the quiet period after the last relevant filesystem
// event before a reload fires. Every new event restarts the window, so a
// burst of writes produces exactly one reload.
const debounceWindow = 3 * time.Second

// Watcher observes the user knowledge root and triggers runtime reloads
// when instruction files change.
type Watcher struct {
	runtime *Runtime
	root    string

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher builds a watcher over the given knowledge root. A missing
// root is not an error: the watcher starts once the directory appears at
// the next manual reload.
func NewWatcher(runtime *Runtime, root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		runtime: runtime,
		root:    root,
		fsw:     fsw,
		done:    make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		logging.Get(logging.CategoryWatcher).Warn("Knowledge root not watchable: %v", err)
	}
	return w, nil
}

// addRecursive watches root and every subdirectory. fsnotify watches are
// not recursive, so each directory needs its own watch.
func (w *Watcher) addRecursive(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			logging.Get(logging.CategoryWatcher).Warn("Failed to watch %s: %v", path, err)
		}
		return nil
	})
}

// Start runs the event loop until Stop is called.
func (w *Watcher) Start() {
	go w.loop()
	logging.Watcher("Watching %s (debounce %s)", w.root, debounceWindow)
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.fsw.Close()
}

func (w *Watcher) loop() {
	var debounce *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			logging.Get(logging.CategoryWatcher).Debug("Change detected: %s %s", ev.Op, ev.Name)

			// New category directories must be watched before files land
			// in them.
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(ev.Name)
				}
			}

			if debounce == nil {
				debounce = time.NewTimer(debounceWindow)
				fire = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(debounceWindow)
			}

		case <-fire:
			debounce = nil
			fire = nil
			if _, err := w.runtime.Reload(true); err != nil {
				logging.Get(logging.CategoryWatcher).Error("Debounced reload failed: %v", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatcher).Error("Watch error: %v", err)

		case <-w.done:
			return
		}
	}
}

// relevant filters to instruction-file changes and directory creations.
// Chmod-only events never trigger a reload.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	if strings.HasSuffix(ev.Name, knowledge.InstructionSuffix) {
		return true
	}
	// Directory events matter for create (new category) and remove.
	if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		if info, err := os.Stat(ev.Name); err == nil {
			return info.IsDir()
		}
	}
	return false
}
