// Package watch turns writes under the current directories into early poll
// triggers.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sw33tLie/docdiff/internal/utils"
)

// DefaultDebounce is how long the tree must stay quiet before a trigger.
const DefaultDebounce = 2 * time.Second

// Watcher watches directory trees recursively, adding directories created
// after it started.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu    sync.Mutex
	paths map[string]bool
}

// New watches every directory under each of roots.
func New(roots []string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{fsw: fsw, debounce: debounce, paths: make(map[string]bool)}
	for _, root := range roots {
		if err := w.watchRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil // Skip errors, continue walking
		}
		if !d.IsDir() {
			return nil
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.paths[p] {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			return err
		}
		w.paths[p] = true
		return nil
	})
}

// Run sends on trigger once writes have settled for the debounce period. A
// trigger is dropped if the previous one has not been consumed yet. Run
// returns when ctx is done.
func (w *Watcher) Run(ctx context.Context, trigger chan<- struct{}) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.watchRecursive(ev.Name); err != nil {
						utils.Log.Warnf("Could not watch %s: %v", ev.Name, err)
					}
				}
			}
			utils.Log.Debugf("Change detected: %s", ev)
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			utils.Log.Warnf("Watcher error: %v", err)
		case <-timer.C:
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	}
}

// relevant drops attribute changes and hidden files such as editors' swap
// files and our own temp files.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return !strings.HasPrefix(filepath.Base(ev.Name), ".")
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}
