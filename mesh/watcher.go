package mesh

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before triggering a run.
const DefaultDebounce = 500 * time.Millisecond

// Watcher triggers a callback whenever an STL file in one of the watched
// directories is created, written, removed or renamed.
type Watcher struct {
	dirs     []string
	debounce time.Duration
	onChange func(ctx context.Context)
	fsnotify *fsnotify.Watcher
}

// NewWatcher watches dirs (non-recursively). onChange runs on the watcher
// goroutine, so runs never overlap.
func NewWatcher(dirs []string, debounce time.Duration, onChange func(ctx context.Context)) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	for _, d := range dirs {
		if err := fsWatch.Add(d); err != nil {
			_ = fsWatch.Close()
			return nil, &InputError{Op: "watch", Path: d, Err: err}
		}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{dirs: dirs, debounce: debounce, onChange: onChange, fsnotify: fsWatch}, nil
}

// Run blocks until ctx is done, invoking onChange after each settled burst
// of relevant events.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsnotify.Close()

	// Timers created under go1.23+ semantics drop stale ticks on Reset.
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(e) {
				continue
			}
			Logger().Debugf("watch: %s %s", e.Op, e.Name)
			timer.Reset(w.debounce)

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return nil
			}
			Logger().Errorf("watch error: %v", err)

		case <-timer.C:
			Logger().Info("input changed, re-running alignment")
			w.onChange(ctx)

		case <-ctx.Done():
			return nil
		}
	}
}

func relevantEvent(e fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(e.Name), MeshExtension) {
		return false
	}
	return e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
