package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of filesystem events an editor or an
// atomic rename produces into a single reload.
const debounceWindow = 200 * time.Millisecond

// Watch reloads the catalog whenever its backing file changes and signals
// each successful reload on the returned channel. The watch runs until ctx
// is canceled.
//
// The parent directory is watched rather than the file itself, so the
// atomic rename Save performs (and editors that write via a temp file)
// does not silently detach the watch. A reload that fails to parse leaves
// the previous state in place and sends no signal.
func (c *Catalog) Watch(ctx context.Context) (<-chan struct{}, error) {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()
	if path == "" {
		return nil, fmt.Errorf("catalog is not file-backed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	changed := make(chan struct{}, 1)
	go c.watchLoop(ctx, watcher, path, changed)
	return changed, nil
}

func (c *Catalog) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, changed chan<- struct{}) {
	defer watcher.Close()
	defer close(changed)

	timer := time.NewTimer(debounceWindow)
	timer.Stop()
	defer timer.Stop()

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounceWindow)

		case <-timer.C:
			if err := c.Reload(); err != nil {
				continue
			}
			select {
			case changed <- struct{}{}:
			default:
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
