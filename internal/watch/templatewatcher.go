// Package watch monitors the prompt template override directory and
// triggers prompt-set regeneration when templates change.
package watch

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TemplateChangeCallback is called with the batched set of changed
// template files after the debounce window closes
type TemplateChangeCallback func(changedFiles []string)

// TemplateWatcher monitors a template directory for edits. Rapid
// successive writes (editors often write twice) are debounced into one
// callback.
type TemplateWatcher struct {
	watcher  *fsnotify.Watcher
	callback TemplateChangeCallback
	debounce time.Duration

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewTemplateWatcher creates a watcher for the given template directory.
// A missing directory is not an error; the watcher is simply idle.
func NewTemplateWatcher(dir string, callback TemplateChangeCallback) (*TemplateWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	tw := &TemplateWatcher{
		watcher:  watcher,
		callback: callback,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]struct{}),
	}

	if dir != "" {
		if _, err := os.Stat(dir); err == nil {
			if err := watcher.Add(dir); err != nil {
				watcher.Close()
				return nil, err
			}
		}
	}

	return tw, nil
}

// Start begins watching for template changes
func (tw *TemplateWatcher) Start(ctx context.Context) {
	ctx, tw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-tw.watcher.Events:
				if !ok {
					return
				}
				tw.handleEvent(event)
			case err, ok := <-tw.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[watch] template watcher error: %v", err)
			}
		}
	}()
}

// Stop stops watching for template changes
func (tw *TemplateWatcher) Stop() {
	if tw.cancel != nil {
		tw.cancel()
	}
	tw.watcher.Close()
}

func (tw *TemplateWatcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".md") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
		return
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	tw.pending[event.Name] = struct{}{}

	if tw.timer != nil {
		tw.timer.Stop()
	}
	tw.timer = time.AfterFunc(tw.debounce, tw.flush)
}

func (tw *TemplateWatcher) flush() {
	tw.mu.Lock()
	pending := tw.pending
	tw.pending = make(map[string]struct{})
	tw.mu.Unlock()

	if tw.callback == nil || len(pending) == 0 {
		return
	}

	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	tw.callback(files)
}

// SetDebounce sets the debounce duration for batching template changes
func (tw *TemplateWatcher) SetDebounce(d time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.debounce = d
}
