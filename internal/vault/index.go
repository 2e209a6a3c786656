package vault

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Index caches the known topic names derived from the profiles folder.
// The cache feeds the keyword extraction prompt, so staleness costs
// relevance, not correctness.
type Index struct {
	store  Store
	folder string

	mu     sync.RWMutex
	topics []string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewIndex(store Store, folder string) *Index {
	ix := &Index{store: store, folder: folder}
	if err := ix.Refresh(); err != nil {
		log.Printf("[vault] initial topic index refresh: %v", err)
	}
	return ix
}

// Topics returns a sorted copy of the cached topic names.
func (ix *Index) Topics() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]string, len(ix.topics))
	copy(out, ix.topics)
	return out
}

// Refresh rebuilds the cache from the profiles folder.
func (ix *Index) Refresh() error {
	names, err := ix.store.List(ix.folder)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	topics := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		topics = append(topics, strings.TrimSuffix(name, ".md"))
	}
	sort.Strings(topics)

	ix.mu.Lock()
	ix.topics = topics
	ix.mu.Unlock()
	return nil
}

// Watch keeps the cache fresh from filesystem events on dir. Callers
// that cannot watch keep using Refresh directly.
func (ix *Index) Watch(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		watcher.Close()
		return fmt.Errorf("create watched folder: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ix.watcher = watcher
	ix.done = make(chan struct{})

	go func() {
		for {
			select {
			case <-ix.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := ix.Refresh(); err != nil {
					log.Printf("[vault] topic index refresh: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[vault] watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher if one is running.
func (ix *Index) Close() error {
	if ix.watcher == nil {
		return nil
	}
	close(ix.done)
	return ix.watcher.Close()
}
