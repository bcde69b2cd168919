package decode

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/dionysus/internal/playback"
)

// Source produces a request for a path.
type Source interface {
	Decode(path string) (*playback.Request, error)
}

// Cache keeps decoded clips in memory. Cached requests are shared and must
// not be modified.
type Cache struct {
	source Source
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*playback.Request

	watcher *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// NewCache creates a cache in front of source.
func NewCache(source Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		source:  source,
		logger:  logger.With("component", "clip-cache"),
		entries: make(map[string]*playback.Request),
	}
}

// Decode returns the cached clip for path, decoding it on a miss. Failed
// decodes are not cached.
func (c *Cache) Decode(path string) (*playback.Request, error) {
	key := filepath.Clean(path)

	c.mu.RLock()
	req, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return req, nil
	}

	req, err := c.source.Decode(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = req
	c.mu.Unlock()

	c.logger.Debug("cached clip", "path", key, "frames", req.Frames())
	return req, nil
}

// Invalidate drops path from the cache.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, filepath.Clean(path))
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*playback.Request)
}

// Len returns the number of cached clips.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Watch invalidates entries under dir when their files are written,
// created, renamed or removed. It may be called once.
func (c *Cache) Watch(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	c.watcher = w
	c.done = make(chan struct{})
	c.stopped = make(chan struct{})
	c.running = true

	go c.watch()
	c.logger.Debug("watching sound directory", "dir", dir)
	return nil
}

func (c *Cache) watch() {
	defer close(c.stopped)

	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				c.logger.Debug("sound file changed, invalidating", "path", event.Name, "op", event.Op.String())
				c.Invalidate(event.Name)
			}

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("sound watcher error", "error", err)

		case <-c.done:
			return
		}
	}
}

// Close stops the watcher.
func (c *Cache) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.done)
	w := c.watcher
	stopped := c.stopped
	c.mu.Unlock()

	err := w.Close()
	<-stopped
	return err
}
