package labserver

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// docCache holds raw document bytes per notebook id so repeated GETs skip
// the disk. Entries are dropped when the watcher sees the file change.
type docCache struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newDocCache() *docCache {
	return &docCache{docs: map[string][]byte{}}
}

func (c *docCache) get(id string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.docs[id]
	return data, ok
}

func (c *docCache) set(id string, data []byte) {
	c.mu.Lock()
	c.docs[id] = data
	c.mu.Unlock()
}

func (c *docCache) invalidate(id string) {
	c.mu.Lock()
	delete(c.docs, id)
	c.mu.Unlock()
}

// Watch runs an fsnotify watcher on the document directory until ctx is
// cancelled, invalidating cached documents edited outside the server.
func (s *Server) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(s.store.Root()); err != nil {
		return err
	}
	s.logger.Info("watcher: started", slog.String("root", s.store.Root()))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".ipynb") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				id := strings.TrimSuffix(name, ".ipynb")
				s.cache.invalidate(id)
				s.logger.Debug("watcher: invalidated", slog.String("id", id))
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher: error", slog.String("error", err.Error()))
		}
	}
}
