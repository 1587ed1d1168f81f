package server

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchAssets re-applies the default texture when its file changes on disk.
// It returns when ctx is done or the watcher cannot be started.
func (s *Server) watchAssets(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("asset watcher unavailable", "err", err)
		return
	}
	defer watcher.Close()

	target := s.defaultAssetPath()
	dir := filepath.Dir(target)
	if err := watcher.Add(dir); err != nil {
		s.logger.Warn("asset watcher unavailable", "dir", dir, "err", err)
		return
	}
	s.logger.Debug("watching default texture", "path", target)

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.logger.Info("default texture changed on disk", "path", target, "op", event.Op.String())
			s.reloadDefault(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("asset watcher error", "err", err)
		}
	}
}
