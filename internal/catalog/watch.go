package catalog

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the overlay file whenever it changes, until ctx is
// canceled. The watch is placed on the file's directory, not the file:
// editors and atomic writers replace the file by rename, which would
// leave a file-level watch pointing at a dead inode. Reload failures
// keep the previous catalog and log.
func (c *Catalog) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}
	base := filepath.Base(path)

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.LoadOverlay(path); err != nil {
					c.logger.Warn("overlay reload failed, keeping previous catalog",
						"path", path, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("overlay watcher error", "error", err)
			}
		}
	}()
	return nil
}
