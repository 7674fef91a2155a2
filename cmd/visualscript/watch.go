package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360/visualscript/errors"
	"github.com/c360/visualscript/health"
)

// reloadDebounce coalesces the burst of events editors produce on save
const reloadDebounce = 200 * time.Millisecond

// watch reloads the graph whenever its source changes, until ctx is done
func (r *Runner) watch(ctx context.Context) error {
	if r.cfg.Graph.StoreID != "" {
		return r.watchStore(ctx)
	}
	return r.watchFile(ctx)
}

func (r *Runner) reloadLogged(ctx context.Context, reason string) {
	if err := r.Reload(ctx); err != nil {
		r.logger.Error("Graph reload failed, keeping previous graph", "reason", reason, "error", err)
		r.health.UpdateDegraded("graph", "reload failed: "+health.SanitizeMessage(err.Error()))
		return
	}
	r.logger.Info("Graph reloaded", "reason", reason)
}

// watchFile watches the graph file's directory so replace-on-save editors that
// rename over the file are still seen
func (r *Runner) watchFile(ctx context.Context) error {
	path, err := filepath.Abs(r.cfg.Graph.Path)
	if err != nil {
		return errors.WrapInvalid(err, "Runner", "watchFile", "resolve "+r.cfg.Graph.Path)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapFatal(err, "Runner", "watchFile", "create watcher")
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return errors.WrapInvalid(err, "Runner", "watchFile", "watch "+filepath.Dir(path))
	}
	r.logger.Info("Watching graph file", "path", path)

	go func() {
		defer watcher.Close()
		var pending *time.Timer
		defer func() {
			if pending != nil {
				pending.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(reloadDebounce, func() {
					if ctx.Err() == nil {
						r.reloadLogged(ctx, "file changed")
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("Graph file watcher error", "error", err)
			}
		}
	}()
	return nil
}

// watchStore reloads when a newer version of the stored graph is written
func (r *Runner) watchStore(ctx context.Context) error {
	updates, err := r.store.Watch(ctx, r.cfg.Graph.StoreID)
	if err != nil {
		return err
	}
	r.logger.Info("Watching stored graph", "id", r.cfg.Graph.StoreID)

	go func() {
		for doc := range updates {
			if doc.Version <= r.version() {
				continue
			}
			r.reloadLogged(ctx, fmt.Sprintf("store version %d", doc.Version))
		}
	}()
	return nil
}
