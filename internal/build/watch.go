package build

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/benaskins/kiln/internal/spec"
)

const watcherDebounce = 500 * time.Millisecond

// Watch runs the build file at path, then runs it again every time a file in
// its base directory or the build file itself changes. Failed builds are
// reported and watching continues. It blocks until the context is cancelled.
func (r *Runner) Watch(ctx context.Context, path string) error {
	b, err := spec.Load(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs := []string{filepath.Dir(path)}
	if base := b.BaseDir(); filepath.Clean(base) != filepath.Clean(dirs[0]) {
		dirs = append(dirs, base)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	r.logger.Info("watching for changes", "dirs", dirs)
	r.runOnce(ctx, b)
	drain(watcher)

	trigger := make(chan struct{}, 1)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			r.logger.Debug("file changed", "file", event.Name, "op", event.Op)

			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watcherDebounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

		case <-trigger:
			b, err := spec.Load(path)
			if err != nil {
				r.log.Error("reloading %s: %v", path, err)
				continue
			}
			r.runOnce(ctx, b)
			// Changes made by the build itself must not trigger another run.
			drain(watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("file watcher error", "error", err)
		}
	}
}

// runOnce runs b, leaving failures to the output already printed by Run.
func (r *Runner) runOnce(ctx context.Context, b *spec.BuildSpec) {
	if _, err := r.Run(ctx, b); err != nil {
		r.logger.Debug("build failed", "build", b.Build.Name, "error", err)
	}
}

func drain(w *fsnotify.Watcher) {
	for {
		select {
		case <-w.Events:
		default:
			return
		}
	}
}
