// Package watcher keeps the task index in step with out-of-band edits to the
// working copy. It is opt-in; the core never invalidates the index on its own.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/raido/internal/taskservice"
)

const reconcileDelay = 200 * time.Millisecond

// Indexer refreshes index rows for working-copy paths.
type Indexer interface {
	ReindexPath(ctx context.Context, p string) (id string, ok bool, err error)
	RemovePath(ctx context.Context, p string) (id string, ok bool, err error)
	Sync(ctx context.Context) (taskservice.SyncResult, error)
}

// Watch watches root until ctx is cancelled. Written task documents are
// reindexed, removed ones are dropped from the index, and cb (if non-nil) is
// called after each index change with kind "created", "updated" or "deleted".
//
// Directories created at runtime are added to the watch list. Renames
// schedule a debounced Sync that removes stale rows.
func Watch(ctx context.Context, root string, idx Indexer, logger *slog.Logger, cb taskservice.Notifier) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", "root", root)

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}
	notify := func(kind, id string) {
		if cb != nil {
			cb(kind, id)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if _, err := idx.Sync(ctx); err != nil {
				logger.Warn("watcher: reconcile failed", "error", err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || hidden(rel) {
				continue
			}
			rel = filepath.ToSlash(rel)

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed", "path", rel, "error", addErr)
					} else {
						logger.Debug("watcher: watching new dir", "path", rel)
					}
					// Files may land before the directory is watched.
					scheduleReconcile()
					continue
				}
			}
			if !strings.HasSuffix(rel, ".md") {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				id, ok, err := idx.ReindexPath(ctx, rel)
				if err != nil {
					logger.Warn("watcher: index failed", "path", rel, "error", err)
					continue
				}
				if !ok {
					continue
				}
				kind := taskservice.EventUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = taskservice.EventCreated
				}
				logger.Debug("watcher: indexed", "id", id, "op", kind)
				notify(kind, id)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path only; the new path arrives
				// as a Create if it stays inside a watched directory.
				id, ok, err := idx.RemovePath(ctx, rel)
				if err != nil {
					logger.Warn("watcher: delete failed", "path", rel, "error", err)
				} else if ok {
					logger.Debug("watcher: deleted", "id", id)
					notify(taskservice.EventDeleted, id)
				}
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", "error", watchErr)
		}
	}
}

func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
