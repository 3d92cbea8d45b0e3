package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long a path must stay quiet before it is imported.
// Devices and sync tools write recordings in several chunks.
const settleDelay = 200 * time.Millisecond

// ResultCallback is called after every watcher-driven import that changed
// something (imported, unrecognized or failed).
type ResultCallback func(FileResult)

// Watch starts an fsnotify watcher on the source root and imports changed
// recordings until ctx is cancelled.
//
// New directories created at runtime are added to the watch list and
// imported. Renames schedule a full pass over the root so the new name is
// picked up; ledger entries of vanished paths are kept.
func (im *Importer) Watch(ctx context.Context, cb ResultCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := im.src.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	im.logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	var rescan bool
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	notify := func(res FileResult) {
		if cb != nil && res.Outcome != OutcomeSkipped {
			cb(res)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			im.logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			if rescan {
				rescan = false
				clear(pending)
				im.rescan(ctx, notify)
				continue
			}
			for rel := range pending {
				res, err := im.ImportFile(ctx, rel)
				if err != nil {
					im.logger.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				notify(res)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						im.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						im.logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Recordings copied in together with the directory
					// produce no events of their own.
					rescan = true
					schedule()
					continue
				}
			}

			rel, relErr := im.src.Rel(absPath)
			if relErr != nil || !im.src.Match(rel) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[rel] = struct{}{}
				schedule()

			case ev.Op&fsnotify.Remove != 0:
				delete(pending, rel)
				im.logger.Debug("watcher: source removed, ledger kept", slog.String("path", rel))

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports the old name only; the new one is
				// found by the rescan.
				delete(pending, rel)
				rescan = true
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// rescan imports the whole root and reports every changed file.
func (im *Importer) rescan(ctx context.Context, notify func(FileResult)) {
	files, err := im.src.List("")
	if err != nil {
		im.logger.Warn("watcher: rescan list failed", slog.String("error", err.Error()))
		return
	}
	for _, f := range files {
		res, err := im.ImportFile(ctx, f.Path)
		if err != nil {
			im.logger.Warn("watcher: rescan import failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		notify(res)
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
