package source

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	Extensions []string
	// InitialScan emits files already present when the watch starts.
	InitialScan bool
	// Debounce coalesces bursts of writes to one file. Files are emitted once
	// they have been quiet for this long.
	Debounce time.Duration
}

// Watch emits invoice files created or rewritten under root, recursively,
// until ctx is done. Both channels are closed when the watch stops.
func Watch(ctx context.Context, root string, opts WatchOptions) (<-chan Item, <-chan error, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	exts := newExtSet(opts.Extensions)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, eris.Wrap(err, "source: create watcher")
	}

	var initial []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.Add(p)
		}
		if opts.InitialScan && exts.allowed(p) {
			initial = append(initial, p)
		}
		return nil
	})
	if err != nil {
		w.Close() //nolint:errcheck
		return nil, nil, eris.Wrapf(err, "source: watch %s", root)
	}

	items := make(chan Item, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(items)
		defer w.Close() //nolint:errcheck

		pending := make(map[string]time.Time)
		for _, p := range initial {
			pending[p] = time.Time{}
		}

		ticker := time.NewTicker(max(opts.Debounce/2, 10*time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						if err := w.Add(ev.Name); err != nil {
							zap.L().Warn("watch: add directory", zap.String("path", ev.Name), zap.Error(err))
						}
						continue
					}
				}
				if exts.allowed(ev.Name) && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
					pending[ev.Name] = time.Now()
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				select {
				case errs <- err:
				default:
					zap.L().Warn("watch: dropped watcher error", zap.Error(err))
				}

			case now := <-ticker.C:
				for p, last := range pending {
					if now.Sub(last) < opts.Debounce {
						continue
					}
					delete(pending, p)
					info, err := os.Stat(p)
					if err != nil || !info.Mode().IsRegular() {
						continue
					}
					select {
					case items <- Item{Name: filepath.Base(p), Path: p, Size: info.Size()}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return items, errs, nil
}
