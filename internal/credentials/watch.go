package credentials

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

const watchDebounce = 250 * time.Millisecond

// WatchWorkbook runs RehashAll whenever the workbook file at path is written,
// so passwords typed into the sheet by hand are replaced shortly after the
// edit is saved. It blocks until ctx is done.
func (s *Store) WatchWorkbook(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create workbook watcher")
	}
	defer func() { _ = watcher.Close() }()

	target, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "resolve workbook path")
	}
	// Spreadsheet editors usually replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(target))
	}

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("workbook watcher error", slog.Any("error", err))
		case <-fire:
			n, err := s.RehashAll(ctx)
			if err != nil {
				s.logger.Error("rehash employee passwords", slog.Any("error", err))
				continue
			}
			if n > 0 {
				s.logger.Info("employee passwords rehashed", slog.Int("count", n))
			}
		}
	}
}
