package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oshokin/alarm-push/internal/logger"
)

// reloadDebounce coalesces the burst of events an editor produces on save.
const reloadDebounce = 250 * time.Millisecond

// errWatcherClosed is returned when fsnotify closes its channels.
var errWatcherClosed = errors.New("alarms watcher closed")

// alarmsWatcher requests a schedule reload when the alarms file changes.
type alarmsWatcher struct {
	// watcher observes the directory holding the file, so that editors
	// replacing the file by rename are noticed.
	watcher *fsnotify.Watcher
	// file is the base name of the alarms file.
	file string
}

// newAlarmsWatcher starts watching the directory of path.
func newAlarmsWatcher(path string) (*alarmsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err = w.Add(dir); err != nil {
		_ = w.Close()

		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &alarmsWatcher{
		watcher: w,
		file:    filepath.Base(path),
	}, nil
}

// run posts to reloads until ctx is canceled. Sends never block; a pending
// request already covers any later change.
func (a *alarmsWatcher) run(ctx context.Context, reloads chan<- struct{}) error {
	defer func() {
		_ = a.watcher.Close()
	}()

	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()

	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.watcher.Events:
			if !ok {
				return errWatcherClosed
			}

			if filepath.Base(ev.Name) != a.file {
				continue
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				logger.DebugKV(ctx, "Alarms file changed", "event", ev.Op.String())
				debounce.Reset(reloadDebounce)
			}
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return errWatcherClosed
			}

			logger.WarnKV(ctx, "Alarms watcher error", "error", err)
		case <-debounce.C:
			select {
			case reloads <- struct{}{}:
			default:
			}
		}
	}
}
