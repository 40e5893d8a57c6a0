package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads filename whenever it changes and passes every successfully
// loaded value to onChange. Bursts of events are coalesced over debounce.
// Invalid files are logged and skipped. Watch blocks until ctx is cancelled.
//
// The parent directory is watched so that editors replacing the file
// atomically are still observed.
func Watch[T any](ctx context.Context, filename string, debounce time.Duration, newT func() *T, onChange func(*T), logger *slog.Logger) error {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return fmt.Errorf("config: resolve %s: %w", filename, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filename, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			target := newT()
			if err := Load(abs, target); err != nil {
				logger.Warn("config: reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("config: reloaded", slog.String("file", abs))
			onChange(target)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("config: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
