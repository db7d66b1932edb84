package config

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/fsnotify/fsnotify"

	logx "adhanbot/pkg/logx"
)

const (
	watchRetryBase = 250 * time.Millisecond
	watchRetryMax  = 5 * time.Second
)

// Watch follows the config file until ctx is done, reloading after each
// burst of edits settles. The directory is watched rather than the file so
// atomic-rename saves are seen. A watcher that dies is reopened with
// jittered backoff.
func (m *Manager) Watch(ctx context.Context) error {
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	for ctx.Err() == nil {
		w, err := m.openWatcher(ctx, dir)
		if err != nil {
			continue
		}
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
		m.follow(ctx, w, file)
		_ = w.Close()

		if ctx.Err() == nil {
			m.log.Warn("config watcher stopped; restarting", logx.String("dir", dir))
			t := time.NewTimer(watchRetryBase)
			select {
			case <-ctx.Done():
			case <-t.C:
			}
			t.Stop()
		}
	}
	return nil
}

func (m *Manager) openWatcher(ctx context.Context, dir string) (*fsnotify.Watcher, error) {
	var w *fsnotify.Watcher
	err := retry.Do(
		func() error {
			nw, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			if err := nw.Add(dir); err != nil {
				_ = nw.Close()
				return err
			}
			w = nw
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(10),
		retry.Delay(watchRetryBase),
		retry.MaxDelay(watchRetryMax),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			m.log.Warn("config watch init failed", logx.String("dir", dir), logx.Uint64("attempt", uint64(n)+1), logx.Err(err))
		}),
	)
	return w, err
}

// follow consumes watcher events until the watcher breaks or ctx is done.
func (m *Manager) follow(ctx context.Context, w *fsnotify.Watcher, file string) {
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()
	arm := func() { debounce.Reset(m.debounce) }

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod
	for {
		select {
		case <-ctx.Done():
			return
		case <-debounce.C:
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op&relevant != 0 {
				arm()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were lost; assume the file changed.
				arm()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}
