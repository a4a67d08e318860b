package daemon

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	govconfig "github.com/wardenhq/warden/config"
)

// governanceWatcher reloads dispatch paths when the governance file
// changes on disk. Only the path order is hot-reloaded; threshold
// changes take a restart, operators should not be able to loosen safety
// limits without one.
type governanceWatcher struct {
	daemon  *Daemon
	watcher *fsnotify.Watcher
	file    string
}

func (d *Daemon) newGovernanceWatcher() (*governanceWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files on save, which drops
	// a watch held on the file itself.
	if err := watcher.Add(filepath.Dir(d.cfg.Data.GovernanceFile)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return &governanceWatcher{
		daemon:  d,
		watcher: watcher,
		file:    d.cfg.Data.GovernanceFile,
	}, nil
}

func (w *governanceWatcher) watch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != w.file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.daemon.logger.WithContext(ctx).Error().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *governanceWatcher) reload(ctx context.Context) {
	cfg, err := govconfig.Load(w.file)
	if err != nil {
		w.daemon.logger.WithContext(ctx).Error().
			Err(err).
			Str("file", w.file).
			Msg("Governance reload rejected, keeping current paths")
		return
	}
	w.daemon.dispatcher.Reload(cfg.EnabledPaths())
	w.daemon.metrics.RecordConfigReload(ctx)
}

func (w *governanceWatcher) close() error {
	return w.watcher.Close()
}
