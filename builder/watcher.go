package builder

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TriggerFunc runs one on-demand build.
type TriggerFunc func(ctx context.Context) error

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// Debounce is the quiet period after the last change before a build starts.
	Debounce time.Duration
	// Suffix selects the manifest files to react to.
	Suffix string
	Logger *slog.Logger
}

// DefaultWatchOptions contains the default watcher settings.
var DefaultWatchOptions = WatchOptions{
	Debounce: 500 * time.Millisecond,
	Suffix:   ".json",
}

// Watcher triggers builds when manifests appear in a local directory. Bursts of
// changes collapse into one build.
type Watcher struct {
	dir     string
	trigger TriggerFunc
	opts    WatchOptions
	log     *slog.Logger
}

// NewWatcher creates a watcher of dir.
func NewWatcher(dir string, trigger TriggerFunc, optFns ...func(o *WatchOptions)) *Watcher {
	opts := DefaultWatchOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{dir: dir, trigger: trigger, opts: opts, log: opts.Logger}
}

// Run watches until ctx is cancelled. Build failures are logged and do not stop
// the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.Info("watcher: started", slog.String("dir", w.dir))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.opts.Debounce)
			fire = timer.C
			return
		}
		timer.Reset(w.opts.Debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.log.Info("watcher: stopped")
			return nil

		case <-fire:
			if err := w.trigger(ctx); err != nil {
				w.log.Warn("watcher: build failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, w.opts.Suffix) {
				continue
			}
			w.log.Debug("watcher: manifest changed", slog.String("path", filepath.Base(ev.Name)))
			schedule()

		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher: error", slog.String("error", werr.Error()))
		}
	}
}
