package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// Watcher polls a config file and hands every valid, changed version to a
// callback. Polling keeps it working for bind-mounted files that are
// replaced rather than written in place.
//
// A change is judged by [Diff], so edits that leave every setting as it was
// (comments, key order, quoting) are ignored. An invalid file is reported
// once per edit and the previous config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	// reload serializes checks from the poll loop and Reload, and guards
	// stamp.
	reload sync.Mutex
	stamp  fileStamp

	mu      sync.RWMutex
	current *Config

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// fileStamp is the cheap change signal checked before the file is parsed.
type fileStamp struct {
	mtime time.Time
	size  int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{mtime: info.ModTime(), size: info.Size()}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the file at path and starts polling it. onChange may be
// nil; it is called outside any lock, so it may call [Watcher.Current].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch: %w", err)
	}
	w.current, w.stamp = cfg, stamp

	go w.loop()
	return w, nil
}

// Current returns the config in effect.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload re-reads the file now, even when its modification time and size
// are unchanged, and reports whether a changed config was applied. It is
// wired to SIGHUP. After Stop it does nothing.
func (w *Watcher) Reload() (bool, error) {
	return w.check(true)
}

// Stop ends polling. When it returns no callback is running and none will
// run again. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
	// Wait out a Reload that started before stop was closed.
	w.reload.Lock()
	w.reload.Unlock()
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if _, err := w.check(false); err != nil {
				slog.Warn("config: reload failed, keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

func (w *Watcher) check(force bool) (bool, error) {
	w.reload.Lock()
	defer w.reload.Unlock()

	select {
	case <-w.stop:
		return false, nil
	default:
	}

	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			return false, fmt.Errorf("config: stat %q: %w", w.path, err)
		}
		if stampOf(info) == w.stamp {
			return false, nil
		}
	}

	cfg, stamp, err := w.read()
	// Remember the stamp of a broken file too, so it is reported once and
	// not on every tick.
	w.stamp = stamp
	if err != nil {
		return false, err
	}

	old := w.Current()
	d := Diff(old, cfg)
	if d.Empty() {
		return false, nil
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config: reloaded",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"scoring_changed", d.ScoringChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

// read parses and validates the file. The stamp is returned even when the
// content is invalid.
func (w *Watcher) read() (*Config, fileStamp, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fileStamp{}, fmt.Errorf("config: open %q: %w", w.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fileStamp{}, fmt.Errorf("config: stat %q: %w", w.path, err)
	}
	stamp := stampOf(info)

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, stamp, fmt.Errorf("config: parse %q: %w", w.path, err)
	}
	return cfg, stamp, nil
}
