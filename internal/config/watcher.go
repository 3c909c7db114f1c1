package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// reloadDebounce coalesces editor write bursts into a single reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher watches the configuration file and triggers hot reloads.
type Watcher struct {
	configPath     string
	reloadCallback func(*Config)
	watcher        *fsnotify.Watcher

	reloadMu    sync.Mutex
	reloadTimer *time.Timer
}

// NewWatcher constructs a watcher for the given config path. The callback
// receives the freshly parsed configuration after each change.
func NewWatcher(configPath string, reload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		configPath:     configPath,
		reloadCallback: reload,
		watcher:        fsw,
	}, nil
}

// Start begins watching until the context is cancelled. The parent directory
// is watched rather than the file itself so atomic rename-based saves are
// still observed.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.loop(ctx)
	log.Debugf("config watcher started for %s", w.configPath)
	return nil
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	if w.reloadTimer != nil {
		w.reloadTimer.Stop()
	}
	w.reloadTimer = time.AfterFunc(reloadDebounce, func() {
		cfg, err := LoadConfig(w.configPath)
		if err != nil {
			log.Errorf("config reload failed, keeping previous configuration: %v", err)
			return
		}
		log.Info("configuration reloaded")
		if w.reloadCallback != nil {
			w.reloadCallback(cfg)
		}
	})
}
