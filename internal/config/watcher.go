package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeCallback is invoked with the freshly loaded configuration after the
// config file changes on disk.
type ChangeCallback func(*Config)

// Watcher hot-reloads the configuration when the config file changes.
// Only a subset of settings is safe to change at runtime (cache TTL,
// warming interval); callbacks are responsible for applying what they can.
type Watcher struct {
	path      string
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	callbacks []ChangeCallback

	mu     sync.Mutex
	closed bool
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(path); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		logger:  logger,
		watcher: fsWatcher,
	}, nil
}

// OnChange registers a callback invoked after every successful reload.
func (w *Watcher) OnChange(cb ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching in a background goroutine. It returns immediately.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg := Default()
			if err := loadFile(w.path, cfg); err != nil {
				w.logger.Warn("config reload failed, keeping previous configuration",
					zap.String("path", w.path),
					zap.Error(err),
				)
				continue
			}
			loadEnv(cfg)
			if err := cfg.Validate(); err != nil {
				w.logger.Warn("reloaded config invalid, keeping previous configuration",
					zap.Error(err),
				)
				continue
			}
			w.logger.Info("configuration reloaded", zap.String("path", w.path))
			w.mu.Lock()
			callbacks := append([]ChangeCallback(nil), w.callbacks...)
			w.mu.Unlock()
			for _, cb := range callbacks {
				cb(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
