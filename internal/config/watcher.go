package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher notifies on changes to the configuration directory so long-lived
// callers can reload the Store and re-run rules against fresh configuration.
type Watcher struct {
	watcher    *fsnotify.Watcher
	configDir  string
	logger     *slog.Logger
	reloadChan chan struct{}
	done       chan struct{}
}

// StartWatcher begins watching configDir and its subdirectories.
func StartWatcher(configDir string, logger *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		watcher:    watcher,
		configDir:  configDir,
		logger:     logger,
		reloadChan: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	if err := filepath.Walk(configDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.watch()
	return w, nil
}

// ReloadChan receives one signal per relevant configuration change.
func (w *Watcher) ReloadChan() <-chan struct{} {
	return w.reloadChan
}

// Stop ends watching and closes the reload channel.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) watch() {
	defer close(w.reloadChan)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			base := filepath.Base(event.Name)
			if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, ".yaml") {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				w.logger.Info("configuration change detected", "file", event.Name, "op", event.Op.String())
				select {
				case w.reloadChan <- struct{}{}:
				default:
					// a reload is already pending
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}
