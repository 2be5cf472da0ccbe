// Package config loads and watches the opendian.jsonc configuration file.
//
// watcher.go - Config file change watcher
//
// This file contains:
// - Watch, a debounced fsnotify watcher over one config file
//
// Editors produce bursts of write events for a single save, so changes are
// debounced before the callback fires. The callback receives the freshly
// reloaded config; parse failures keep the previous config in effect.

package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aotsukiqx/opendian/internal/logger"
)

const debounceDelay = 200 * time.Millisecond

// Watch reloads configPath on change and invokes onChange with the new
// config. The returned stop function ends watching.
func Watch(configPath string, onChange func(*Config)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files on save, which drops
	// a watch added on the file itself
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		var debounceTimer *time.Timer

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(configPath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				// Debounce rapid events
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					cfg, err := Load(configPath)
					if err != nil {
						logger.Slog().Warn("config reload failed, keeping previous", "path", configPath, "error", err)
						return
					}
					logger.Slog().Info("config reloaded", "path", configPath)
					onChange(cfg)
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Slog().Warn("config watcher error", "error", err)

			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
