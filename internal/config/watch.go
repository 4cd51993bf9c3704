// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tomtom215/channelwatch/internal/logging"
)

// debounceWindow coalesces the write bursts editors and the settings UI
// produce into a single reload.
const debounceWindow = 500 * time.Millisecond

// Watch signals on the returned channel whenever the config file changes.
// The channel is closed when ctx is canceled. Watching the parent directory
// rather than the file itself survives atomic rename-over saves.
func Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	changes := make(chan struct{}, 1)
	log := logging.With("config-watch")

	go func() {
		defer watcher.Close()
		defer close(changes)

		var timer *time.Timer
		var timerC <-chan time.Time
		target := filepath.Clean(path)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounceWindow)
					timerC = timer.C
				} else {
					timer.Reset(debounceWindow)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			case <-timerC:
				timer = nil
				timerC = nil
				log.Info().Str("path", path).Msg("config file changed")
				select {
				case changes <- struct{}{}:
				default:
				}
			}
		}
	}()
	return changes, nil
}
