// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// dailyWriter writes to channelwatch-YYYY-MM-DD.log under dir/logs, rolling
// to a new file at the first write past midnight and pruning files older
// than retentionDays.
type dailyWriter struct {
	mu            sync.Mutex
	dir           string
	retentionDays int
	current       *os.File
	currentDay    string
}

const logFilePrefix = "channelwatch-"

func newDailyWriter(baseDir string, retentionDays int) (*dailyWriter, error) {
	dir := filepath.Join(baseDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &dailyWriter{dir: dir, retentionDays: retentionDays}, nil
}

func (w *dailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := time.Now().Format("2006-01-02")
	if w.current == nil || day != w.currentDay {
		if err := w.rollLocked(day); err != nil {
			return 0, err
		}
	}
	return w.current.Write(p)
}

func (w *dailyWriter) rollLocked(day string) error {
	if w.current != nil {
		_ = w.current.Close()
		w.current = nil
	}
	name := filepath.Join(w.dir, fmt.Sprintf("%s%s.log", logFilePrefix, day))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.current = f
	w.currentDay = day
	w.pruneLocked()
	return nil
}

// pruneLocked removes rotated files past retention. Best effort: a failed
// removal is skipped, not retried.
func (w *dailyWriter) pruneLocked() {
	if w.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), ".log")
		day, perr := time.Parse("2006-01-02", stamp)
		if perr != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.Remove(filepath.Join(w.dir, name))
		}
	}
}

// Close closes the current log file.
func (w *dailyWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != nil {
		_ = w.current.Close()
		w.current = nil
	}
}
