// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package activity appends alert records to activity_history.json, the
// append-only feed the operator UI renders. The file is an output protocol:
// newest first, capped at 500 entries, rewritten atomically under a
// file-level lock.
package activity

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/tomtom215/channelwatch/internal/logging"
)

// MaxEntries caps the history file size.
const MaxEntries = 500

// dedupeWindow suppresses duplicate records for the same entity.
const dedupeWindow = 5 * time.Second

// Record is one UI-visible activity entry.
type Record struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Icon      string `json:"icon"`
}

// Recorder serializes writes to the activity history file.
type Recorder struct {
	mu     sync.Mutex
	path   string
	recent map[string]time.Time // dedup key -> last record time

	now func() time.Time
}

// NewRecorder creates a recorder for the given history file path.
func NewRecorder(path string) *Recorder {
	return &Recorder{
		path:   path,
		recent: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Add appends a record. Duplicate (type, subject, device) records inside the
// dedup window are dropped so rapid re-notifications do not spam the feed.
// Returns false when the record was deduplicated.
func (r *Recorder) Add(recordType, title, message, icon, subject, device string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := fmt.Sprintf("%s|%s|%s", recordType, subject, device)
	if last, ok := r.recent[key]; ok && now.Sub(last) < dedupeWindow {
		return false
	}
	r.recent[key] = now
	for k, at := range r.recent {
		if now.Sub(at) > time.Minute {
			delete(r.recent, k)
		}
	}

	entries, err := r.readLocked()
	if err != nil {
		logging.With("activity").Warn().Err(err).Msg("read history, starting fresh")
		entries = nil
	}

	entry := Record{
		ID:        uuid.New().String(),
		Type:      recordType,
		Title:     title,
		Message:   message,
		Timestamp: now.Format(time.RFC3339),
		Icon:      icon,
	}
	entries = append([]Record{entry}, entries...)
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	if err := r.writeLocked(entries); err != nil {
		logging.With("activity").Error().Err(err).Msg("write history")
		return false
	}
	return true
}

// All returns the current history, newest first.
func (r *Recorder) All() ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked()
}

func (r *Recorder) readLocked() ([]Record, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Record
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("activity: corrupt history: %w", err)
	}
	return entries, nil
}

func (r *Recorder) writeLocked(entries []Record) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(r.path, data, 0o644)
}
