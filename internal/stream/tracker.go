// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package stream counts concurrently streaming devices from activity
// strings and publishes the count to stream_count.txt, the integration
// surface the external UI reads. Writes are atomic full-file replaces.
package stream

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/tomtom215/channelwatch/internal/logging"
	"github.com/tomtom215/channelwatch/internal/metrics"
)

// DefaultStaleAge is how long a stream may go unseen before the cleanup
// sweep drops it.
const DefaultStaleAge = 5 * time.Minute

var (
	deviceFromPattern   = regexp.MustCompile(`from\s+([^(:]+)`)
	deviceLabelPattern  = regexp.MustCompile(`Device:\s*([^,]+)`)
	channelTokenPattern = regexp.MustCompile(`(?i)\bch(?:annel)?\s*\d`)
)

type streamState struct {
	activity string
	device   string
	lastSeen time.Time
}

// Tracker maintains the unique-device stream count.
type Tracker struct {
	mu             sync.Mutex
	activeStreams  map[string]streamState // sessionID -> state
	deviceSessions map[string]string      // device -> sessionID
	countFile      string

	now func() time.Time
}

// NewTracker creates a tracker writing counts to countFile. The file is
// reset to zero at startup so a restart never reports phantom streams.
func NewTracker(countFile string) *Tracker {
	t := &Tracker{
		activeStreams:  make(map[string]streamState),
		deviceSessions: make(map[string]string),
		countFile:      countFile,
		now:            time.Now,
	}
	t.writeCount(0)
	return t
}

// extractDevice pulls a device name out of an activity string.
func extractDevice(activity string) string {
	if m := deviceFromPattern.FindStringSubmatch(activity); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := deviceLabelPattern.FindStringSubmatch(activity); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// isWatching reports whether the activity string describes a live channel
// stream: a watching/recording verb plus a ch<number> token.
func isWatching(activity string) bool {
	lower := strings.ToLower(activity)
	return (strings.Contains(lower, "watching") || strings.Contains(lower, "recording")) &&
		channelTokenPattern.MatchString(activity)
}

// ProcessActivity folds one activity event into the tracker. A watching
// activity upserts the session (evicting any other session the device
// held); anything else removes it. Returns true when the unique-device
// count changed, in which case the count file has been rewritten.
func (t *Tracker) ProcessActivity(activity, sessionID string) bool {
	t.mu.Lock()
	oldCount := len(t.deviceSessions)

	if isWatching(activity) {
		if device := extractDevice(activity); device != "" {
			if prev, held := t.deviceSessions[device]; held && prev != sessionID {
				delete(t.activeStreams, prev)
			}
			t.activeStreams[sessionID] = streamState{
				activity: activity,
				device:   device,
				lastSeen: t.now(),
			}
			t.deviceSessions[device] = sessionID
		}
	} else {
		if state, ok := t.activeStreams[sessionID]; ok {
			if t.deviceSessions[state.device] == sessionID {
				delete(t.deviceSessions, state.device)
			}
			delete(t.activeStreams, sessionID)
		}
	}

	newCount := len(t.deviceSessions)
	changed := newCount != oldCount
	if changed {
		t.writeCount(newCount)
	}
	t.mu.Unlock()
	return changed
}

// Count returns the number of unique streaming devices.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.deviceSessions)
}

// CleanupStale removes sessions unseen for longer than maxAge and rewrites
// the count file when the count changed. The event monitor also calls this
// after an SSE reconnect to reconcile counts the stream may have dropped.
func (t *Tracker) CleanupStale(maxAge time.Duration) int {
	t.mu.Lock()
	cutoff := t.now().Add(-maxAge)
	oldCount := len(t.deviceSessions)

	removed := 0
	for id, state := range t.activeStreams {
		if state.lastSeen.Before(cutoff) {
			if t.deviceSessions[state.device] == id {
				delete(t.deviceSessions, state.device)
			}
			delete(t.activeStreams, id)
			removed++
		}
	}
	newCount := len(t.deviceSessions)
	if newCount != oldCount {
		t.writeCount(newCount)
	}
	t.mu.Unlock()

	if removed > 0 {
		logging.With("stream").Debug().Int("removed", removed).Msg("stale streams swept")
	}
	return removed
}

// writeCount replaces the count file contents atomically. Called with mu
// held so file contents always track the in-memory count in order.
func (t *Tracker) writeCount(count int) {
	metrics.ActiveStreams.Set(float64(count))
	if t.countFile == "" {
		return
	}
	if err := renameio.WriteFile(t.countFile, []byte(strconv.Itoa(count)), 0o644); err != nil {
		logging.With("stream").Warn().Err(err).Str("path", t.countFile).Msg("write stream count")
	}
}
