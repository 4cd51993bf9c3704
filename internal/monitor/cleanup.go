// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package monitor

import (
	"context"
	"time"

	"github.com/tomtom215/channelwatch/internal/alerts"
	"github.com/tomtom215/channelwatch/internal/session"
	"github.com/tomtom215/channelwatch/internal/stream"
)

// cleanupInterval is the sweep cadence for sessions, markers, and detector
// housekeeping.
const cleanupInterval = 5 * time.Minute

// Janitor periodically sweeps the shared state: stale sessions and event
// markers in the store, unseen streams in the tracker, and any detector
// exposing its own Sweep.
type Janitor struct {
	store    *session.Store
	tracker  *stream.Tracker // may be nil
	sweepers []alerts.Sweeper
	interval time.Duration
}

// NewJanitor creates the sweep task.
func NewJanitor(store *session.Store, tracker *stream.Tracker, sweepers ...alerts.Sweeper) *Janitor {
	return &Janitor{
		store:    store,
		tracker:  tracker,
		sweepers: sweepers,
		interval: cleanupInterval,
	}
}

// Run sweeps on the cadence until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) error {
	tick := time.NewTicker(j.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	j.store.Cleanup(session.DefaultSessionTTL, session.DefaultEventTTL, session.DefaultNotificationTTL)
	if j.tracker != nil {
		j.tracker.CleanupStale(stream.DefaultStaleAge)
	}
	for _, s := range j.sweepers {
		s.Sweep(ctx)
	}
}
