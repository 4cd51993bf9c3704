// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package alerts holds the four stateful detectors that turn DVR events into
// notifications: channel watching, VOD watching, recording lifecycle, and
// disk space.
//
// Each detector owns its domain state behind its own event lock and publishes
// finished alerts to the delivery pipeline; provider HTTP never runs inside a
// detector. DVR lookups needed for an event are fetched before the lock is
// taken so the critical sections stay short.
package alerts

import (
	"context"

	"github.com/tomtom215/channelwatch/internal/dvr"
	"github.com/tomtom215/channelwatch/internal/notify"
)

// Emitter queues an alert for delivery. *notify.Pipeline satisfies it.
type Emitter interface {
	Publish(a notify.Alert) error
}

// Detector consumes events from the monitor.
type Detector interface {
	// Name identifies the detector in logs and metrics.
	Name() string

	// ShouldHandle reports whether this detector wants the event. The
	// monitor only calls Handle when it returns true.
	ShouldHandle(ev dvr.Event) bool

	// Handle processes one event. Called synchronously from the read loop
	// in registration order; implementations serialize internally on their
	// event lock.
	Handle(ctx context.Context, ev dvr.Event)
}

// Sweeper is implemented by detectors with periodic housekeeping. The
// cleanup scheduler invokes it on its own cadence.
type Sweeper interface {
	Sweep(ctx context.Context)
}
