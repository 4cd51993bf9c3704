// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package monitor runs the event-ingest loop: it holds the SSE subscription
// to the DVR open, parses each line, and dispatches events to the registered
// detectors in registration order. A companion keep-alive pinger probes
// /status on its own connection.
package monitor

import (
	"bufio"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/channelwatch/internal/alerts"
	"github.com/tomtom215/channelwatch/internal/dvr"
	"github.com/tomtom215/channelwatch/internal/logging"
	"github.com/tomtom215/channelwatch/internal/metrics"
	"github.com/tomtom215/channelwatch/internal/stream"
)

// Reconnect backoff: start small, double to the cap. The delay is not
// reset on a successful connection; a flapping upstream keeps the capped
// pace.
const (
	reconnectInitial = 5 * time.Second
	reconnectMax     = 60 * time.Second
)

// scannerBufferSize bounds a single event line. Activity values are short;
// 1 MiB is far beyond anything upstream sends.
const scannerBufferSize = 1 << 20

// Stats are the ingest counters, readable while the loop runs. The
// alert-hit count lives on the per-detector Prometheus counter.
type Stats struct {
	Total    atomic.Int64
	Filtered atomic.Int64
	Errors   atomic.Int64
}

// Monitor owns the SSE read loop.
type Monitor struct {
	client    *dvr.Client
	detectors []alerts.Detector
	tracker   *stream.Tracker // may be nil

	mu        sync.Mutex
	connected bool

	stats Stats
}

// New creates a monitor dispatching to the given detectors in order.
// tracker, when set, is swept after each reconnect to reconcile stream
// counts the dropped connection may have missed.
func New(client *dvr.Client, tracker *stream.Tracker, detectors ...alerts.Detector) *Monitor {
	return &Monitor{
		client:    client,
		detectors: detectors,
		tracker:   tracker,
	}
}

// Stats exposes the ingest counters.
func (m *Monitor) Stats() *Stats { return &m.stats }

// EventCounts reads the ingest counters at once.
func (m *Monitor) EventCounts() (total, filtered, errors int64) {
	return m.stats.Total.Load(), m.stats.Filtered.Load(), m.stats.Errors.Load()
}

// Connected reports whether the event stream is currently attached.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Monitor) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
	if v {
		metrics.SSEConnected.Set(1)
	} else {
		metrics.SSEConnected.Set(0)
	}
}

// Run connects, reads, and reconnects until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	delay := reconnectInitial
	first := true

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !first {
			metrics.SSEReconnects.Inc()
			logging.With("monitor").Info().Dur("delay", delay).Msg("reconnecting to event stream")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMax {
				delay = reconnectMax
			}
		}
		first = false

		err := m.readStream(ctx)
		m.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.With("monitor").Warn().Err(err).Msg("event stream closed")
	}
}

// readStream holds one subscription open and dispatches its events. Returns
// when the connection drops or ctx is cancelled.
func (m *Monitor) readStream(ctx context.Context) error {
	resp, err := m.client.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	m.setConnected(true)
	logging.With("monitor").Info().Msg("event stream connected")

	// The upstream is the arbiter of truth: after a gap, sessions that
	// ended while we were away never get their end event. A stale sweep
	// reconciles the count.
	if m.tracker != nil {
		m.tracker.CleanupStale(stream.DefaultStaleAge)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), scannerBufferSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ev, ok, perr := dvr.ParseEventLine(scanner.Bytes())
		if perr != nil {
			m.stats.Errors.Add(1)
			metrics.EventErrors.Inc()
			logging.With("monitor").Debug().Err(perr).Msg("dropping malformed event")
			continue
		}
		if !ok {
			continue
		}
		m.dispatch(ctx, ev)
	}
	return scanner.Err()
}

// dispatch hands one event to every claiming detector, synchronously and in
// registration order.
func (m *Monitor) dispatch(ctx context.Context, ev dvr.Event) {
	m.stats.Total.Add(1)
	metrics.EventsTotal.WithLabelValues(ev.Type).Inc()

	if ev.Type == "hello" {
		return
	}

	handled := false
	for _, d := range m.detectors {
		if !d.ShouldHandle(ev) {
			continue
		}
		handled = true
		d.Handle(ctx, ev)
	}
	if !handled {
		m.stats.Filtered.Add(1)
		metrics.EventsFiltered.Inc()
	}
}
