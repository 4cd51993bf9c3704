// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package metrics exposes Prometheus instrumentation for the event pipeline.
//
// The counters mirror the event monitor's statistics (total, alert, filtered,
// error) plus delivery and cache observability. Metrics are served on the
// control plane /metrics endpoint. They never influence behavior.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts every event read from the SSE stream, by type.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channelwatch_events_total",
		Help: "Events received from the DVR event stream",
	}, []string{"type"})

	// EventsAlerted counts events that produced an alert, by detector.
	EventsAlerted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channelwatch_events_alerted_total",
		Help: "Events that resulted in an alert",
	}, []string{"detector"})

	// EventsFiltered counts events no detector claimed.
	EventsFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channelwatch_events_filtered_total",
		Help: "Events not handled by any detector",
	})

	// EventErrors counts malformed or failed events.
	EventErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channelwatch_event_errors_total",
		Help: "Events dropped due to parse or processing errors",
	})

	// SSEReconnects counts event-stream reconnection attempts.
	SSEReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channelwatch_sse_reconnects_total",
		Help: "Reconnections to the DVR event stream",
	})

	// SSEConnected reports whether the event stream is currently attached.
	SSEConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "channelwatch_sse_connected",
		Help: "1 while the event stream connection is established",
	})

	// ProviderSends counts notification deliveries by provider and outcome.
	ProviderSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channelwatch_provider_sends_total",
		Help: "Notification provider delivery attempts",
	}, []string{"provider", "outcome"})

	// CacheLookups counts metadata cache hits and misses.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channelwatch_cache_lookups_total",
		Help: "Metadata cache lookups",
	}, []string{"cache", "result"})

	// ActiveStreams mirrors the stream tracker's unique-device count.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "channelwatch_active_streams",
		Help: "Unique devices currently streaming",
	})

	// PendingRecordings reports the recording retry queue depth.
	PendingRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "channelwatch_pending_recordings",
		Help: "Completion events waiting for the upstream processed flag",
	})

	// WatchdogRecoveries counts forced lock replacements.
	WatchdogRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channelwatch_watchdog_recoveries_total",
		Help: "Recording-events watchdog lock recoveries",
	})

	// DiskFreePercent reports the last observed free-disk percentage.
	DiskFreePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "channelwatch_disk_free_percent",
		Help: "Free space on the DVR disk as a percentage",
	})
)
