// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package monitor

import (
	"context"
	"time"

	"github.com/tomtom215/channelwatch/internal/logging"
)

// keepAliveInterval is how often the pinger probes /status.
const keepAliveInterval = 15 * time.Second

// Pinger satisfies the keep-alive probe. *dvr.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KeepAlive probes the DVR on its own connection so NAT/proxy idle timers
// never reap the long-lived SSE stream. Failures are logged only; the SSE
// loop notices real outages itself.
type KeepAlive struct {
	pinger   Pinger
	interval time.Duration
}

// NewKeepAlive creates the pinger task.
func NewKeepAlive(pinger Pinger) *KeepAlive {
	return &KeepAlive{pinger: pinger, interval: keepAliveInterval}
}

// Run pings until ctx is cancelled.
func (k *KeepAlive) Run(ctx context.Context) error {
	tick := time.NewTicker(k.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := k.pinger.Ping(ctx); err != nil {
				logging.With("keepalive").Warn().Err(err).Msg("status probe failed")
			}
		}
	}
}
