// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package notify

import (
	"context"
	"fmt"

	"github.com/tomtom215/channelwatch/internal/logging"
	"github.com/tomtom215/channelwatch/internal/metrics"
)

// SendOptions carries optional per-alert attachments.
type SendOptions struct {
	// ImageURL, when set, is downloaded or embedded by providers that
	// support artwork.
	ImageURL string
}

// Provider is a single notification backend.
type Provider interface {
	// Type is the stable provider name used in logs and metrics.
	Type() string

	// IsConfigured reports whether the provider has the credentials it
	// needs. Unconfigured providers are skipped silently.
	IsConfigured() bool

	// Send delivers one notification. Implementations must honor the
	// context deadline and never block past it.
	Send(ctx context.Context, title, message string, opts SendOptions) error
}

// Manager fans one alert out to every configured provider in registration
// order. A provider failure or panic never prevents delivery to the rest.
type Manager struct {
	providers []Provider
}

// NewManager creates a manager with the given providers, kept in order.
func NewManager(providers ...Provider) *Manager {
	m := &Manager{}
	for _, p := range providers {
		m.Register(p)
	}
	return m
}

// Register appends a provider. Nil providers are ignored.
func (m *Manager) Register(p Provider) {
	if p == nil {
		return
	}
	m.providers = append(m.providers, p)
}

// Configured returns the names of providers that are ready to send.
func (m *Manager) Configured() []string {
	var names []string
	for _, p := range m.providers {
		if p.IsConfigured() {
			names = append(names, p.Type())
		}
	}
	return names
}

// Send delivers to every configured provider and reports whether at least
// one succeeded.
func (m *Manager) Send(ctx context.Context, title, message string, opts SendOptions) bool {
	sent := false
	for _, p := range m.providers {
		if !p.IsConfigured() {
			continue
		}
		if err := m.sendOne(ctx, p, title, message, opts); err != nil {
			metrics.ProviderSends.WithLabelValues(p.Type(), "error").Inc()
			logging.With("notify").Error().
				Err(err).
				Str("provider", p.Type()).
				Str("title", title).
				Msg("provider send failed")
			continue
		}
		metrics.ProviderSends.WithLabelValues(p.Type(), "success").Inc()
		sent = true
	}
	return sent
}

// sendOne isolates a single provider call, converting panics to errors.
func (m *Manager) sendOne(ctx context.Context, p Provider, title, message string, opts SendOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %s panicked: %v", p.Type(), r)
		}
	}()
	return p.Send(ctx, title, message, opts)
}
