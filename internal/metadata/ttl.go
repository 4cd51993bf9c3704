// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package metadata provides TTL-bounded read-through caches over the DVR
// client: channel lineup, program guide, recording jobs, and the VOD
// catalog. Each cache refreshes with at most one fetch in flight; readers
// that arrive during a refresh are served the previous value when one
// exists, and wait otherwise.
package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/channelwatch/internal/logging"
	"github.com/tomtom215/channelwatch/internal/metrics"
)

// ttlCache is the shared single-flight refresh primitive under the typed
// providers in this package.
type ttlCache[T any] struct {
	name  string
	ttl   time.Duration
	fetch func(context.Context) (T, error)

	mu         sync.Mutex
	value      T
	hasValue   bool
	fetchedAt  time.Time
	refreshing bool
	done       chan struct{}

	// now is stubbed in tests.
	now func() time.Time
}

func newTTLCache[T any](name string, ttl time.Duration, fetch func(context.Context) (T, error)) *ttlCache[T] {
	return &ttlCache[T]{
		name:  name,
		ttl:   ttl,
		fetch: fetch,
		now:   time.Now,
	}
}

// get returns the cached value, refreshing when stale. On refresh failure a
// stale value is served rather than an error: the caches exist to enrich
// alerts, and a stale channel name beats no alert.
func (c *ttlCache[T]) get(ctx context.Context) (T, error) {
	for {
		c.mu.Lock()
		if c.hasValue && c.now().Sub(c.fetchedAt) < c.ttl {
			v := c.value
			c.mu.Unlock()
			metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
			return v, nil
		}
		if c.refreshing {
			if c.hasValue {
				// Serve the prior value while another reader refreshes.
				v := c.value
				c.mu.Unlock()
				metrics.CacheLookups.WithLabelValues(c.name, "stale").Inc()
				return v, nil
			}
			done := c.done
			c.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				var zero T
				return zero, ctx.Err()
			}
		}
		c.refreshing = true
		c.done = make(chan struct{})
		c.mu.Unlock()
		break
	}

	metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
	value, err := c.fetch(ctx)

	c.mu.Lock()
	c.refreshing = false
	close(c.done)
	if err == nil {
		c.value = value
		c.hasValue = true
		c.fetchedAt = c.now()
	} else if c.hasValue {
		logging.With("cache").Warn().Err(err).Str("cache", c.name).Msg("refresh failed, serving stale value")
		value = c.value
		err = nil
	}
	c.mu.Unlock()
	return value, err
}

// invalidate forces the next get to refresh.
func (c *ttlCache[T]) invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}

// refresh discards the current value and fetches immediately.
func (c *ttlCache[T]) refresh(ctx context.Context) error {
	c.invalidate()
	_, err := c.get(ctx)
	return err
}
