// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package metadata

import (
	"context"
	"time"

	"github.com/tomtom215/channelwatch/internal/dvr"
)

// ChannelProvider caches the channel lineup keyed by channel number.
type ChannelProvider struct {
	cache *ttlCache[map[string]dvr.Channel]
}

// NewChannelProvider builds the provider over the DVR client.
func NewChannelProvider(client *dvr.Client, ttl time.Duration) *ChannelProvider {
	return &ChannelProvider{
		cache: newTTLCache("channels", ttl, func(ctx context.Context) (map[string]dvr.Channel, error) {
			channels, err := client.Channels(ctx)
			if err != nil {
				return nil, err
			}
			byNumber := make(map[string]dvr.Channel, len(channels))
			for _, ch := range channels {
				if ch.Number != "" {
					byNumber[ch.Number] = ch
				}
			}
			return byNumber, nil
		}),
	}
}

// Channel looks up a channel by number.
func (p *ChannelProvider) Channel(ctx context.Context, number string) (dvr.Channel, bool) {
	byNumber, err := p.cache.get(ctx)
	if err != nil {
		return dvr.Channel{}, false
	}
	ch, ok := byNumber[number]
	return ch, ok
}

// Refresh forces a lineup reload.
func (p *ChannelProvider) Refresh(ctx context.Context) error {
	return p.cache.refresh(ctx)
}
