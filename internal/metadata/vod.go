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

// VODProvider caches the VOD catalog keyed by file id.
type VODProvider struct {
	cache *ttlCache[map[string]dvr.VODItem]
}

// NewVODProvider builds the provider over the DVR client.
func NewVODProvider(client *dvr.Client, ttl time.Duration) *VODProvider {
	return &VODProvider{
		cache: newTTLCache("vod", ttl, func(ctx context.Context) (map[string]dvr.VODItem, error) {
			items, err := client.Catalog(ctx)
			if err != nil {
				return nil, err
			}
			byID := make(map[string]dvr.VODItem, len(items))
			for _, item := range items {
				if item.ID != "" {
					byID[item.ID] = item
				}
			}
			return byID, nil
		}),
	}
}

// Item looks up catalog metadata by file id, refreshing once on a miss so a
// freshly recorded file can still be enriched.
func (p *VODProvider) Item(ctx context.Context, fileID string) (dvr.VODItem, bool) {
	byID, err := p.cache.get(ctx)
	if err != nil {
		return dvr.VODItem{}, false
	}
	if item, ok := byID[fileID]; ok {
		return item, true
	}

	if err := p.cache.refresh(ctx); err != nil {
		return dvr.VODItem{}, false
	}
	byID, err = p.cache.get(ctx)
	if err != nil {
		return dvr.VODItem{}, false
	}
	item, ok := byID[fileID]
	return item, ok
}
