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

// GuideProvider caches the parsed XMLTV guide and answers "what is on
// channel N right now".
type GuideProvider struct {
	cache *ttlCache[map[string][]Program]
	now   func() time.Time
}

// NewGuideProvider builds the provider over the DVR client. Times in the
// guide are resolved in loc.
func NewGuideProvider(client *dvr.Client, ttl time.Duration, loc *time.Location) *GuideProvider {
	return &GuideProvider{
		cache: newTTLCache("programs", ttl, func(ctx context.Context) (map[string][]Program, error) {
			raw, err := client.XMLTV(ctx)
			if err != nil {
				return nil, err
			}
			return parseXMLTV(raw, loc)
		}),
		now: time.Now,
	}
}

// CurrentProgram scans the channel's ordered program list for the entry
// where start <= now < stop.
func (p *GuideProvider) CurrentProgram(ctx context.Context, channelNumber string) (Program, bool) {
	guide, err := p.cache.get(ctx)
	if err != nil {
		return Program{}, false
	}
	now := p.now().Unix()
	for _, prog := range guide[channelNumber] {
		if prog.Start <= now && now < prog.Stop {
			return prog, true
		}
		if prog.Start > now {
			break
		}
	}
	return Program{}, false
}

// Refresh forces a guide reload.
func (p *GuideProvider) Refresh(ctx context.Context) error {
	return p.cache.refresh(ctx)
}
