// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package metadata

import (
	"encoding/xml"
	"fmt"
	"sort"
	"time"
)

// Program is one guide entry, with times as Unix seconds in the configured
// zone's clock.
type Program struct {
	Title   string
	Desc    string
	IconURL string
	Start   int64
	Stop    int64
}

// xmltvDoc mirrors the subset of XMLTV the guide needs: the channel-id to
// channel-number (lcn) mapping and the programme list.
type xmltvDoc struct {
	Channels []struct {
		ID  string `xml:"id,attr"`
		LCN string `xml:"lcn"`
	} `xml:"channel"`
	Programmes []struct {
		Start   string `xml:"start,attr"`
		Stop    string `xml:"stop,attr"`
		Channel string `xml:"channel,attr"`
		Title   string `xml:"title"`
		Desc    string `xml:"desc"`
		Icon    struct {
			Src string `xml:"src,attr"`
		} `xml:"icon"`
	} `xml:"programme"`
}

// xmltvTimeLayouts lists the timestamp shapes Channels DVR emits.
var xmltvTimeLayouts = []string{
	"20060102150405 -0700",
	"20060102150405",
}

func parseXMLTVTime(s string, loc *time.Location) (int64, error) {
	for _, layout := range xmltvTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("metadata: bad xmltv time %q", s)
}

// parseXMLTV extracts per-channel ordered program lists from raw XMLTV.
// The map is keyed by channel number (lcn). Programmes for unknown channel
// ids and programmes with unparseable times are skipped.
func parseXMLTV(data []byte, loc *time.Location) (map[string][]Program, error) {
	var doc xmltvDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("metadata: parse xmltv: %w", err)
	}

	idToNumber := make(map[string]string, len(doc.Channels))
	for _, ch := range doc.Channels {
		if ch.ID != "" && ch.LCN != "" {
			idToNumber[ch.ID] = ch.LCN
		}
	}

	guide := make(map[string][]Program)
	for _, p := range doc.Programmes {
		number, ok := idToNumber[p.Channel]
		if !ok {
			continue
		}
		start, err := parseXMLTVTime(p.Start, loc)
		if err != nil {
			continue
		}
		stop, err := parseXMLTVTime(p.Stop, loc)
		if err != nil {
			continue
		}
		guide[number] = append(guide[number], Program{
			Title:   p.Title,
			Desc:    p.Desc,
			IconURL: p.Icon.Src,
			Start:   start,
			Stop:    stop,
		})
	}

	for number := range guide {
		programs := guide[number]
		sort.Slice(programs, func(i, j int) bool { return programs[i].Start < programs[j].Start })
		guide[number] = programs
	}
	return guide, nil
}
