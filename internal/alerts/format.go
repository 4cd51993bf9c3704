// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/channelwatch/internal/session"
)

// Fields is the structured input to the alert formatter. Zero values are
// omitted from the body.
type Fields struct {
	ChannelName   string
	ChannelNumber string
	ProgramTitle  string
	Resolution    string
	Device        string
	Source        string
	StreamCount   int
	IP            string
	Status        string
	Time          string
	Details       []string
	Custom        []string
}

// Options selects which fields appear in the body.
type Options struct {
	ChannelName   bool
	ChannelNumber bool
	ProgramName   bool
	Resolution    bool
	Device        bool
	Source        bool
	StreamCount   bool
	IP            bool
}

// FormatBody renders the newline-joined body in the fixed field order:
// channel block, resolution, device, source (with total streams), ip, then
// the raw status/time/details/custom lines.
func FormatBody(f Fields, o Options) string {
	var lines []string

	if o.ChannelName && f.ChannelName != "" {
		lines = append(lines, "📺 "+f.ChannelName)
	}
	if o.ChannelNumber && f.ChannelNumber != "" {
		lines = append(lines, "Channel: "+f.ChannelNumber)
	}
	if o.ProgramName && f.ProgramTitle != "" {
		lines = append(lines, "Program: "+f.ProgramTitle)
	}
	if o.Resolution && f.Resolution != "" {
		lines = append(lines, "Resolution: "+f.Resolution)
	}
	if o.Device && f.Device != "" {
		lines = append(lines, "Device: "+f.Device)
	}
	if o.Source && f.Source != "" {
		lines = append(lines, "Source: "+f.Source)
		if o.StreamCount && f.StreamCount > 0 {
			lines = append(lines, fmt.Sprintf("Total Streams: %d", f.StreamCount))
		}
	}
	if o.IP && f.IP != "" {
		lines = append(lines, "Device IP: "+f.IP)
	}
	if f.Status != "" {
		lines = append(lines, f.Status)
	}
	if f.Time != "" {
		lines = append(lines, f.Time)
	}
	lines = append(lines, f.Details...)
	lines = append(lines, f.Custom...)

	return strings.Join(lines, "\n")
}

// ShouldSendNotification gates on the cooldown window for a notification
// key.
func ShouldSendNotification(store *session.Store, key string, cooldown time.Duration) bool {
	return !store.WasNotificationSent(key, cooldown)
}

// formatEventTime renders a start time as "Today at 3:04 PM MST",
// "Tomorrow at ...", or "Jan 02, 2006 at ..." in the display zone.
func formatEventTime(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	now := time.Now().In(loc)

	clock := t.Format("3:04 PM MST")

	sameDay := func(a, b time.Time) bool {
		ay, am, ad := a.Date()
		by, bm, bd := b.Date()
		return ay == by && am == bm && ad == bd
	}
	switch {
	case sameDay(t, now):
		return "Today at " + clock
	case sameDay(t, now.AddDate(0, 0, 1)):
		return "Tomorrow at " + clock
	default:
		return t.Format("Jan 02, 2006") + " at " + clock
	}
}

// formatRunLength renders a recording duration in whole minutes ("120
// minutes") the way the scheduling UI shows it.
func formatRunLength(seconds int64) string {
	minutes := seconds / 60
	if minutes <= 0 {
		return ""
	}
	return fmt.Sprintf("%d minutes", minutes)
}
