// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package alerts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/channelwatch/internal/config"
	"github.com/tomtom215/channelwatch/internal/dvr"
	"github.com/tomtom215/channelwatch/internal/logging"
	"github.com/tomtom215/channelwatch/internal/metadata"
	"github.com/tomtom215/channelwatch/internal/metrics"
	"github.com/tomtom215/channelwatch/internal/notify"
	"github.com/tomtom215/channelwatch/internal/session"
	"github.com/tomtom215/channelwatch/internal/stream"
)

// channelCooldown dedupes rapid identical watching events per tracking key.
const channelCooldown = 5 * time.Second

const watchingTitle = "Channels DVR - Watching TV"

// ChannelLookup resolves channel metadata. *metadata.ChannelProvider
// satisfies it.
type ChannelLookup interface {
	Channel(ctx context.Context, number string) (dvr.Channel, bool)
}

// ProgramLookup resolves the currently airing program.
// *metadata.GuideProvider satisfies it.
type ProgramLookup interface {
	CurrentProgram(ctx context.Context, channelNumber string) (metadata.Program, bool)
}

// ChannelWatching detects live viewing sessions from activities.set events:
// new streams alert, progress updates refresh, channel switches close the
// old session first, and end events tear down.
type ChannelWatching struct {
	// mu is the detector event lock; it serializes all channel-watching
	// state transitions.
	mu sync.Mutex

	cfg      config.ChannelConfig
	store    *session.Store
	tracker  *stream.Tracker // nil when stream counting is disabled
	channels ChannelLookup
	guide    ProgramLookup
	emit     Emitter
}

// NewChannelWatching wires the detector. tracker and guide may be nil when
// their features are disabled.
func NewChannelWatching(cfg config.ChannelConfig, store *session.Store, tracker *stream.Tracker,
	channels ChannelLookup, guide ProgramLookup, emit Emitter) *ChannelWatching {
	return &ChannelWatching{
		cfg:      cfg,
		store:    store,
		tracker:  tracker,
		channels: channels,
		guide:    guide,
		emit:     emit,
	}
}

// Name implements Detector.
func (d *ChannelWatching) Name() string { return "channel_watching" }

// ShouldHandle claims activities.set events that are not VOD sessions: live
// watching values, recording activity (for the stream tracker), and end
// events.
func (d *ChannelWatching) ShouldHandle(ev dvr.Event) bool {
	if ev.Type != "activities.set" || isVODName(ev.Name) {
		return false
	}
	return true
}

// Handle implements Detector.
func (d *ChannelWatching) Handle(ctx context.Context, ev dvr.Event) {
	if ev.Value == "" {
		d.handleEnd(ev)
		return
	}

	// The tracker counts any watching/recording activity, alert or not.
	if d.tracker != nil {
		d.tracker.ProcessActivity(ev.Value, ev.Name)
	}
	if !strings.Contains(ev.Value, "Watching ch") {
		return
	}

	number := parseChannelNumber(ev.Value)
	if number == "" {
		logging.With("channel").Debug().Str("value", ev.Value).Msg("watching event without channel number")
		return
	}
	device := parseDevice(ev.Value)
	ip := parseIP(ev.Value)
	deviceOrIP := device
	if deviceOrIP == "" {
		deviceOrIP = ip
	}
	if deviceOrIP == "" {
		logging.With("channel").Debug().Str("value", ev.Value).Msg("watching event without device or ip")
		return
	}
	trackingKey := "ch" + number + "-" + deviceOrIP

	// Reentrancy guard: a duplicate of an event still being processed must
	// not emit a second alert.
	if !d.store.TryMarkEventProcessing(trackingKey) {
		logging.With("channel").Debug().Str("key", trackingKey).Msg("event already in flight")
		return
	}
	defer d.store.CompleteEventProcessing(trackingKey)

	sess := session.Session{
		ChannelNumber: number,
		ChannelName:   parseChannelName(ev.Value, number),
		Device:        device,
		IP:            ip,
		Source:        parseSource(ev.Name),
		Resolution:    parseResolution(ev.Value),
	}

	// Enrichment hits the metadata caches (and possibly the DVR) before the
	// event lock is taken.
	d.enrich(ctx, &sess)

	d.mu.Lock()
	if existing, ok := d.store.Session(ev.Name); ok {
		if existing.ChannelNumber == number {
			// Progress update for the channel already alerted.
			d.store.Touch(ev.Name)
			d.mu.Unlock()
			return
		}
		// Channel switch on the same session: the old channel exits before
		// the new one starts.
		d.logExit(existing)
		d.store.RemoveSession(ev.Name)
	}
	if oldID, old, ok := d.store.DeviceSession(device, ev.Name); ok {
		d.logExit(old)
		d.store.RemoveSession(oldID)
	}
	if !ShouldSendNotification(d.store, trackingKey, channelCooldown) {
		d.mu.Unlock()
		return
	}
	if d.tracker != nil {
		sess.StreamCount = d.tracker.Count()
	}
	d.store.RecordNotification(trackingKey)
	d.store.AddSession(ev.Name, sess)
	d.mu.Unlock()

	d.publish(sess)
	metrics.EventsAlerted.WithLabelValues(d.Name()).Inc()
}

// handleEnd tears down the session for an empty-value event.
func (d *ChannelWatching) handleEnd(ev dvr.Event) {
	if d.tracker != nil {
		d.tracker.ProcessActivity("", ev.Name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if sess, ok := d.store.Session(ev.Name); ok {
		d.logExit(sess)
		d.store.RemoveSession(ev.Name)
	}
}

func (d *ChannelWatching) logExit(sess session.Session) {
	logging.With("channel").Info().
		Str("device", sess.Device).
		Str("channel", sess.ChannelNumber).
		Str("name", sess.ChannelName).
		Msg("exited channel")
}

// enrich fills channel and program metadata and picks the alert image by the
// configured preference, falling back to the other source.
func (d *ChannelWatching) enrich(ctx context.Context, sess *session.Session) {
	var channelLogo, programIcon string

	if d.channels != nil {
		if ch, ok := d.channels.Channel(ctx, sess.ChannelNumber); ok {
			if ch.Name != "" {
				sess.ChannelName = ch.Name
			}
			channelLogo = ch.LogoURL
		}
	}
	if d.guide != nil && d.cfg.ShowProgramName {
		if prog, ok := d.guide.CurrentProgram(ctx, sess.ChannelNumber); ok {
			sess.ProgramTitle = prog.Title
			programIcon = prog.IconURL
		}
	}

	primary, fallback := channelLogo, programIcon
	if d.cfg.ImageSource == config.ImageSourceProgram {
		primary, fallback = programIcon, channelLogo
	}
	sess.ImageURL = primary
	if sess.ImageURL == "" {
		sess.ImageURL = fallback
	}
}

func (d *ChannelWatching) publish(sess session.Session) {
	body := FormatBody(Fields{
		ChannelName:   sess.ChannelName,
		ChannelNumber: sess.ChannelNumber,
		ProgramTitle:  sess.ProgramTitle,
		Resolution:    sess.Resolution,
		Device:        sess.Device,
		Source:        sess.Source,
		StreamCount:   sess.StreamCount,
		IP:            sess.IP,
	}, Options{
		ChannelName:   d.cfg.ShowChannelName,
		ChannelNumber: d.cfg.ShowChannelNumber,
		ProgramName:   d.cfg.ShowProgramName,
		Resolution:    d.cfg.ShowResolution,
		Device:        d.cfg.ShowDeviceName,
		Source:        d.cfg.ShowSource,
		StreamCount:   d.cfg.ShowStreamCount,
		IP:            d.cfg.ShowDeviceIP,
	})

	subject := "ch" + sess.ChannelNumber
	if err := d.emit.Publish(notify.Alert{
		Detector: d.Name(),
		Title:    watchingTitle,
		Message:  body,
		ImageURL: sess.ImageURL,
		Icon:     "tv",
		Subject:  subject,
		Device:   sess.Device,
	}); err != nil {
		logging.With("channel").Error().Err(err).Msg("publish alert")
	}
}
