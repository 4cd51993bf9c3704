// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/channelwatch/internal/config"
	"github.com/tomtom215/channelwatch/internal/dvr"
	"github.com/tomtom215/channelwatch/internal/logging"
	"github.com/tomtom215/channelwatch/internal/metrics"
	"github.com/tomtom215/channelwatch/internal/notify"
)

const vodTitle = "Channels DVR - Watching VOD"

// vodIdleTimeout evicts sessions that stopped sending progress updates.
const vodIdleTimeout = time.Hour

// VODLookup resolves VOD catalog metadata. *metadata.VODProvider satisfies
// it.
type VODLookup interface {
	Item(ctx context.Context, fileID string) (dvr.VODItem, bool)
}

// vodSession is one tracked VOD playback.
type vodSession struct {
	fileID     string
	identifier string
	position   int    // seconds; meaningful when timestamp != "Streaming"
	timestamp  string // raw position string, or the "Streaming" placeholder
	device     string
	ip         string

	lastUpdate       time.Time
	lastNotify       time.Time
	notifiedPosition int
}

// VODWatching detects video-on-demand playback from activities.set events
// whose Name carries a file id. Progress updates are gated by a cooldown; a
// large position jump (seek) bypasses it.
type VODWatching struct {
	mu sync.Mutex

	cfg  config.VODConfig
	vod  VODLookup
	emit Emitter

	sessions map[string]*vodSession // sessionKey -> session
	lastIP   map[string]string      // identifier -> last known ip

	now func() time.Time
}

// NewVODWatching wires the detector.
func NewVODWatching(cfg config.VODConfig, vod VODLookup, emit Emitter) *VODWatching {
	return &VODWatching{
		cfg:      cfg,
		vod:      vod,
		emit:     emit,
		sessions: make(map[string]*vodSession),
		lastIP:   make(map[string]string),
		now:      time.Now,
	}
}

// Name implements Detector.
func (d *VODWatching) Name() string { return "vod_watching" }

// ShouldHandle claims activities.set events with a VOD-shaped Name.
func (d *VODWatching) ShouldHandle(ev dvr.Event) bool {
	if ev.Type != "activities.set" || !isVODName(ev.Name) {
		return false
	}
	if ev.Value == "" {
		return true
	}
	return strings.Contains(ev.Value, "Watching") || strings.Contains(ev.Value, "Streaming")
}

// Handle implements Detector.
func (d *VODWatching) Handle(ctx context.Context, ev dvr.Event) {
	fileID, identifier, ok := parseVODName(ev.Name)
	if !ok {
		logging.With("vod").Debug().Str("name", ev.Name).Msg("unparseable vod name")
		return
	}
	key := "vod" + fileID + "-" + identifier

	if ev.Value == "" {
		d.mu.Lock()
		delete(d.sessions, key)
		d.mu.Unlock()
		return
	}

	device := parseDevice(ev.Value)
	ip := parseIP(ev.Value)

	// Streaming placeholder: playback announced, position not yet known.
	if !strings.Contains(ev.Value, " at ") {
		d.mu.Lock()
		d.upsertLocked(key, fileID, identifier, device, ip, 0, "Streaming")
		d.mu.Unlock()
		return
	}

	_, after, _ := strings.Cut(ev.Value, " at ")
	rawPos := strings.Fields(after)
	if len(rawPos) == 0 {
		return
	}
	position, ok := parsePlaybackPosition(rawPos[0])
	if !ok {
		logging.With("vod").Debug().Str("value", ev.Value).Msg("unparseable playback position")
		return
	}

	// Metadata prefetch happens before the event lock; the cache may hit
	// the DVR on a miss.
	item, haveItem := dvr.VODItem{}, false
	if d.vod != nil {
		item, haveItem = d.vod.Item(ctx, fileID)
	}

	d.mu.Lock()
	now := d.now()

	// A device moving to another file closes its previous session.
	for k, s := range d.sessions {
		if s.identifier == identifier && s.fileID != fileID {
			delete(d.sessions, k)
		}
	}

	if ip == "" {
		if looksLikeIP(identifier) {
			ip = identifier
		} else if cached, ok := d.lastIP[identifier]; ok {
			ip = cached
		}
	} else {
		d.lastIP[identifier] = ip
	}

	if existing, ok := d.sessions[key]; ok && !existing.lastNotify.IsZero() {
		cooldown := time.Duration(d.cfg.AlertCooldown) * time.Second
		delta := position - existing.notifiedPosition
		if delta < 0 {
			delta = -delta
		}
		significant := d.cfg.SignificantThreshold > 0 && delta >= d.cfg.SignificantThreshold
		if now.Sub(existing.lastNotify) < cooldown && !significant {
			// Inside the cooldown with no seek: silent progress update.
			d.upsertLocked(key, fileID, identifier, device, ip, position, rawPos[0])
			d.mu.Unlock()
			return
		}
	}

	sess := d.upsertLocked(key, fileID, identifier, device, ip, position, rawPos[0])
	sess.lastNotify = now
	sess.notifiedPosition = position
	snapshot := *sess
	d.mu.Unlock()

	d.publish(snapshot, item, haveItem)
	metrics.EventsAlerted.WithLabelValues(d.Name()).Inc()
}

// upsertLocked creates or refreshes a session. Caller holds d.mu.
func (d *VODWatching) upsertLocked(key, fileID, identifier, device, ip string, position int, timestamp string) *vodSession {
	sess, ok := d.sessions[key]
	if !ok {
		sess = &vodSession{fileID: fileID, identifier: identifier}
		d.sessions[key] = sess
	}
	sess.position = position
	sess.timestamp = timestamp
	if device != "" {
		sess.device = device
	}
	if ip != "" {
		sess.ip = ip
	}
	sess.lastUpdate = d.now()
	return sess
}

func looksLikeIP(s string) bool {
	return bareIPPattern.FindString(s) == s && s != ""
}

func (d *VODWatching) publish(sess vodSession, item dvr.VODItem, haveItem bool) {
	var details []string

	if haveItem {
		if d.cfg.ShowTitle && item.Title != "" {
			title := item.Title
			if item.ReleaseYear > 0 {
				title = fmt.Sprintf("%s (%d)", title, item.ReleaseYear)
			}
			details = append(details, "🎬 "+title)
		}
		if d.cfg.ShowEpisode && item.EpisodeTitle != "" {
			details = append(details, "Episode: "+item.EpisodeTitle)
		}
		if d.cfg.ShowProgress && item.Duration > 0 {
			details = append(details, fmt.Sprintf("Duration: %s / %s",
				formatPlayback(sess.position), formatPlayback(int(item.Duration))))
		} else if d.cfg.ShowDuration && item.Duration > 0 {
			details = append(details, "Duration: "+formatPlayback(int(item.Duration)))
		}
	}
	if d.cfg.ShowDeviceName && sess.device != "" {
		details = append(details, "Device: "+sess.device)
	}
	if d.cfg.ShowDeviceIP && sess.ip != "" {
		details = append(details, "Device IP: "+sess.ip)
	}
	if haveItem {
		if d.cfg.ShowSummary && item.Summary != "" {
			details = append(details, item.Summary)
		}
		var ratingLine []string
		if d.cfg.ShowRating && item.ContentRating != "" {
			ratingLine = append(ratingLine, item.ContentRating)
		}
		if d.cfg.ShowGenres && len(item.Genres) > 0 {
			ratingLine = append(ratingLine, strings.Join(item.Genres, ", "))
		}
		if len(ratingLine) > 0 {
			details = append(details, strings.Join(ratingLine, " · "))
		}
		if d.cfg.ShowCast && len(item.Cast) > 0 {
			cast := item.Cast
			suffix := ""
			if len(cast) > 3 {
				cast = cast[:3]
				suffix = "..."
			}
			details = append(details, "Cast: "+strings.Join(cast, ", ")+suffix)
		}
	}

	imageURL := ""
	if haveItem && d.cfg.ShowImage {
		imageURL = item.ImageURL
	}
	if err := d.emit.Publish(notify.Alert{
		Detector: d.Name(),
		Title:    vodTitle,
		Message:  strings.Join(details, "\n"),
		ImageURL: imageURL,
		Icon:     "play",
		Subject:  "vod" + sess.fileID,
		Device:   sess.device,
	}); err != nil {
		logging.With("vod").Error().Err(err).Msg("publish alert")
	}
}

// Sweep removes sessions idle past the timeout and IP-cache entries whose
// identifiers no longer have a session.
func (d *VODWatching) Sweep(_ context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()

	live := make(map[string]bool, len(d.sessions))
	for key, sess := range d.sessions {
		if now.Sub(sess.lastUpdate) > vodIdleTimeout {
			delete(d.sessions, key)
			continue
		}
		live[sess.identifier] = true
	}
	for identifier := range d.lastIP {
		if !live[identifier] {
			delete(d.lastIP, identifier)
		}
	}
}
