// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package alerts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/channelwatch/internal/config"
	"github.com/tomtom215/channelwatch/internal/dvr"
)

func newVODDetector(t *testing.T) (*VODWatching, *captureEmitter, *time.Time) {
	t.Helper()
	emitter := &captureEmitter{}
	vod := &fakeVOD{byID: map[string]dvr.VODItem{
		"1234": {
			ID:            "1234",
			Title:         "The Dark Knight",
			ReleaseYear:   2008,
			Summary:       "Batman faces the Joker.",
			Duration:      9120,
			ImageURL:      "http://img/tdk.jpg",
			ContentRating: "PG-13",
			Genres:        []string{"Action", "Crime"},
			Cast:          []string{"Bale", "Ledger", "Caine", "Oldman"},
		},
		"5678": {ID: "5678", Title: "Other Movie"},
	}}
	d := NewVODWatching(config.DefaultConfig().VOD, vod, emitter)
	now := time.Now()
	d.now = func() time.Time { return now }
	return d, emitter, &now
}

func vodEvent(name, value string) dvr.Event {
	return dvr.Event{Type: "activities.set", Name: name, Value: value}
}

func TestVODFirstEventAlerts(t *testing.T) {
	d, emitter, _ := newVODDetector(t)
	ev := vodEvent("6-file-1234-192.168.1.10",
		"Watching The Dark Knight from LivingRoom (192.168.1.10) at 15m42s")
	if !d.ShouldHandle(ev) {
		t.Fatal("detector should claim VOD watching events")
	}
	d.Handle(context.Background(), ev)

	alerts := emitter.all()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	for _, want := range []string{
		"🎬 The Dark Knight (2008)",
		"Duration: 15m 42s / 2h 32m 00s",
		"Device: LivingRoom",
		"Device IP: 192.168.1.10",
		"Batman faces the Joker.",
		"PG-13 · Action, Crime",
		"Cast: Bale, Ledger, Caine...",
	} {
		if !strings.Contains(a.Message, want) {
			t.Errorf("body missing %q:\n%s", want, a.Message)
		}
	}
	if a.ImageURL != "http://img/tdk.jpg" {
		t.Errorf("image = %q", a.ImageURL)
	}
}

func TestVODThresholdBypassesCooldown(t *testing.T) {
	d, emitter, now := newVODDetector(t)
	ctx := context.Background()

	d.Handle(ctx, vodEvent("6-file-1234-192.168.1.10", "Watching X at 0s"))
	*now = now.Add(100 * time.Second)
	d.Handle(ctx, vodEvent("6-file-1234-192.168.1.10", "Watching X at 310s"))
	if emitter.count() != 2 {
		t.Errorf("alerts = %d, want 2 (seek past threshold bypasses cooldown)", emitter.count())
	}

	d2, emitter2, now2 := newVODDetector(t)
	d2.Handle(ctx, vodEvent("6-file-1234-192.168.1.10", "Watching X at 0s"))
	*now2 = now2.Add(100 * time.Second)
	d2.Handle(ctx, vodEvent("6-file-1234-192.168.1.10", "Watching X at 60s"))
	if emitter2.count() != 1 {
		t.Errorf("alerts = %d, want 1 (normal progress inside cooldown)", emitter2.count())
	}
}

func TestVODCooldownExpiryAlertsAgain(t *testing.T) {
	d, emitter, now := newVODDetector(t)
	ctx := context.Background()

	d.Handle(ctx, vodEvent("6-file-1234-192.168.1.10", "Watching X at 0s"))
	*now = now.Add(301 * time.Second)
	d.Handle(ctx, vodEvent("6-file-1234-192.168.1.10", "Watching X at 60s"))
	if emitter.count() != 2 {
		t.Errorf("alerts = %d, want 2 after cooldown expiry", emitter.count())
	}
}

func TestVODEndDeletesSession(t *testing.T) {
	d, emitter, _ := newVODDetector(t)
	ctx := context.Background()

	d.Handle(ctx, vodEvent("6-file-1234-192.168.1.10", "Watching X at 0s"))
	d.Handle(ctx, vodEvent("6-file-1234-192.168.1.10", ""))
	if len(d.sessions) != 0 {
		t.Errorf("sessions = %d, want 0 after end event", len(d.sessions))
	}
	if emitter.count() != 1 {
		t.Errorf("alerts = %d", emitter.count())
	}
}

func TestVODStreamingPlaceholder(t *testing.T) {
	d, emitter, _ := newVODDetector(t)
	d.Handle(context.Background(), vodEvent("6-file-1234-192.168.1.10", "Streaming The Dark Knight"))

	if emitter.count() != 0 {
		t.Error("placeholder must not alert")
	}
	sess, ok := d.sessions["vod1234-192.168.1.10"]
	if !ok || sess.timestamp != "Streaming" {
		t.Errorf("placeholder session = %+v, ok=%v", sess, ok)
	}
}

func TestVODCrossFileSwitch(t *testing.T) {
	d, _, _ := newVODDetector(t)
	ctx := context.Background()

	d.Handle(ctx, vodEvent("6-file-1234-192.168.1.10", "Watching X at 0s"))
	d.Handle(ctx, vodEvent("6-file-5678-192.168.1.10", "Watching Y at 0s"))

	if _, ok := d.sessions["vod1234-192.168.1.10"]; ok {
		t.Error("old file session should be closed on cross-file switch")
	}
	if _, ok := d.sessions["vod5678-192.168.1.10"]; !ok {
		t.Error("new file session missing")
	}
}

func TestVODIPRecovery(t *testing.T) {
	d, emitter, now := newVODDetector(t)
	ctx := context.Background()

	d.Handle(ctx, vodEvent("6-file-1234-host42",
		"Watching X from LivingRoom (192.168.1.77) at 0s"))
	*now = now.Add(400 * time.Second)
	// Later event omits the IP; the identifier cache recovers it.
	d.Handle(ctx, vodEvent("6-file-1234-host42", "Watching X from LivingRoom at 400s"))

	alerts := emitter.all()
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alerts))
	}
	if !strings.Contains(alerts[1].Message, "Device IP: 192.168.1.77") {
		t.Errorf("IP not recovered:\n%s", alerts[1].Message)
	}
}

func TestVODSweep(t *testing.T) {
	d, _, now := newVODDetector(t)
	ctx := context.Background()

	d.Handle(ctx, vodEvent("6-file-1234-host42", "Watching X (1.2.3.4) at 0s"))
	*now = now.Add(2 * time.Hour)
	d.Sweep(ctx)

	if len(d.sessions) != 0 {
		t.Errorf("sessions = %d, want 0 after idle sweep", len(d.sessions))
	}
	if len(d.lastIP) != 0 {
		t.Errorf("ip cache = %d entries, want 0 once identifier has no session", len(d.lastIP))
	}
}
