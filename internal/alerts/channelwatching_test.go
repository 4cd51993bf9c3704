// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package alerts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/channelwatch/internal/config"
	"github.com/tomtom215/channelwatch/internal/dvr"
	"github.com/tomtom215/channelwatch/internal/metadata"
	"github.com/tomtom215/channelwatch/internal/session"
	"github.com/tomtom215/channelwatch/internal/stream"
)

func newChannelDetector(t *testing.T) (*ChannelWatching, *captureEmitter, *session.Store, string) {
	t.Helper()
	countFile := filepath.Join(t.TempDir(), "stream_count.txt")
	store := session.NewStore(nil)
	emitter := &captureEmitter{}
	channels := &fakeChannels{byNumber: map[string]dvr.Channel{
		"7": {Number: "7", Name: "ABC", LogoURL: "http://logo/abc.png"},
		"9": {Number: "9", Name: "NBC", LogoURL: "http://logo/nbc.png"},
	}}
	guide := &fakeGuide{byNumber: map[string]metadata.Program{
		"7": {Title: "News at Six", IconURL: "http://icon/news.png"},
	}}
	d := NewChannelWatching(config.DefaultConfig().Channel, store,
		stream.NewTracker(countFile), channels, guide, emitter)
	return d, emitter, store, countFile
}

func watchEvent(name, value string) dvr.Event {
	return dvr.Event{Type: "activities.set", Name: name, Value: value}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestChannelStartScenario(t *testing.T) {
	d, emitter, _, countFile := newChannelDetector(t)
	ctx := context.Background()

	ev := watchEvent("6-stream-M3U-Primary-abc",
		"Watching ch7 ABC from LivingRoom (192.168.1.10) 1080i")
	if !d.ShouldHandle(ev) {
		t.Fatal("detector should claim watching events")
	}
	d.Handle(ctx, ev)

	alerts := emitter.all()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Title != "Channels DVR - Watching TV" {
		t.Errorf("title = %q", a.Title)
	}
	for _, want := range []string{"📺 ABC", "Channel: 7", "Device: LivingRoom",
		"Device IP: 192.168.1.10", "Source: Primary", "Resolution: 1080i"} {
		if !strings.Contains(a.Message, want) {
			t.Errorf("body missing %q:\n%s", want, a.Message)
		}
	}
	if a.ImageURL != "http://logo/abc.png" {
		t.Errorf("image = %q, want channel logo under CHANNEL preference", a.ImageURL)
	}
	if got := readFile(t, countFile); got != "1" {
		t.Errorf("stream_count.txt = %q, want 1", got)
	}
}

func TestChannelSwitchScenario(t *testing.T) {
	d, emitter, store, countFile := newChannelDetector(t)
	ctx := context.Background()
	logs := captureLogs(t)

	// Same session id carries the switch: ch7 exits, ch9 starts.
	d.Handle(ctx, watchEvent("6-stream-M3U-Primary-abc",
		"Watching ch7 ABC from LivingRoom (192.168.1.10) 1080i"))
	d.Handle(ctx, watchEvent("6-stream-M3U-Primary-abc",
		"Watching ch9 NBC from LivingRoom (192.168.1.10)"))

	alerts := emitter.all()
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alerts))
	}
	if !strings.Contains(alerts[1].Message, "Channel: 9") {
		t.Errorf("second alert body:\n%s", alerts[1].Message)
	}
	out := logs.String()
	if !strings.Contains(out, "exited channel") || !strings.Contains(out, `"channel":"7"`) {
		t.Errorf("switch must log the old channel's exit, got:\n%s", out)
	}
	// One device, one session, still one stream.
	if store.Count() != 1 {
		t.Errorf("sessions = %d, want 1", store.Count())
	}
	if got := readFile(t, countFile); got != "1" {
		t.Errorf("stream_count.txt = %q, want 1", got)
	}
}

func TestChannelSwitchNewSessionIDLogsExit(t *testing.T) {
	d, emitter, store, _ := newChannelDetector(t)
	ctx := context.Background()
	logs := captureLogs(t)

	d.Handle(ctx, watchEvent("6-stream-M3U-Primary-abc",
		"Watching ch7 ABC from LivingRoom (192.168.1.10)"))
	d.Handle(ctx, watchEvent("6-stream-M3U-Primary-def",
		"Watching ch9 NBC from LivingRoom (192.168.1.10)"))

	if emitter.count() != 2 {
		t.Fatalf("alerts = %d, want 2", emitter.count())
	}
	out := logs.String()
	if !strings.Contains(out, "exited channel") || !strings.Contains(out, `"channel":"7"`) {
		t.Errorf("device switch must log the old channel's exit, got:\n%s", out)
	}
	if store.Count() != 1 {
		t.Errorf("sessions = %d, want 1", store.Count())
	}
}

func TestChannelEndScenario(t *testing.T) {
	d, _, store, countFile := newChannelDetector(t)
	ctx := context.Background()

	d.Handle(ctx, watchEvent("6-stream-M3U-Primary-abc",
		"Watching ch7 ABC from LivingRoom (192.168.1.10) 1080i"))
	d.Handle(ctx, watchEvent("6-stream-M3U-Primary-abc", ""))

	if store.Count() != 0 {
		t.Errorf("sessions = %d, want 0 after end event", store.Count())
	}
	if got := readFile(t, countFile); got != "0" {
		t.Errorf("stream_count.txt = %q, want 0", got)
	}
}

func TestChannelDuplicateEventSuppressed(t *testing.T) {
	d, emitter, _, _ := newChannelDetector(t)
	ctx := context.Background()

	ev := watchEvent("6-stream-M3U-Primary-abc",
		"Watching ch7 ABC from LivingRoom (192.168.1.10) 1080i")
	d.Handle(ctx, ev)
	d.Handle(ctx, ev)

	if emitter.count() != 1 {
		t.Errorf("alerts = %d, want 1 (duplicate suppressed)", emitter.count())
	}
}

func TestChannelCooldownGatesNewSession(t *testing.T) {
	d, emitter, _, _ := newChannelDetector(t)
	ctx := context.Background()

	d.Handle(ctx, watchEvent("6-stream-M3U-Primary-abc",
		"Watching ch7 ABC from LivingRoom (192.168.1.10)"))
	// Same channel and device under a different session id inside the
	// cooldown window: gated by the tracking key.
	d.Handle(ctx, watchEvent("6-stream-M3U-Primary-def", ""))
	d.Handle(ctx, watchEvent("6-stream-M3U-Primary-def",
		"Watching ch7 ABC from LivingRoom (192.168.1.10)"))

	if emitter.count() != 1 {
		t.Errorf("alerts = %d, want 1", emitter.count())
	}
}

func TestChannelProgramImagePreference(t *testing.T) {
	countFile := filepath.Join(t.TempDir(), "stream_count.txt")
	store := session.NewStore(nil)
	emitter := &captureEmitter{}
	cfg := config.DefaultConfig().Channel
	cfg.ImageSource = config.ImageSourceProgram
	channels := &fakeChannels{byNumber: map[string]dvr.Channel{
		"7": {Number: "7", Name: "ABC", LogoURL: "http://logo/abc.png"},
	}}
	guide := &fakeGuide{byNumber: map[string]metadata.Program{
		"7": {Title: "News", IconURL: "http://icon/news.png"},
	}}
	d := NewChannelWatching(cfg, store, stream.NewTracker(countFile), channels, guide, emitter)

	d.Handle(context.Background(), watchEvent("6-stream-M3U-Primary-abc",
		"Watching ch7 ABC from LivingRoom"))
	alerts := emitter.all()
	if len(alerts) != 1 || alerts[0].ImageURL != "http://icon/news.png" {
		t.Fatalf("PROGRAM preference should pick the program icon: %+v", alerts)
	}

	// No program available on ch9: falls back to the channel logo.
	channels.byNumber["9"] = dvr.Channel{Number: "9", Name: "NBC", LogoURL: "http://logo/nbc.png"}
	d.Handle(context.Background(), watchEvent("6-stream-M3U-Primary-xyz",
		"Watching ch9 NBC from Bedroom"))
	alerts = emitter.all()
	if len(alerts) != 2 || alerts[1].ImageURL != "http://logo/nbc.png" {
		t.Fatalf("missing program icon should fall back to logo: %+v", alerts)
	}
}

func TestChannelIgnoresVODNames(t *testing.T) {
	d, _, _, _ := newChannelDetector(t)
	if d.ShouldHandle(watchEvent("6-file-1234-192.168.1.10", "Watching at 10s")) {
		t.Error("VOD-shaped names belong to the VOD detector")
	}
	if d.ShouldHandle(dvr.Event{Type: "jobs.created", Name: "J1"}) {
		t.Error("non-activity events must be ignored")
	}
}
