// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package session

import (
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewStore(nil)

	s.AddSession("6-stream-abc", Session{ChannelNumber: "7", Device: "LivingRoom"})
	sess, ok := s.Session("6-stream-abc")
	if !ok || sess.ChannelNumber != "7" {
		t.Fatalf("Session = %+v, %v", sess, ok)
	}
	if sess.Timestamp.IsZero() {
		t.Error("AddSession should stamp the session")
	}

	s.RemoveSession("6-stream-abc")
	if _, ok := s.Session("6-stream-abc"); ok {
		t.Error("session should be removed")
	}
	// Removing again is a no-op.
	s.RemoveSession("6-stream-abc")
}

func TestDeviceSessionExcludesSelf(t *testing.T) {
	s := NewStore(nil)
	s.AddSession("sess-a", Session{ChannelNumber: "7", Device: "LivingRoom"})
	s.AddSession("sess-b", Session{ChannelNumber: "9", Device: "Bedroom"})

	id, sess, ok := s.DeviceSession("LivingRoom", "sess-b")
	if !ok || id != "sess-a" || sess.ChannelNumber != "7" {
		t.Errorf("DeviceSession = %q, %+v, %v", id, sess, ok)
	}

	if _, _, ok := s.DeviceSession("LivingRoom", "sess-a"); ok {
		t.Error("own session must be excluded")
	}
	if _, _, ok := s.DeviceSession("", "x"); ok {
		t.Error("empty device must never match")
	}
}

func TestEventProcessingGuard(t *testing.T) {
	s := NewStore(nil)

	if !s.TryMarkEventProcessing("ch7-LivingRoom") {
		t.Fatal("first mark should succeed")
	}
	if s.TryMarkEventProcessing("ch7-LivingRoom") {
		t.Error("second mark must fail while in flight")
	}
	s.CompleteEventProcessing("ch7-LivingRoom")
	if !s.TryMarkEventProcessing("ch7-LivingRoom") {
		t.Error("mark should succeed after completion")
	}
}

func TestNotificationCooldown(t *testing.T) {
	s := NewStore(nil)
	now := time.Now()
	s.now = func() time.Time { return now }

	if s.WasNotificationSent("ch7-LivingRoom", 5*time.Second) {
		t.Error("unseen key reported as sent")
	}
	s.RecordNotification("ch7-LivingRoom")

	now = now.Add(3 * time.Second)
	if !s.WasNotificationSent("ch7-LivingRoom", 5*time.Second) {
		t.Error("within cooldown: want true")
	}
	now = now.Add(3 * time.Second)
	if s.WasNotificationSent("ch7-LivingRoom", 5*time.Second) {
		t.Error("past cooldown: want false")
	}
}

func TestCleanupTTLs(t *testing.T) {
	s := NewStore(nil)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.AddSession("old", Session{Device: "A"})
	s.TryMarkEventProcessing("stuck")
	s.RecordNotification("ancient")

	now = now.Add(5 * time.Hour)
	s.AddSession("fresh", Session{Device: "B"})

	removed := s.Cleanup(DefaultSessionTTL, DefaultEventTTL, DefaultNotificationTTL)
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := s.Session("fresh"); !ok {
		t.Error("fresh session must survive")
	}
	if !s.TryMarkEventProcessing("stuck") {
		t.Error("stale processing marker must be swept")
	}
	if s.WasNotificationSent("ancient", 10*time.Hour) {
		t.Error("expired notification history must be swept")
	}
}

func TestBadgerHistoryRoundTrip(t *testing.T) {
	h, err := OpenBadgerHistory(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerHistory: %v", err)
	}
	defer h.Close()

	at := time.Now().Truncate(time.Second)
	if err := h.Record("recording-completed-F1", at); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, ok := h.Last("recording-completed-F1")
	if !ok || !got.Equal(at) {
		t.Errorf("Last = %v, %v; want %v", got, ok, at)
	}
	if _, ok := h.Last("never-seen"); ok {
		t.Error("unknown key should miss")
	}
}

func TestStoreSeedsFromPersistentHistory(t *testing.T) {
	h, err := OpenBadgerHistory(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerHistory: %v", err)
	}

	s := NewStore(h)
	s.RecordNotification("disk-space")

	// A fresh store over the same database still sees the cooldown.
	s2 := NewStore(h)
	if !s2.WasNotificationSent("disk-space", time.Hour) {
		t.Error("restart should preserve cooldown state")
	}
	if err := s2.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
