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
	"github.com/tomtom215/channelwatch/internal/session"
)

func newRecordingDetector(t *testing.T, cfg config.RecordingConfig) (*RecordingEvents, *captureEmitter, *fakeJobs, *fakeRecordings) {
	t.Helper()
	emitter := &captureEmitter{}
	jobs := &fakeJobs{byID: make(map[string]dvr.Job)}
	recs := &fakeRecordings{}
	d := NewRecordingEvents(cfg, session.NewStore(nil), jobs, recs, nil, emitter, time.UTC)
	return d, emitter, jobs, recs
}

func TestScheduledThenCancelled(t *testing.T) {
	d, emitter, jobs, _ := newRecordingDetector(t, config.DefaultConfig().Recording)
	ctx := context.Background()

	jobs.byID["J1"] = dvr.Job{
		ID:        "J1",
		Name:      "Batman",
		StartTime: time.Now().Add(600 * time.Second).Unix(),
		Duration:  7200,
		Channels:  []string{"137"},
	}
	d.Handle(ctx, dvr.Event{Type: "jobs.created", Name: "J1"})
	d.Handle(ctx, dvr.Event{Type: "jobs.deleted", Name: "J1"})

	alerts := emitter.all()
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want scheduled then cancelled", len(alerts))
	}
	if !strings.Contains(alerts[0].Message, "📅 Scheduled") {
		t.Errorf("first alert:\n%s", alerts[0].Message)
	}
	if !strings.Contains(alerts[0].Message, "Program: Batman") ||
		!strings.Contains(alerts[0].Message, "Channel Number: 137") ||
		!strings.Contains(alerts[0].Message, "Duration: 120 minutes") {
		t.Errorf("scheduled body:\n%s", alerts[0].Message)
	}
	if !strings.Contains(alerts[1].Message, "🚫 Recording Cancelled") {
		t.Errorf("second alert:\n%s", alerts[1].Message)
	}

	scheduled, _, _ := d.Snapshot()
	if scheduled != 0 {
		t.Errorf("scheduled partition = %d, want empty", scheduled)
	}
}

func TestImminentJobGetsNoScheduledAlert(t *testing.T) {
	d, emitter, jobs, _ := newRecordingDetector(t, config.DefaultConfig().Recording)
	jobs.byID["J2"] = dvr.Job{ID: "J2", Name: "Now", StartTime: time.Now().Unix()}

	d.Handle(context.Background(), dvr.Event{Type: "jobs.created", Name: "J2"})
	if emitter.count() != 0 {
		t.Errorf("alerts = %d, want 0 for a job starting immediately", emitter.count())
	}
}

func TestStartedToggleSuppresssOnlyStarted(t *testing.T) {
	cfg := config.DefaultConfig().Recording
	cfg.AlertStarted = false
	d, emitter, jobs, recs := newRecordingDetector(t, cfg)
	ctx := context.Background()

	jobs.byID["J1"] = dvr.Job{
		ID: "J1", Name: "Batman",
		StartTime: time.Now().Add(600 * time.Second).Unix(),
	}
	d.Handle(ctx, dvr.Event{Type: "jobs.created", Name: "J1"})
	d.Handle(ctx, dvr.Event{Type: "programs.set", Value: "recording-J1"})
	recs.set(dvr.Recording{ID: "F1", JobID: "J1", Title: "Batman", Processed: true, Completed: true})
	d.Handle(ctx, dvr.Event{Type: "programs.set", Value: "recorded-F1"})

	alerts := emitter.all()
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want scheduled + completed only", len(alerts))
	}
	if !strings.Contains(alerts[1].Message, "✅ Recording Completed") {
		t.Errorf("final alert:\n%s", alerts[1].Message)
	}
}

func TestRecordingStartedMovesToActive(t *testing.T) {
	d, emitter, jobs, _ := newRecordingDetector(t, config.DefaultConfig().Recording)
	jobs.byID["J1"] = dvr.Job{ID: "J1", Name: "Batman", StartTime: time.Now().Unix()}

	d.Handle(context.Background(), dvr.Event{Type: "programs.set", Value: "recording-J1"})

	_, active, _ := d.Snapshot()
	if active != 1 {
		t.Errorf("active partition = %d, want 1", active)
	}
	alerts := emitter.all()
	if len(alerts) != 1 || !strings.Contains(alerts[0].Message, "🔴 Recording Started") {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestCompletionRetryViaPendingQueue(t *testing.T) {
	d, emitter, _, recs := newRecordingDetector(t, config.DefaultConfig().Recording)
	ctx := context.Background()

	// First sighting: upstream has the file but processed is still false.
	recs.set(dvr.Recording{ID: "F1", JobID: "J1", Title: "Batman", Completed: true})
	d.Handle(ctx, dvr.Event{Type: "programs.set", Value: "recorded-F1"})

	if emitter.count() != 0 {
		t.Fatal("unprocessed completion must not alert yet")
	}
	if _, _, pending := d.Snapshot(); pending != 1 {
		t.Fatalf("pending = %d, want 1", pending)
	}

	// Upstream flips the flag; the retry worker picks it up.
	recs.set(dvr.Recording{ID: "F1", JobID: "J1", Title: "Batman", Completed: true, Processed: true})
	d.processPending(ctx)

	alerts := emitter.all()
	if len(alerts) != 1 || !strings.Contains(alerts[0].Message, "✅ Recording Completed") {
		t.Fatalf("alerts = %+v", alerts)
	}
	if _, _, pending := d.Snapshot(); pending != 0 {
		t.Errorf("pending = %d, want 0 after emission", pending)
	}
}

func TestPendingTimesOut(t *testing.T) {
	d, emitter, _, recs := newRecordingDetector(t, config.DefaultConfig().Recording)
	ctx := context.Background()
	now := time.Now()
	d.now = func() time.Time { return now }

	recs.set(dvr.Recording{ID: "F1", Completed: true})
	d.Handle(ctx, dvr.Event{Type: "programs.set", Value: "recorded-F1"})

	now = now.Add(11 * time.Minute)
	d.processPending(ctx)

	if _, _, pending := d.Snapshot(); pending != 0 {
		t.Errorf("pending = %d, want 0 after timeout", pending)
	}
	if emitter.count() != 0 {
		t.Error("timed-out completion must not alert")
	}
}

func TestClassifyRecording(t *testing.T) {
	tests := []struct {
		cancelled, completed, delayed bool
		wantLabel                     string
	}{
		{false, true, false, "Recording Completed"},
		{false, true, true, "Recording Completed (Delayed)"},
		{false, false, false, "Recording Completed (Interrupted)"},
		{false, false, true, "Recording Completed (Interrupted)"},
		{true, true, false, "Recording Stopped"},
		{true, false, false, "Recording Cancelled"},
	}
	for _, tt := range tests {
		got := classifyRecording(dvr.Recording{
			Cancelled: tt.cancelled, Completed: tt.completed, Delayed: tt.delayed,
		})
		if got.label != tt.wantLabel {
			t.Errorf("classify(%v,%v,%v) = %q, want %q",
				tt.cancelled, tt.completed, tt.delayed, got.label, tt.wantLabel)
		}
	}
}

func TestRecordingCooldownSuppressesRepeat(t *testing.T) {
	d, emitter, _, recs := newRecordingDetector(t, config.DefaultConfig().Recording)
	ctx := context.Background()

	recs.set(dvr.Recording{ID: "F1", Title: "Batman", Completed: true, Processed: true})
	d.Handle(ctx, dvr.Event{Type: "programs.set", Value: "recorded-F1"})
	d.Handle(ctx, dvr.Event{Type: "programs.set", Value: "recorded-F1"})

	if emitter.count() != 1 {
		t.Errorf("alerts = %d, want 1 (60s cooldown per state+id)", emitter.count())
	}
}

func TestPreloadSeedsWithoutAlerts(t *testing.T) {
	d, emitter, jobs, _ := newRecordingDetector(t, config.DefaultConfig().Recording)
	jobs.byID["J1"] = dvr.Job{ID: "J1", StartTime: time.Now().Add(time.Hour).Unix()}
	jobs.byID["J2"] = dvr.Job{ID: "J2", StartTime: time.Now().Add(-time.Hour).Unix()}

	d.preload(context.Background())

	scheduled, active, _ := d.Snapshot()
	if scheduled != 1 || active != 1 {
		t.Errorf("partitions = (%d, %d), want (1, 1)", scheduled, active)
	}
	if emitter.count() != 0 {
		t.Error("preload must not alert")
	}
}

func TestSweepDropsJobsGoneUpstream(t *testing.T) {
	d, _, jobs, _ := newRecordingDetector(t, config.DefaultConfig().Recording)
	ctx := context.Background()

	jobs.byID["J1"] = dvr.Job{ID: "J1", StartTime: time.Now().Add(time.Hour).Unix()}
	d.preload(ctx)
	jobs.remove("J1")

	d.Sweep(ctx)
	if scheduled, _, _ := d.Snapshot(); scheduled != 0 {
		t.Errorf("scheduled = %d, want 0 after upstream deletion", scheduled)
	}
}

func TestWatchdogReplacesHeldLock(t *testing.T) {
	d, _, jobs, _ := newRecordingDetector(t, config.DefaultConfig().Recording)
	now := time.Now()
	d.now = func() time.Time { return now }

	// Simulate a stuck handler: lock held, no events for a long time.
	stuck := d.lock()
	d.lastEventAt.Store(now.Add(-40 * time.Minute).UnixNano())
	d.lockHeldSince.Store(now.Add(-25 * time.Minute).UnixNano())

	d.watchdogCheck(context.Background())

	// The replacement lock must be acquirable even though the old one is
	// still held.
	done := make(chan struct{})
	go func() {
		m := d.lock()
		d.unlock(m)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event lock not replaced; detector still deadlocked")
	}

	jobs.mu.Lock()
	refreshed := jobs.refreshe
	jobs.mu.Unlock()
	if refreshed != 1 {
		t.Errorf("job refreshes = %d, want 1 after recovery", refreshed)
	}
	stuck.Unlock()
}

func TestWatchdogLeavesHealthyDetectorAlone(t *testing.T) {
	d, _, jobs, _ := newRecordingDetector(t, config.DefaultConfig().Recording)
	d.lastEventAt.Store(time.Now().UnixNano())

	d.watchdogCheck(context.Background())

	jobs.mu.Lock()
	refreshed := jobs.refreshe
	jobs.mu.Unlock()
	if refreshed != 0 {
		t.Error("healthy detector must not trigger recovery")
	}
}
