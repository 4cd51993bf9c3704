// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/channelwatch/internal/config"
	"github.com/tomtom215/channelwatch/internal/dvr"
	"github.com/tomtom215/channelwatch/internal/logging"
	"github.com/tomtom215/channelwatch/internal/metrics"
	"github.com/tomtom215/channelwatch/internal/notify"
	"github.com/tomtom215/channelwatch/internal/session"
)

const recordingTitle = "Channels DVR - Recording Event"

// recordingCooldown dedupes repeated emissions of the same state for the
// same job or file.
const recordingCooldown = 60 * time.Second

// Pending-queue pacing: re-check completions every cycle, bounded per cycle,
// and give up after the deadline.
const (
	pendingInterval   = 2 * time.Second
	pendingBatchLimit = 10
	pendingDeadline   = 10 * time.Minute
)

// Watchdog thresholds: replace the event lock when the detector has gone
// silent and the lock has been held far beyond any legitimate handler.
const (
	watchdogInterval = 5 * time.Minute
	watchdogSilence  = 30 * time.Minute
	watchdogLockHold = 20 * time.Minute
)

// Hourly cleanup probes upstream for at most this many entries per
// partition; the rest waits for the next pass.
const (
	cleanupInterval    = time.Hour
	cleanupProbeBudget = 50
	scheduledMaxAge    = 24 * time.Hour
	pendingMaxAge      = 6 * time.Hour
)

// scheduledLeadTime: jobs starting sooner than this are effectively already
// started and get no Scheduled alert.
const scheduledLeadTime = 30 * time.Second

// JobLookup resolves recording jobs. *metadata.JobProvider satisfies it.
type JobLookup interface {
	Job(ctx context.Context, id string) (dvr.Job, error)
	All(ctx context.Context) ([]dvr.Job, error)
	Refresh(ctx context.Context) error
}

// RecordingLookup fetches completed recordings by file id. *dvr.Client
// satisfies it.
type RecordingLookup interface {
	Recording(ctx context.Context, fileID string) (dvr.Recording, error)
}

// pendingRecording is a completion event whose upstream record is not yet
// processed.
type pendingRecording struct {
	fileID     string
	firstSeen  time.Time
	lastCheck  time.Time
	checkCount int
}

// recordingOutcome classifies a completed recording.
type recordingOutcome struct {
	state string // notification-key state word
	label string // user-visible status
	emoji string
}

// RecordingEvents tracks the recording lifecycle: jobs.created schedules,
// programs.set "recording-" starts, programs.set "recorded-" completes (via
// a retry queue while upstream has not processed the file), jobs.deleted
// cancels scheduled jobs.
//
// The event lock is replaceable: the watchdog swaps in a fresh mutex when
// the detector appears deadlocked, preferring lost transient state over a
// stalled pipeline.
type RecordingEvents struct {
	// lockMu guards the eventLock pointer itself.
	lockMu    sync.Mutex
	eventLock *sync.Mutex

	// lockHeldSince is the unix-nano acquisition time of the current hold,
	// zero when free. lastEventAt is the unix-nano time of the last handled
	// event.
	lockHeldSince atomic.Int64
	lastEventAt   atomic.Int64

	cfg        config.RecordingConfig
	store      *session.Store
	jobs       JobLookup
	recordings RecordingLookup
	channels   ChannelLookup // optional channel-name enrichment
	emit       Emitter
	loc        *time.Location

	scheduled map[string]dvr.Job
	active    map[string]dvr.Job
	pending   map[string]*pendingRecording // fileID -> entry

	limiter *rate.Limiter

	now func() time.Time
}

// NewRecordingEvents wires the detector. channels may be nil.
func NewRecordingEvents(cfg config.RecordingConfig, store *session.Store, jobs JobLookup,
	recordings RecordingLookup, channels ChannelLookup, emit Emitter, loc *time.Location) *RecordingEvents {
	if loc == nil {
		loc = time.UTC
	}
	d := &RecordingEvents{
		cfg:        cfg,
		store:      store,
		jobs:       jobs,
		recordings: recordings,
		channels:   channels,
		emit:       emit,
		loc:        loc,
		scheduled:  make(map[string]dvr.Job),
		active:     make(map[string]dvr.Job),
		pending:    make(map[string]*pendingRecording),
		limiter:    rate.NewLimiter(rate.Every(pendingInterval/pendingBatchLimit), pendingBatchLimit),
		now:        time.Now,
	}
	d.eventLock = &sync.Mutex{}
	return d
}

// lock acquires the current event lock and returns it so unlock releases the
// same mutex even if the watchdog swapped the pointer meanwhile.
func (d *RecordingEvents) lock() *sync.Mutex {
	d.lockMu.Lock()
	m := d.eventLock
	d.lockMu.Unlock()
	m.Lock()
	d.lockHeldSince.Store(d.now().UnixNano())
	return m
}

func (d *RecordingEvents) unlock(m *sync.Mutex) {
	d.lockHeldSince.Store(0)
	m.Unlock()
}

// Name implements Detector.
func (d *RecordingEvents) Name() string { return "recording_events" }

// ShouldHandle implements Detector.
func (d *RecordingEvents) ShouldHandle(ev dvr.Event) bool {
	switch ev.Type {
	case "jobs.created", "jobs.deleted":
		return true
	case "programs.set":
		return strings.HasPrefix(ev.Value, "recording-") || strings.HasPrefix(ev.Value, "recorded-")
	default:
		return false
	}
}

// Handle implements Detector.
func (d *RecordingEvents) Handle(ctx context.Context, ev dvr.Event) {
	d.lastEventAt.Store(d.now().UnixNano())

	switch {
	case ev.Type == "jobs.created":
		d.onJobCreated(ctx, ev.Name)
	case ev.Type == "jobs.deleted":
		d.onJobDeleted(ev.Name)
	case strings.HasPrefix(ev.Value, "recording-"):
		d.onJobStarted(ctx, strings.TrimPrefix(ev.Value, "recording-"))
	case strings.HasPrefix(ev.Value, "recorded-"):
		d.onRecordingCompleted(ctx, strings.TrimPrefix(ev.Value, "recorded-"))
	}
}

// onJobCreated schedules a future job and alerts. The job fetch happens
// before the event lock.
func (d *RecordingEvents) onJobCreated(ctx context.Context, jobID string) {
	if jobID == "" {
		return
	}
	job, err := d.jobs.Job(ctx, jobID)
	if err != nil {
		logging.With("recording").Warn().Err(err).Str("job", jobID).Msg("created job not found upstream")
		return
	}

	start := time.Unix(job.StartTime, 0)
	if start.Before(d.now().Add(scheduledLeadTime)) {
		// Starting immediately; the recording- event will cover it.
		return
	}

	m := d.lock()
	d.scheduled[jobID] = job
	d.unlock(m)

	if d.cfg.AlertScheduled {
		d.emitJob(job, recordingOutcome{state: "scheduled", label: "Scheduled", emoji: "📅"}, start)
	}
}

// onJobStarted moves a job into the active partition.
func (d *RecordingEvents) onJobStarted(ctx context.Context, jobID string) {
	if jobID == "" {
		return
	}
	job, err := d.jobs.Job(ctx, jobID)
	if err != nil {
		logging.With("recording").Warn().Err(err).Str("job", jobID).Msg("started job not found upstream")
		return
	}

	m := d.lock()
	delete(d.scheduled, jobID)
	d.active[jobID] = job
	d.unlock(m)

	if d.cfg.AlertStarted {
		d.emitJob(job, recordingOutcome{state: "started", label: "Recording Started", emoji: "🔴"},
			time.Unix(job.StartTime, 0))
	}
}

// onRecordingCompleted resolves a recorded- event: emit when the file is
// processed, otherwise park it in the pending queue for the retry worker.
func (d *RecordingEvents) onRecordingCompleted(ctx context.Context, fileID string) {
	if fileID == "" {
		return
	}
	rec, err := d.recordings.Recording(ctx, fileID)
	switch {
	case err == nil && rec.Processed:
		d.finishRecording(rec)
	case err == nil || errors.Is(err, dvr.ErrNotFound):
		d.enqueuePending(fileID)
	default:
		logging.With("recording").Warn().Err(err).Str("file", fileID).Msg("completion lookup failed")
		d.enqueuePending(fileID)
	}
}

// onJobDeleted cancels a scheduled job. Deletion of an active job is left to
// the completion path, which classifies the outcome from the recording
// flags.
func (d *RecordingEvents) onJobDeleted(jobID string) {
	if jobID == "" {
		return
	}
	m := d.lock()
	job, wasScheduled := d.scheduled[jobID]
	delete(d.scheduled, jobID)
	d.unlock(m)

	if wasScheduled && d.cfg.AlertCancelled {
		d.emitJob(job, recordingOutcome{state: "cancelled", label: "Recording Cancelled", emoji: "🚫"},
			time.Unix(job.StartTime, 0))
	}
}

func (d *RecordingEvents) enqueuePending(fileID string) {
	m := d.lock()
	if _, exists := d.pending[fileID]; !exists {
		d.pending[fileID] = &pendingRecording{fileID: fileID, firstSeen: d.now()}
		metrics.PendingRecordings.Set(float64(len(d.pending)))
		logging.With("recording").Debug().Str("file", fileID).Msg("completion pending, queued for retry")
	}
	d.unlock(m)
}

// finishRecording classifies and emits a processed recording, clearing its
// job from the active partition.
func (d *RecordingEvents) finishRecording(rec dvr.Recording) {
	outcome := classifyRecording(rec)

	m := d.lock()
	delete(d.active, rec.JobID)
	delete(d.pending, rec.ID)
	metrics.PendingRecordings.Set(float64(len(d.pending)))
	d.unlock(m)

	enabled := d.cfg.AlertCompleted
	if outcome.state == "cancelled" || outcome.state == "stopped" {
		enabled = d.cfg.AlertCancelled
	}
	if !enabled {
		return
	}
	d.emitRecording(rec, outcome)
}

// classifyRecording maps the upstream booleans onto an outcome. The delayed
// flag only decorates a completed recording.
func classifyRecording(rec dvr.Recording) recordingOutcome {
	switch {
	case rec.Cancelled && rec.Completed:
		return recordingOutcome{state: "stopped", label: "Recording Stopped", emoji: "⏹️"}
	case rec.Cancelled:
		return recordingOutcome{state: "cancelled", label: "Recording Cancelled", emoji: "🚫"}
	case rec.Completed && rec.Delayed:
		return recordingOutcome{state: "completed", label: "Recording Completed (Delayed)", emoji: "✅"}
	case rec.Completed:
		return recordingOutcome{state: "completed", label: "Recording Completed", emoji: "✅"}
	default:
		return recordingOutcome{state: "completed", label: "Recording Completed (Interrupted)", emoji: "⚠️"}
	}
}

// emitJob publishes an alert for a scheduled/started/cancelled job.
func (d *RecordingEvents) emitJob(job dvr.Job, outcome recordingOutcome, start time.Time) {
	key := fmt.Sprintf("recording-%s-%s", outcome.state, job.ID)
	if !ShouldSendNotification(d.store, key, recordingCooldown) {
		return
	}
	d.store.RecordNotification(key)

	f := Fields{Status: outcome.emoji + " " + outcome.label}
	if d.cfg.ShowProgramName && job.Name != "" {
		f.Details = append(f.Details, "Program: "+job.Name)
	}
	d.addChannelLines(&f, job.Channel())
	if d.cfg.ShowTime {
		f.Time = "Time: " + formatEventTime(start, d.loc)
	}
	if d.cfg.ShowDuration {
		if run := formatRunLength(job.Duration); run != "" {
			f.Details = append(f.Details, "Duration: "+run)
		}
	}
	if d.cfg.ShowSummary && job.Item.Summary != "" {
		f.Details = append(f.Details, job.Item.Summary)
	}
	d.publish(f, job.Item.ImageURL, outcome, job.Name)
	metrics.EventsAlerted.WithLabelValues(d.Name()).Inc()
}

// emitRecording publishes an alert for a completed recording.
func (d *RecordingEvents) emitRecording(rec dvr.Recording, outcome recordingOutcome) {
	key := fmt.Sprintf("recording-%s-%s", outcome.state, rec.ID)
	if !ShouldSendNotification(d.store, key, recordingCooldown) {
		return
	}
	d.store.RecordNotification(key)

	f := Fields{Status: outcome.emoji + " " + outcome.label}
	if d.cfg.ShowProgramName && rec.Title != "" {
		title := rec.Title
		if rec.EpisodeTitle != "" {
			title += " - " + rec.EpisodeTitle
		}
		f.Details = append(f.Details, "Program: "+title)
	}
	d.addChannelLines(&f, rec.Channel)
	if d.cfg.ShowDuration {
		if run := formatRunLength(int64(rec.Duration)); run != "" {
			f.Details = append(f.Details, "Duration: "+run)
		}
	}
	d.publish(f, rec.ImageURL, outcome, rec.Title)
	metrics.EventsAlerted.WithLabelValues(d.Name()).Inc()
}

func (d *RecordingEvents) addChannelLines(f *Fields, number string) {
	if number == "" {
		return
	}
	if d.cfg.ShowChannelName && d.channels != nil {
		if ch, ok := d.channels.Channel(context.Background(), number); ok && ch.Name != "" {
			f.Details = append(f.Details, "Channel: "+ch.Name)
		}
	}
	if d.cfg.ShowChannelNum {
		f.Details = append(f.Details, "Channel Number: "+number)
	}
}

func (d *RecordingEvents) publish(f Fields, imageURL string, outcome recordingOutcome, subject string) {
	if err := d.emit.Publish(notify.Alert{
		Detector: d.Name(),
		Title:    recordingTitle,
		Message:  FormatBody(f, Options{}),
		ImageURL: imageURL,
		Icon:     "video",
		Subject:  outcome.state + "-" + subject,
	}); err != nil {
		logging.With("recording").Error().Err(err).Msg("publish alert")
	}
}

// Run drives the background work: the pending retry worker, the watchdog,
// and the hourly cleanup. Blocks until ctx is cancelled.
func (d *RecordingEvents) Run(ctx context.Context) error {
	d.preload(ctx)

	pendingTick := time.NewTicker(pendingInterval)
	watchdogTick := time.NewTicker(watchdogInterval)
	cleanupTick := time.NewTicker(cleanupInterval)
	defer pendingTick.Stop()
	defer watchdogTick.Stop()
	defer cleanupTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pendingTick.C:
			d.processPending(ctx)
		case <-watchdogTick.C:
			d.watchdogCheck(ctx)
		case <-cleanupTick.C:
			d.Sweep(ctx)
		}
	}
}

// preload seeds the scheduled and active partitions from the current job
// list without alerting, so a restart does not re-announce known jobs.
func (d *RecordingEvents) preload(ctx context.Context) {
	jobs, err := d.jobs.All(ctx)
	if err != nil {
		logging.With("recording").Warn().Err(err).Msg("job preload failed")
		return
	}
	now := d.now()

	m := d.lock()
	for _, job := range jobs {
		if time.Unix(job.StartTime, 0).After(now) {
			d.scheduled[job.ID] = job
		} else {
			d.active[job.ID] = job
		}
	}
	d.unlock(m)
	logging.With("recording").Info().
		Int("scheduled", len(d.scheduled)).
		Int("active", len(d.active)).
		Msg("job state preloaded")
}

// processPending re-checks queued completions, rate-capped, with all HTTP
// outside the lock.
func (d *RecordingEvents) processPending(ctx context.Context) {
	m := d.lock()
	now := d.now()
	batch := make([]string, 0, pendingBatchLimit)
	for fileID, entry := range d.pending {
		if now.Sub(entry.firstSeen) > pendingDeadline {
			delete(d.pending, fileID)
			logging.With("recording").Warn().Str("file", fileID).Msg("completion never processed, giving up")
			continue
		}
		if len(batch) < pendingBatchLimit {
			batch = append(batch, fileID)
		}
	}
	metrics.PendingRecordings.Set(float64(len(d.pending)))
	d.unlock(m)

	for _, fileID := range batch {
		if !d.limiter.Allow() {
			return
		}
		rec, err := d.recordings.Recording(ctx, fileID)
		if err != nil || !rec.Processed {
			m := d.lock()
			if entry, ok := d.pending[fileID]; ok {
				entry.lastCheck = d.now()
				entry.checkCount++
			}
			d.unlock(m)
			continue
		}
		d.finishRecording(rec)
	}
}

// watchdogCheck replaces the event lock when the detector looks deadlocked:
// no events handled for a long while and the lock held far past any sane
// handler duration. Pending state is reset; the job cache is refreshed so
// subsequent lookups see fresh upstream state.
func (d *RecordingEvents) watchdogCheck(ctx context.Context) {
	now := d.now().UnixNano()
	lastEvent := d.lastEventAt.Load()
	heldSince := d.lockHeldSince.Load()

	if lastEvent != 0 && time.Duration(now-lastEvent) < watchdogSilence {
		return
	}
	if heldSince == 0 || time.Duration(now-heldSince) < watchdogLockHold {
		return
	}

	logging.With("recording").Error().
		Dur("lock_held", time.Duration(now-heldSince)).
		Msg("watchdog replacing event lock")

	d.lockMu.Lock()
	d.eventLock = &sync.Mutex{}
	d.pending = make(map[string]*pendingRecording)
	d.lockMu.Unlock()
	d.lockHeldSince.Store(0)
	metrics.PendingRecordings.Set(0)
	metrics.WatchdogRecoveries.Inc()

	if err := d.jobs.Refresh(ctx); err != nil {
		logging.With("recording").Warn().Err(err).Msg("post-recovery job refresh failed")
	}
}

// Sweep reconciles the partitions against upstream, bounded per pass.
func (d *RecordingEvents) Sweep(ctx context.Context) {
	now := d.now()

	m := d.lock()
	scheduledIDs := make([]string, 0, len(d.scheduled))
	for id, job := range d.scheduled {
		if now.Sub(time.Unix(job.StartTime, 0)) > scheduledMaxAge {
			delete(d.scheduled, id)
			continue
		}
		if len(scheduledIDs) < cleanupProbeBudget {
			scheduledIDs = append(scheduledIDs, id)
		}
	}
	activeIDs := make([]string, 0, len(d.active))
	for id := range d.active {
		if len(activeIDs) < cleanupProbeBudget {
			activeIDs = append(activeIDs, id)
		}
	}
	for fileID, entry := range d.pending {
		if now.Sub(entry.firstSeen) > pendingMaxAge {
			delete(d.pending, fileID)
		}
	}
	metrics.PendingRecordings.Set(float64(len(d.pending)))
	d.unlock(m)

	var goneScheduled, goneActive []string
	for _, id := range scheduledIDs {
		if _, err := d.jobs.Job(ctx, id); errors.Is(err, dvr.ErrNotFound) {
			goneScheduled = append(goneScheduled, id)
		}
	}
	for _, id := range activeIDs {
		if _, err := d.jobs.Job(ctx, id); errors.Is(err, dvr.ErrNotFound) {
			goneActive = append(goneActive, id)
		}
	}
	if len(goneScheduled) == 0 && len(goneActive) == 0 {
		return
	}

	m = d.lock()
	for _, id := range goneScheduled {
		delete(d.scheduled, id)
	}
	for _, id := range goneActive {
		delete(d.active, id)
	}
	d.unlock(m)
	logging.With("recording").Debug().
		Int("scheduled", len(goneScheduled)).
		Int("active", len(goneActive)).
		Msg("swept jobs gone upstream")
}

// Snapshot reports partition sizes for the status API.
func (d *RecordingEvents) Snapshot() (scheduled, active, pending int) {
	m := d.lock()
	scheduled, active, pending = len(d.scheduled), len(d.active), len(d.pending)
	d.unlock(m)
	return
}
