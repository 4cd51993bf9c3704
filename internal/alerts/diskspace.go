// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package alerts

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tomtom215/channelwatch/internal/config"
	"github.com/tomtom215/channelwatch/internal/dvr"
	"github.com/tomtom215/channelwatch/internal/logging"
	"github.com/tomtom215/channelwatch/internal/metrics"
	"github.com/tomtom215/channelwatch/internal/notify"
	"github.com/tomtom215/channelwatch/internal/session"
)

const diskTitle = "Channels DVR - Disk Space Alert"

const (
	diskPollInterval   = 120 * time.Second
	diskErrorBackoff   = 5 * time.Second
	diskBackoffCap     = 30 * time.Second
	diskAlertCooldown  = time.Hour
	diskHealthInterval = 30 * time.Minute
	diskHistorySize    = 24
)

const gib = 1 << 30

// DiskLookup fetches storage state. *dvr.Client satisfies it.
type DiskLookup interface {
	DiskInfo(ctx context.Context) (dvr.DiskInfo, error)
}

// diskSample is one poll result kept for the trend estimate.
type diskSample struct {
	at   time.Time
	free uint64
}

// DiskSpace polls the DVR volume on its own loop, independent of the event
// stream. An alert fires when free space drops below either threshold; the
// latch and a one-hour cooldown stop repeats until the disk recovers.
type DiskSpace struct {
	cfg   config.DiskConfig
	disk  DiskLookup
	store *session.Store
	emit  Emitter

	mu          sync.Mutex
	alertSent   bool
	history     []diskSample
	lastSuccess time.Time

	now func() time.Time
}

// NewDiskSpace wires the detector.
func NewDiskSpace(cfg config.DiskConfig, disk DiskLookup, store *session.Store, emit Emitter) *DiskSpace {
	return &DiskSpace{
		cfg:   cfg,
		disk:  disk,
		store: store,
		emit:  emit,
		now:   time.Now,
	}
}

// Name identifies the detector in logs and the status API.
func (d *DiskSpace) Name() string { return "disk_space" }

// Run is the polling loop with jitter and error backoff. The embedded
// health check restarts a poller that has stopped making progress. Blocks
// until ctx is cancelled.
func (d *DiskSpace) Run(ctx context.Context) error {
	health := time.NewTicker(diskHealthInterval)
	defer health.Stop()

	pollerCtx, cancel := context.WithCancel(ctx)
	go d.pollLoop(pollerCtx)

	for {
		select {
		case <-ctx.Done():
			cancel()
			return ctx.Err()
		case <-health.C:
			d.mu.Lock()
			stalled := !d.lastSuccess.IsZero() &&
				d.now().Sub(d.lastSuccess) > 3*diskPollInterval+diskHealthInterval
			d.mu.Unlock()
			if stalled {
				logging.With("disk").Warn().Msg("poller stalled, restarting")
				cancel()
				pollerCtx, cancel = context.WithCancel(ctx)
				go d.pollLoop(pollerCtx)
			}
		}
	}
}

func (d *DiskSpace) pollLoop(ctx context.Context) {
	backoff := diskErrorBackoff
	for {
		err := d.Check(ctx)

		var wait time.Duration
		if err != nil {
			logging.With("disk").Warn().Err(err).Msg("disk poll failed")
			wait = backoff
			backoff *= 2
			if backoff > diskBackoffCap {
				backoff = diskBackoffCap
			}
		} else {
			backoff = diskErrorBackoff
			wait = diskPollInterval + time.Duration(rand.Int63n(int64(10*time.Second)))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Check performs one poll: fetch, evaluate thresholds, maintain the latch
// and trend history. Exported so tests and a startup probe can drive it
// directly.
func (d *DiskSpace) Check(ctx context.Context) error {
	info, err := d.disk.DiskInfo(ctx)
	if err != nil {
		return err
	}
	if info.Total == 0 {
		// No data is not an alert condition.
		return nil
	}

	freePercent := info.FreePercent()
	metrics.DiskFreePercent.Set(freePercent)

	low := freePercent < d.cfg.ThresholdPercent ||
		float64(info.Free) < d.cfg.ThresholdGB*gib

	d.mu.Lock()
	now := d.now()
	d.lastSuccess = now
	d.history = append(d.history, diskSample{at: now, free: info.Free})
	if len(d.history) > diskHistorySize {
		d.history = d.history[len(d.history)-diskHistorySize:]
	}
	shouldAlert := low && !d.alertSent
	if low {
		d.alertSent = true
	} else if d.alertSent {
		d.alertSent = false
		logging.With("disk").Info().Float64("free_percent", freePercent).Msg("disk recovered")
	}
	estimate := d.estimateLocked()
	d.mu.Unlock()

	if estimate > 0 {
		logging.With("disk").Debug().
			Dur("time_to_threshold", estimate).
			Float64("free_percent", freePercent).
			Msg("disk trend")
	}

	if shouldAlert && ShouldSendNotification(d.store, "disk-low-space", diskAlertCooldown) {
		d.store.RecordNotification("disk-low-space")
		d.publish(info, freePercent)
		metrics.EventsAlerted.WithLabelValues(d.Name()).Inc()
	}
	return nil
}

func (d *DiskSpace) publish(info dvr.DiskInfo, freePercent float64) {
	details := []string{
		"⚠️ Low Disk Space",
		fmt.Sprintf("Free: %s (%.1f%%)", formatBytes(info.Free), freePercent),
		fmt.Sprintf("Used: %s", formatBytes(info.Used)),
		fmt.Sprintf("Total: %s", formatBytes(info.Total)),
	}
	if info.Path != "" {
		details = append(details, "Path: "+info.Path)
	}
	if err := d.emit.Publish(notify.Alert{
		Detector: d.Name(),
		Title:    diskTitle,
		Message:  FormatBody(Fields{Details: details}, Options{}),
		Icon:     "hard-drive",
		Subject:  "disk",
	}); err != nil {
		logging.With("disk").Error().Err(err).Msg("publish alert")
	}
}

// estimateLocked fits a line to the free-bytes history and returns the time
// until free space hits the GiB threshold. Zero when not estimable or not
// shrinking. Caller holds d.mu.
func (d *DiskSpace) estimateLocked() time.Duration {
	if len(d.history) < 3 {
		return 0
	}
	base := d.history[0].at
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(d.history))
	for _, s := range d.history {
		x := s.at.Sub(base).Seconds()
		y := float64(s.free)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom // bytes per second
	if slope >= 0 {
		return 0
	}
	current := float64(d.history[len(d.history)-1].free)
	threshold := d.cfg.ThresholdGB * gib
	if current <= threshold {
		return 0
	}
	seconds := (current - threshold) / -slope
	return time.Duration(seconds * float64(time.Second))
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
