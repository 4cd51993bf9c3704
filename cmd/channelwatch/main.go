// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Command channelwatch runs the Channels DVR alerting sidecar: it follows
// the DVR's event stream, reconstructs watching/recording/disk state, and
// pushes notifications through the configured providers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tomtom215/channelwatch/internal/activity"
	"github.com/tomtom215/channelwatch/internal/alerts"
	"github.com/tomtom215/channelwatch/internal/api"
	"github.com/tomtom215/channelwatch/internal/config"
	"github.com/tomtom215/channelwatch/internal/dvr"
	"github.com/tomtom215/channelwatch/internal/logging"
	"github.com/tomtom215/channelwatch/internal/metadata"
	"github.com/tomtom215/channelwatch/internal/monitor"
	"github.com/tomtom215/channelwatch/internal/notify"
	"github.com/tomtom215/channelwatch/internal/session"
	"github.com/tomtom215/channelwatch/internal/stream"
	"github.com/tomtom215/channelwatch/internal/supervisor"
)

// standbyInterval is how often an incomplete configuration is re-read. The
// sidecar idles rather than crash-loops while the operator fills in the DVR
// host.
const standbyInterval = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		restart, err := run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "channelwatch: %v\n", err)
			os.Exit(1)
		}
		if !restart || ctx.Err() != nil {
			return
		}
		logging.With("main").Info().Msg("configuration changed, restarting")
	}
}

// run executes one configuration generation. It returns restart=true when
// the config file changed and the process should re-wire itself.
func run(ctx context.Context) (restart bool, err error) {
	cfg, err := loadOrStandby(ctx)
	if err != nil {
		return false, err
	}
	if cfg == nil {
		return false, nil // shutdown during standby
	}

	if err := logging.Init(logging.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Directory:     cfg.ConfigDir,
		RetentionDays: cfg.Logging.RetentionDays,
	}); err != nil {
		return false, fmt.Errorf("logging: %w", err)
	}
	log := logging.With("main")

	loc, err := cfg.Location()
	if err != nil {
		return false, err
	}

	client := dvr.New(cfg.DVR.BaseURL())
	log.Info().Str("dvr", cfg.DVR.BaseURL()).Msg("starting channelwatch")

	channels := metadata.NewChannelProvider(client, secs(cfg.Cache.ChannelTTL))
	guide := metadata.NewGuideProvider(client, secs(cfg.Cache.ProgramTTL), loc)
	jobs := metadata.NewJobProvider(client, secs(cfg.Cache.JobTTL))
	vod := metadata.NewVODProvider(client, secs(cfg.Cache.VODTTL))

	var history *session.BadgerHistory
	if cfg.History.Persist {
		path := cfg.History.Path
		if path == "" {
			path = filepath.Join(cfg.ConfigDir, "history")
		}
		history, err = session.OpenBadgerHistory(path)
		if err != nil {
			// Persistence is an optimization; run with in-memory cooldowns.
			log.Warn().Err(err).Str("path", path).Msg("history store unavailable")
		} else {
			defer history.Close()
		}
	}
	var store *session.Store
	if history != nil {
		store = session.NewStore(history)
	} else {
		store = session.NewStore(nil)
	}

	var tracker *stream.Tracker
	if cfg.Alerts.StreamCount {
		tracker = stream.NewTracker(filepath.Join(cfg.ConfigDir, "stream_count.txt"))
	}

	recorder := activity.NewRecorder(filepath.Join(cfg.ConfigDir, "activity_history.json"))

	manager := notify.NewManager(
		notify.NewPushover(cfg.Pushover.UserKey, cfg.Pushover.APIToken),
		notify.NewMultiService(cfg.Apprise),
	)
	if names := manager.Configured(); len(names) == 0 {
		log.Warn().Msg("no notification providers configured, alerts will only reach the activity log")
	} else {
		log.Info().Strs("providers", names).Msg("notification providers ready")
	}

	pipeline, err := notify.NewPipeline(manager, recorder)
	if err != nil {
		return false, fmt.Errorf("pipeline: %w", err)
	}
	defer pipeline.Close()

	// Detector registration order decides dispatch order.
	var (
		detectors []alerts.Detector
		sweepers  []alerts.Sweeper
	)
	if cfg.Alerts.ChannelWatching {
		detectors = append(detectors, alerts.NewChannelWatching(cfg.Channel, store, tracker, channels, guide, pipeline))
	}
	if cfg.Alerts.VODWatching {
		vw := alerts.NewVODWatching(cfg.VOD, vod, pipeline)
		detectors = append(detectors, vw)
		sweepers = append(sweepers, vw)
	}
	var recording *alerts.RecordingEvents
	if cfg.Alerts.RecordingEvents {
		recording = alerts.NewRecordingEvents(cfg.Recording, store, jobs, client, channels, pipeline, loc)
		detectors = append(detectors, recording)
		// Not a janitor sweeper: its Run loop owns the hourly,
		// probe-budgeted partition cleanup.
	}

	mon := monitor.New(client, tracker, detectors...)

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddDeliveryService(supervisor.NewService("alert-pipeline", pipeline))
	tree.AddIngestService(supervisor.NewService("event-monitor", mon))
	tree.AddIngestService(supervisor.NewService("keepalive", monitor.NewKeepAlive(client)))
	tree.AddIngestService(supervisor.NewService("janitor", monitor.NewJanitor(store, tracker, sweepers...)))
	if recording != nil {
		tree.AddIngestService(supervisor.NewService("recording-loops", recording))
	}
	if cfg.Alerts.DiskSpace {
		disk := alerts.NewDiskSpace(cfg.Disk, client, store, pipeline)
		tree.AddIngestService(supervisor.NewService("disk-space", disk))
	}
	if cfg.Server.Enabled {
		var streams api.StreamCounter
		if tracker != nil {
			streams = tracker
		}
		var snapshot api.RecordingSnapshot
		if recording != nil {
			snapshot = recording
		}
		srv := api.New(cfg.Server, cfg, mon, streams, snapshot, recorder)
		tree.AddAPIService(supervisor.NewService("control-plane", srv))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes := watchConfig(runCtx)

	errCh := tree.ServeBackground(runCtx)
	select {
	case <-ctx.Done():
		cancel()
		<-errCh
		return false, nil
	case <-changes:
		cancel()
		<-errCh
		// The watch channel also closes on shutdown; only a live process
		// restarts.
		return ctx.Err() == nil, nil
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			return false, nil
		}
		return false, err
	}
}

// loadOrStandby loads configuration, idling on recoverable validation
// failures until the operator completes the file. Returns (nil, nil) when
// ctx is cancelled while waiting.
func loadOrStandby(ctx context.Context) (*config.Config, error) {
	for {
		cfg, err := config.Load()
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, config.ErrStandby) {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "channelwatch: standby: %v (retrying in %s)\n", err, standbyInterval)
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(standbyInterval):
		}
	}
}

// watchConfig watches the active config file. Returns a nil channel (never
// signals) when no file is in use or the watcher cannot start.
func watchConfig(ctx context.Context) <-chan struct{} {
	path := configFilePath()
	if path == "" {
		return nil
	}
	changes, err := config.Watch(ctx, path)
	if err != nil {
		logging.With("main").Warn().Err(err).Msg("config watch unavailable, restart to apply changes")
		return nil
	}
	return changes
}

func configFilePath() string {
	if p := os.Getenv(config.ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range config.DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
