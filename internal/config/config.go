// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package config loads and validates ChannelWatch configuration.
//
// Configuration is assembled in three layers (Koanf v2): built-in defaults,
// an optional YAML config file, then CW_* environment variables. The result
// is immutable after Load and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// ImageSource selects which artwork a channel-watching alert prefers.
type ImageSource string

// Recognized image sources. The one not selected is used as fallback.
const (
	ImageSourceChannel ImageSource = "CHANNEL"
	ImageSourceProgram ImageSource = "PROGRAM"
)

// Config holds all application configuration.
//
// The option names mirror the flat settings the UI writes (channels_dvr_host,
// cw_*, rd_*, vod_*, ds_*), grouped by concern. See DefaultConfig for the
// effective defaults of every optional field.
type Config struct {
	DVR       DVRConfig       `koanf:"dvr"`
	Timezone  string          `koanf:"tz"`
	ConfigDir string          `koanf:"config_dir"`
	Logging   LoggingConfig   `koanf:"logging"`
	Alerts    AlertsConfig    `koanf:"alerts"`
	Channel   ChannelConfig   `koanf:"channel_watching"`
	VOD       VODConfig       `koanf:"vod_watching"`
	Recording RecordingConfig `koanf:"recording_events"`
	Disk      DiskConfig      `koanf:"disk_space"`
	Cache     CacheConfig     `koanf:"cache"`
	History   HistoryConfig   `koanf:"history"`
	Pushover  PushoverConfig  `koanf:"pushover"`
	Apprise   AppriseConfig   `koanf:"apprise"`
	Server    ServerConfig    `koanf:"server"`
}

// DVRConfig identifies the upstream Channels DVR server.
type DVRConfig struct {
	Host string `koanf:"host" validate:"required"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`
}

// BaseURL returns the http base URL of the DVR server.
func (d DVRConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.Host, d.Port)
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level accepts zerolog names plus the legacy numeric levels
	// (1 = standard, 2 = verbose).
	Level         string `koanf:"level"`
	Format        string `koanf:"format"`
	RetentionDays int    `koanf:"retention_days" validate:"min=0"`
}

// AlertsConfig enables the individual detectors.
type AlertsConfig struct {
	ChannelWatching bool `koanf:"channel_watching"`
	VODWatching     bool `koanf:"vod_watching"`
	RecordingEvents bool `koanf:"recording_events"`
	DiskSpace       bool `koanf:"disk_space"`

	// StreamCount toggles the unique-device stream tracker and its
	// stream_count.txt output.
	StreamCount bool `koanf:"stream_count"`
}

// ChannelConfig holds cw_* display options for channel-watching alerts.
type ChannelConfig struct {
	ShowChannelName   bool        `koanf:"show_channel_name"`
	ShowChannelNumber bool        `koanf:"show_channel_number"`
	ShowProgramName   bool        `koanf:"show_program_name"`
	ShowDeviceName    bool        `koanf:"show_device_name"`
	ShowDeviceIP      bool        `koanf:"show_device_ip"`
	ShowResolution    bool        `koanf:"show_resolution"`
	ShowSource        bool        `koanf:"show_source"`
	ShowStreamCount   bool        `koanf:"show_stream_count"`
	ImageSource       ImageSource `koanf:"image_source" validate:"oneof=CHANNEL PROGRAM"`
}

// VODConfig holds vod_* display options and alert pacing.
type VODConfig struct {
	ShowTitle      bool `koanf:"show_title"`
	ShowEpisode    bool `koanf:"show_episode"`
	ShowSummary    bool `koanf:"show_summary"`
	ShowDuration   bool `koanf:"show_duration"`
	ShowProgress   bool `koanf:"show_progress"`
	ShowImage      bool `koanf:"show_image"`
	ShowRating     bool `koanf:"show_rating"`
	ShowGenres     bool `koanf:"show_genres"`
	ShowCast       bool `koanf:"show_cast"`
	ShowDeviceName bool `koanf:"show_device_name"`
	ShowDeviceIP   bool `koanf:"show_device_ip"`

	// AlertCooldown is the minimum gap between notifications for the same
	// VOD session, in seconds.
	AlertCooldown int `koanf:"alert_cooldown" validate:"min=0"`

	// SignificantThreshold is the playback-time delta in seconds that
	// bypasses the cooldown (a seek or a large jump). Zero disables it.
	SignificantThreshold int `koanf:"significant_threshold" validate:"min=0"`
}

// RecordingConfig holds rd_* toggles for recording-event alerts.
type RecordingConfig struct {
	AlertScheduled bool `koanf:"alert_scheduled"`
	AlertStarted   bool `koanf:"alert_started"`
	AlertCompleted bool `koanf:"alert_completed"`
	AlertCancelled bool `koanf:"alert_cancelled"`

	ShowProgramName bool `koanf:"show_program_name"`
	ShowChannelName bool `koanf:"show_channel_name"`
	ShowChannelNum  bool `koanf:"show_channel_number"`
	ShowTime        bool `koanf:"show_time"`
	ShowDuration    bool `koanf:"show_duration"`
	ShowSummary     bool `koanf:"show_summary"`
}

// DiskConfig holds ds_* thresholds for the disk-space detector.
type DiskConfig struct {
	// ThresholdPercent alerts when free space drops below this percentage.
	ThresholdPercent float64 `koanf:"threshold_percent" validate:"min=0,max=100"`
	// ThresholdGB alerts when free space drops below this many GiB.
	ThresholdGB float64 `koanf:"threshold_gb" validate:"min=0"`
}

// CacheConfig holds per-cache TTLs in seconds.
type CacheConfig struct {
	ChannelTTL int `koanf:"channel_ttl" validate:"min=1"`
	ProgramTTL int `koanf:"program_ttl" validate:"min=1"`
	JobTTL     int `koanf:"job_ttl" validate:"min=1"`
	VODTTL     int `koanf:"vod_ttl" validate:"min=1"`
}

// HistoryConfig controls the notification-history store. When Persist is
// set, cooldown timestamps are kept in a Badger database under the config
// directory so restarts do not re-alert inside a cooldown window.
type HistoryConfig struct {
	Persist bool   `koanf:"persist"`
	Path    string `koanf:"path"`
}

// PushoverConfig holds Pushover credentials.
type PushoverConfig struct {
	UserKey  string `koanf:"user_key"`
	APIToken string `koanf:"api_token"`
}

// AppriseConfig holds the multi-service notification URLs. Each field takes
// one or more service URLs separated by commas.
type AppriseConfig struct {
	Discord  string `koanf:"discord"`
	Email    string `koanf:"email"`
	EmailTo  string `koanf:"email_to"`
	Telegram string `koanf:"telegram"`
	Slack    string `koanf:"slack"`
	Gotify   string `koanf:"gotify"`
	Matrix   string `koanf:"matrix"`
	Custom   string `koanf:"custom"`
}

// ServerConfig configures the read-only control plane.
type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port" validate:"min=0,max=65535"`
	// RequestsPerMinute rate-limits API clients per IP. Zero disables.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"min=0"`
}

// DefaultConfig returns a Config with every optional field set to its
// documented default. Detector toggles default on; providers default off.
func DefaultConfig() *Config {
	return &Config{
		DVR:       DVRConfig{Host: "", Port: 8089},
		Timezone:  "UTC",
		ConfigDir: "/config",
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "console",
			RetentionDays: 7,
		},
		Alerts: AlertsConfig{
			ChannelWatching: true,
			VODWatching:     true,
			RecordingEvents: true,
			DiskSpace:       true,
			StreamCount:     true,
		},
		Channel: ChannelConfig{
			ShowChannelName:   true,
			ShowChannelNumber: true,
			ShowProgramName:   true,
			ShowDeviceName:    true,
			ShowDeviceIP:      true,
			ShowResolution:    true,
			ShowSource:        true,
			ShowStreamCount:   true,
			ImageSource:       ImageSourceChannel,
		},
		VOD: VODConfig{
			ShowTitle:            true,
			ShowEpisode:          true,
			ShowSummary:          true,
			ShowDuration:         true,
			ShowProgress:         true,
			ShowImage:            true,
			ShowRating:           true,
			ShowGenres:           true,
			ShowCast:             true,
			ShowDeviceName:       true,
			ShowDeviceIP:         true,
			AlertCooldown:        300,
			SignificantThreshold: 300,
		},
		Recording: RecordingConfig{
			AlertScheduled:  true,
			AlertStarted:    true,
			AlertCompleted:  true,
			AlertCancelled:  true,
			ShowProgramName: true,
			ShowChannelName: true,
			ShowChannelNum:  true,
			ShowTime:        true,
			ShowDuration:    true,
			ShowSummary:     true,
		},
		Disk: DiskConfig{
			ThresholdPercent: 10,
			ThresholdGB:      50,
		},
		Cache: CacheConfig{
			ChannelTTL: 86400,
			ProgramTTL: 86400,
			JobTTL:     3600,
			VODTTL:     86400,
		},
		History: HistoryConfig{
			Persist: false,
			Path:    "",
		},
		Server: ServerConfig{
			Enabled:           true,
			Host:              "0.0.0.0",
			Port:              8501,
			RequestsPerMinute: 120,
		},
	}
}

// Location resolves the configured IANA zone. Falls back to UTC only for an
// empty value; an invalid zone is a configuration error.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid tz %q: %w", c.Timezone, err)
	}
	return loc, nil
}
