// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/config/channelwatch.yaml",
	"/etc/channelwatch/config.yaml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CW_CONFIG_PATH"

// envPrefix namespaces ChannelWatch environment variables.
// CW_DVR__HOST maps to dvr.host, CW_VOD_WATCHING__ALERT_COOLDOWN to
// vod_watching.alert_cooldown, and so on ("__" separates nesting levels).
const envPrefix = "CW_"

// legacyEnvAliases maps the environment names the original container images
// documented onto koanf keys. They apply after CW_* variables.
var legacyEnvAliases = map[string]string{
	"CHANNELS_DVR_HOST":  "dvr.host",
	"CHANNELS_DVR_PORT":  "dvr.port",
	"TZ":                 "tz",
	"LOG_LEVEL":          "logging.level",
	"LOG_RETENTION_DAYS": "logging.retention_days",
	"PUSHOVER_USER_KEY":  "pushover.user_key",
	"PUSHOVER_API_TOKEN": "pushover.api_token",
	"APPRISE_EMAIL_TO":   "apprise.email_to",
}

// Load assembles configuration from defaults, an optional YAML file, and
// environment variables, then validates the result.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	for name, key := range legacyEnvAliases {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("config: apply %s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envToKey maps CW_SECTION__FIELD_NAME to section.field_name.
func envToKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// findConfigFile returns the first existing config file, honoring the
// CW_CONFIG_PATH override. Empty means "defaults plus environment only".
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
