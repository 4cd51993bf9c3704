// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrStandby marks configuration states where the sidecar cannot run yet but
// should wait and re-read config rather than exit (missing DVR host, bad
// timezone). See the standby loop in cmd/channelwatch.
var ErrStandby = errors.New("configuration incomplete")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural constraints and the fields that gate startup.
// Errors wrapping ErrStandby are recoverable by editing the config file.
func Validate(cfg *Config) error {
	if cfg.DVR.Host == "" {
		return fmt.Errorf("%w: dvr.host is not set", ErrStandby)
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrStandby, err)
	}

	if err := validate.Struct(cfg); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("config: validate: %w", err)
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config: field %s fails %q (value %v)", f.Namespace(), f.Tag(), f.Value())
		}
		return fmt.Errorf("config: validate: %w", err)
	}
	return nil
}
