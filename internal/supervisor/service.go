// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package supervisor

import (
	"context"
	"errors"
)

// Runner is any long-running loop that serves until its context is
// cancelled. Monitor.Run, KeepAlive.Run, Janitor.Run, the detector loops,
// the alert pipeline, and the API server all fit this shape.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a bare function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Service adapts a Runner to suture.Service. Context cancellation is
// normal termination, not a failure, so suture does not restart a service
// that stopped because the tree is shutting down.
type Service struct {
	name   string
	runner Runner
}

// NewService wraps a runner under the given name.
func NewService(name string, runner Runner) *Service {
	return &Service{name: name, runner: runner}
}

// Serve runs the loop. Implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err()
	}
	return err
}

// String names the service in supervisor logs.
func (s *Service) String() string { return s.name }
