// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/tomtom215/channelwatch/internal/activity"
	"github.com/tomtom215/channelwatch/internal/logging"
)

// sendTimeout bounds the total delivery time for one alert across all
// providers.
const sendTimeout = 30 * time.Second

// Pipeline is the alert delivery path: detectors publish, a single router
// handler consumes, records the activity entry, and fans out to providers.
// Running delivery on the router goroutine keeps provider HTTP out of the
// detectors' event handling.
type Pipeline struct {
	pubsub   *gochannel.GoChannel
	router   *message.Router
	manager  *Manager
	recorder *activity.Recorder
}

// NewPipeline wires the in-process pub/sub and the delivery handler.
// recorder may be nil when activity history is disabled.
func NewPipeline(manager *Manager, recorder *activity.Recorder) (*Pipeline, error) {
	wmLogger := newWatermillLogger(*logging.With("delivery"))

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		// Detectors must never block on a slow provider; the buffer absorbs
		// bursts (a recording batch, a reconnect) while delivery catches up.
		OutputChannelBuffer: 128,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("notify: create router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)

	p := &Pipeline{
		pubsub:   pubsub,
		router:   router,
		manager:  manager,
		recorder: recorder,
	}
	router.AddNoPublisherHandler("deliver-alerts", AlertsTopic, pubsub, p.deliver)
	return p, nil
}

// Publish queues an alert for delivery. Safe to call from any goroutine.
func (p *Pipeline) Publish(a Alert) error {
	msg, err := a.toMessage()
	if err != nil {
		return err
	}
	return p.pubsub.Publish(AlertsTopic, msg)
}

// deliver handles one alert end to end. It always returns nil: a failed
// provider send is logged and counted, never redelivered, because the alert
// content is time-sensitive and detectors have their own cooldowns.
func (p *Pipeline) deliver(msg *message.Message) error {
	a, err := alertFromMessage(msg)
	if err != nil {
		logging.With("delivery").Error().Err(err).Str("uuid", msg.UUID).Msg("dropping malformed alert")
		return nil
	}

	if p.recorder != nil {
		p.recorder.Add(a.Detector, a.Title, a.Message, a.Icon, a.Subject, a.Device)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if !p.manager.Send(ctx, a.Title, a.Message, SendOptions{ImageURL: a.ImageURL}) {
		logging.With("delivery").Warn().
			Str("detector", a.Detector).
			Str("title", a.Title).
			Msg("no provider accepted alert")
	}
	return nil
}

// Run starts the router and blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	return p.router.Run(ctx)
}

// Running returns a channel that closes once the router is consuming,
// letting startup wait before the first events flow.
func (p *Pipeline) Running() <-chan struct{} {
	return p.router.Running()
}

// Close shuts down the router and the in-process channel.
func (p *Pipeline) Close() error {
	if err := p.router.Close(); err != nil {
		return err
	}
	return p.pubsub.Close()
}

// watermillLogger adapts zerolog to watermill's logger interface.
type watermillLogger struct {
	l zerolog.Logger
}

func newWatermillLogger(l zerolog.Logger) watermill.LoggerAdapter {
	return watermillLogger{l: l}
}

func (w watermillLogger) event(e *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (w watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.event(w.l.Error().Err(err), msg, fields)
}

func (w watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.event(w.l.Debug(), msg, fields)
}

func (w watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.event(w.l.Debug(), msg, fields)
}

func (w watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.event(w.l.Trace(), msg, fields)
}

func (w watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := w.l.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return watermillLogger{l: ctx.Logger()}
}
