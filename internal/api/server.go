// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package api serves the read-only control plane for the operator UI:
// liveness, Prometheus metrics, live status, activity history, and a
// redacted view of the effective settings. There are no write endpoints;
// configuration changes go through the config file.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/channelwatch/internal/activity"
	"github.com/tomtom215/channelwatch/internal/config"
	"github.com/tomtom215/channelwatch/internal/logging"
)

// StatusSource reports ingest state. *monitor.Monitor satisfies it.
type StatusSource interface {
	Connected() bool
	EventCounts() (total, filtered, errors int64)
}

// StreamCounter reports the live stream count. *stream.Tracker satisfies it.
type StreamCounter interface {
	Count() int
}

// RecordingSnapshot reports recording partition sizes.
// *alerts.RecordingEvents satisfies it.
type RecordingSnapshot interface {
	Snapshot() (scheduled, active, pending int)
}

// Server is the control-plane HTTP server.
type Server struct {
	cfg        config.ServerConfig
	status     StatusSource
	streams    StreamCounter
	recordings RecordingSnapshot
	recorder   *activity.Recorder
	settings   *config.Config
}

// New wires the server. Any of status, streams, recordings, recorder may be
// nil; the corresponding fields are simply omitted.
func New(cfg config.ServerConfig, settings *config.Config, status StatusSource,
	streams StreamCounter, recordings RecordingSnapshot, recorder *activity.Recorder) *Server {
	return &Server{
		cfg:        cfg,
		status:     status,
		streams:    streams,
		recordings: recordings,
		recorder:   recorder,
		settings:   settings,
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))
	if s.cfg.RequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RequestsPerMinute, time.Minute))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/activity", s.handleActivity)
		r.Get("/settings", s.handleSettings)
	})
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.With("api").Info().Str("addr", addr).Msg("control plane listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{}
	if s.status != nil {
		total, filtered, errs := s.status.EventCounts()
		resp["connected"] = s.status.Connected()
		resp["events"] = map[string]int64{
			"total":    total,
			"filtered": filtered,
			"errors":   errs,
		}
	}
	if s.streams != nil {
		resp["active_streams"] = s.streams.Count()
	}
	if s.recordings != nil {
		scheduled, active, pending := s.recordings.Snapshot()
		resp["recordings"] = map[string]int{
			"scheduled": scheduled,
			"active":    active,
			"pending":   pending,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActivity(w http.ResponseWriter, _ *http.Request) {
	if s.recorder == nil {
		writeJSON(w, http.StatusOK, []activity.Record{})
		return
	}
	entries, err := s.recorder.All()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	if entries == nil {
		entries = []activity.Record{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleSettings returns the effective configuration with provider
// credentials masked.
func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	redacted := *s.settings
	redacted.Pushover.UserKey = mask(redacted.Pushover.UserKey)
	redacted.Pushover.APIToken = mask(redacted.Pushover.APIToken)
	redacted.Apprise.Discord = maskList(redacted.Apprise.Discord)
	redacted.Apprise.Email = maskList(redacted.Apprise.Email)
	redacted.Apprise.Telegram = maskList(redacted.Apprise.Telegram)
	redacted.Apprise.Slack = maskList(redacted.Apprise.Slack)
	redacted.Apprise.Gotify = maskList(redacted.Apprise.Gotify)
	redacted.Apprise.Matrix = maskList(redacted.Apprise.Matrix)
	redacted.Apprise.Custom = maskList(redacted.Apprise.Custom)
	writeJSON(w, http.StatusOK, redacted)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func maskList(s string) string {
	if s == "" {
		return ""
	}
	return "configured"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.With("api").Debug().Err(err).Msg("response encode failed")
	}
}
