// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"1", zerolog.InfoLevel, false},
		{"2", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"verbose", zerolog.DebugLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"bogus", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: "debug", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Info().Str("key", "value").Msg("hello")
	out := buf.String()
	if !strings.Contains(out, `"key":"value"`) || !strings.Contains(out, "hello") {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestDailyWriterRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	w, err := newDailyWriter(dir, 7)
	if err != nil {
		t.Fatalf("newDailyWriter: %v", err)
	}
	defer w.Close()

	// Seed an old file that must be pruned on the next roll.
	old := time.Now().AddDate(0, 0, -30).Format("2006-01-02")
	oldPath := filepath.Join(dir, "logs", fmt.Sprintf("%s%s.log", logFilePrefix, old))
	if err := os.WriteFile(oldPath, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed old file: %v", err)
	}

	if _, err := w.Write([]byte("line\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	today := filepath.Join(dir, "logs", fmt.Sprintf("%s%s.log", logFilePrefix, time.Now().Format("2006-01-02")))
	if _, err := os.Stat(today); err != nil {
		t.Errorf("expected today's log file: %v", err)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("expected stale log file to be pruned, stat err = %v", err)
	}
}

func TestSlogHandlerBridgesLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: "info", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	logger := NewSlogLogger()

	logger.Debug("invisible")
	logger.Info("visible", slog.String("k", "v"))

	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Error("debug record should be filtered at info level")
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("expected info record with attrs, got: %s", out)
	}
}

func TestSlogHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: "debug", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	logger := NewSlogLogger().WithGroup("dvr").With(slog.String("host", "localhost"))
	logger.Info("connected")

	if !strings.Contains(buf.String(), `"dvr.host":"localhost"`) {
		t.Errorf("expected grouped attribute, got: %s", buf.String())
	}
}
