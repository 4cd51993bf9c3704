// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package alerts

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/tomtom215/channelwatch/internal/dvr"
	"github.com/tomtom215/channelwatch/internal/logging"
	"github.com/tomtom215/channelwatch/internal/metadata"
	"github.com/tomtom215/channelwatch/internal/notify"
)

// captureLogs redirects the global logger into a buffer (json format, so
// fields are assertable) for the duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := logging.Init(logging.Config{Level: "info", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("init logging: %v", err)
	}
	t.Cleanup(func() { _ = logging.Init(logging.DefaultConfig()) })
	return &buf
}

// captureEmitter records published alerts for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (c *captureEmitter) Publish(a notify.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureEmitter) all() []notify.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func (c *captureEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

type fakeChannels struct {
	byNumber map[string]dvr.Channel
}

func (f *fakeChannels) Channel(_ context.Context, number string) (dvr.Channel, bool) {
	ch, ok := f.byNumber[number]
	return ch, ok
}

type fakeGuide struct {
	byNumber map[string]metadata.Program
}

func (f *fakeGuide) CurrentProgram(_ context.Context, number string) (metadata.Program, bool) {
	p, ok := f.byNumber[number]
	return p, ok
}

type fakeVOD struct {
	byID map[string]dvr.VODItem
}

func (f *fakeVOD) Item(_ context.Context, id string) (dvr.VODItem, bool) {
	item, ok := f.byID[id]
	return item, ok
}

type fakeJobs struct {
	mu       sync.Mutex
	byID     map[string]dvr.Job
	refreshe int
}

func (f *fakeJobs) Job(_ context.Context, id string) (dvr.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.byID[id]; ok {
		return job, nil
	}
	return dvr.Job{}, dvr.ErrNotFound
}

func (f *fakeJobs) All(_ context.Context) ([]dvr.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs := make([]dvr.Job, 0, len(f.byID))
	for _, j := range f.byID {
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (f *fakeJobs) Refresh(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshe++
	return nil
}

func (f *fakeJobs) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
}

type fakeRecordings struct {
	mu   sync.Mutex
	byID map[string]dvr.Recording
	// fetches counts lookups per file id.
	fetches map[string]int
}

func (f *fakeRecordings) Recording(_ context.Context, fileID string) (dvr.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetches == nil {
		f.fetches = make(map[string]int)
	}
	f.fetches[fileID]++
	if rec, ok := f.byID[fileID]; ok {
		return rec, nil
	}
	return dvr.Recording{}, dvr.ErrNotFound
}

func (f *fakeRecordings) set(rec dvr.Recording) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byID == nil {
		f.byID = make(map[string]dvr.Recording)
	}
	f.byID[rec.ID] = rec
}

type fakeDisk struct {
	mu   sync.Mutex
	info dvr.DiskInfo
	err  error
}

func (f *fakeDisk) DiskInfo(_ context.Context) (dvr.DiskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info, f.err
}

func (f *fakeDisk) set(info dvr.DiskInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
}
