// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package notify delivers alerts to the configured notification providers
// and records them in the activity history.
//
// Detectors publish Alert messages onto an in-process Watermill channel; the
// delivery router consumes them and fans out to each provider with per-
// provider error isolation. Keeping delivery on the router goroutine
// guarantees no provider HTTP ever runs under a detector's event lock.
package notify

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// AlertsTopic is the in-process delivery topic.
const AlertsTopic = "alerts"

// Alert is one notification ready for delivery.
type Alert struct {
	// Detector names the emitting detector (channel_watching, vod_watching,
	// recording_events, disk_space).
	Detector string `json:"detector"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	ImageURL string `json:"image_url,omitempty"`

	// Icon, Subject, and Device feed the activity history record and its
	// dedup key.
	Icon    string `json:"icon,omitempty"`
	Subject string `json:"subject,omitempty"`
	Device  string `json:"device,omitempty"`
}

// toMessage marshals the alert into a Watermill message.
func (a Alert) toMessage() (*message.Message, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("notify: marshal alert: %w", err)
	}
	return message.NewMessage(uuid.New().String(), payload), nil
}

// alertFromMessage is the inverse of toMessage.
func alertFromMessage(msg *message.Message) (Alert, error) {
	var a Alert
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		return Alert{}, fmt.Errorf("notify: unmarshal alert: %w", err)
	}
	return a, nil
}
