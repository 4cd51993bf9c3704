// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package dvr

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

// Subscribe opens the DVR event stream and returns the response body for
// line-by-line consumption. The caller owns the body and must close it; the
// read loop ends when ctx is canceled or the connection drops.
//
// There is deliberately no read timeout: the stream idles for as long as the
// DVR has nothing to report. Liveness is covered by the keep-alive pinger.
func (c *Client) Subscribe(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/dvr/events/subscribe", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dvr: subscribe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("dvr: subscribe: HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

var dataPrefix = []byte("data:")

// ParseEventLine parses one line from the event stream. Lines are either raw
// JSON objects or SSE-framed as "data:<json>". Blank lines and SSE comments
// return ok=false with no error; malformed JSON returns an error so the
// caller can count it.
func ParseEventLine(line []byte) (Event, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == ':' {
		return Event{}, false, nil
	}
	if bytes.HasPrefix(line, dataPrefix) {
		line = bytes.TrimSpace(line[len(dataPrefix):])
		if len(line) == 0 {
			return Event{}, false, nil
		}
	}
	if line[0] != '{' {
		// Field lines like "event:" or "id:" carry nothing we consume.
		return Event{}, false, nil
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, false, fmt.Errorf("dvr: parse event: %w", err)
	}
	return ev, true, nil
}
