// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package dvr is the HTTP and SSE transport to the Channels DVR server.
//
// The Client exposes typed fetchers for channels, jobs, recordings, the VOD
// catalog, the XMLTV guide, and disk status, each with its own timeout. All
// fetches run through a circuit breaker so a flapping upstream trips fast
// instead of piling up blocked goroutines; the SSE subscription bypasses the
// breaker because its lifecycle is managed by the event monitor's own
// reconnect loop.
package dvr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/channelwatch/internal/logging"
)

// ErrNotFound reports that the requested entity does not exist upstream.
// Completion handling relies on it to distinguish "not processed yet" from
// transport failures.
var ErrNotFound = errors.New("dvr: not found")

// Per-operation timeouts. XMLTV responses are routinely tens of megabytes.
const (
	statusTimeout  = 5 * time.Second
	lookupTimeout  = 10 * time.Second
	catalogTimeout = 20 * time.Second
	xmltvTimeout   = 30 * time.Second
)

// Client talks to one Channels DVR server.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// New creates a Client for the given base URL (http://host:port).
func New(baseURL string) *Client {
	settings := gobreaker.Settings{
		Name:     "dvr",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.With("dvr").Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// get performs a breaker-protected GET with the given timeout and returns
// the response body. A 404 maps to ErrNotFound; the breaker does not count
// it as a failure.
func (c *Client) get(ctx context.Context, path string, timeout time.Duration) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("dvr: GET %s: %w", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			// Not a failure, the entity just is not there (yet).
			return nil, ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("dvr: GET %s: HTTP %d", path, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func getJSON[T any](ctx context.Context, c *Client, path string, timeout time.Duration) (T, error) {
	var out T
	body, err := c.get(ctx, path, timeout)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("dvr: decode %s: %w", path, err)
	}
	return out, nil
}

// Status fetches the DVR version and confirms liveness.
func (c *Client) Status(ctx context.Context) (Status, error) {
	return getJSON[Status](ctx, c, "/status", statusTimeout)
}

// Ping issues the keep-alive status probe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}

// DiskInfo fetches storage state from /dvr. The volume path lives on the
// envelope, not the disk object.
func (c *Client) DiskInfo(ctx context.Context) (DiskInfo, error) {
	resp, err := getJSON[dvrResponse](ctx, c, "/dvr", lookupTimeout)
	if err != nil {
		return DiskInfo{}, err
	}
	disk := resp.Disk
	if disk.Path == "" {
		disk.Path = resp.Path
	}
	return disk, nil
}

// Channels fetches the channel lineup.
func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	return getJSON[[]Channel](ctx, c, "/api/v1/channels", lookupTimeout)
}

// XMLTV fetches the raw program guide.
func (c *Client) XMLTV(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/devices/ANY/guide/xmltv", xmltvTimeout)
}

// Jobs fetches all active and scheduled recording jobs.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	jobs, err := getJSON[[]Job](ctx, c, "/api/v1/jobs", catalogTimeout)
	if err == nil {
		return jobs, nil
	}
	// Older servers only expose the legacy path.
	return getJSON[[]Job](ctx, c, "/dvr/jobs", catalogTimeout)
}

// Job fetches a single job by id. Returns ErrNotFound when the job is gone.
func (c *Client) Job(ctx context.Context, id string) (Job, error) {
	jobs, err := c.Jobs(ctx)
	if err != nil {
		return Job{}, err
	}
	for _, j := range jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
}

// Recording fetches a completed recording by file id, falling back to a
// catalog scan when the direct endpoint does not know the file yet.
func (c *Client) Recording(ctx context.Context, fileID string) (Recording, error) {
	rec, err := getJSON[Recording](ctx, c, "/api/v1/recordings/"+fileID, lookupTimeout)
	if err == nil && rec.ID != "" {
		return rec, nil
	}

	all, aerr := getJSON[[]Recording](ctx, c, "/api/v1/all", catalogTimeout)
	if aerr != nil {
		if err != nil {
			return Recording{}, err
		}
		return Recording{}, aerr
	}
	for _, r := range all {
		if r.ID == fileID {
			return r, nil
		}
	}
	return Recording{}, fmt.Errorf("recording %s: %w", fileID, ErrNotFound)
}

// Catalog fetches the full VOD and recordings catalog.
func (c *Client) Catalog(ctx context.Context) ([]VODItem, error) {
	return getJSON[[]VODItem](ctx, c, "/api/v1/all", catalogTimeout)
}
