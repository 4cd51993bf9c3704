// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/channelwatch/internal/logging"
)

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// Image attachments larger than this are dropped rather than rejected by
// the Pushover API (its documented limit is 2.5 MiB).
const pushoverMaxImageBytes = 2 << 20

// Pushover sends notifications through the Pushover message API, attaching
// artwork as a multipart upload when an image URL is available.
type Pushover struct {
	userKey  string
	apiToken string
	endpoint string

	client      *http.Client
	imageClient *http.Client
}

// NewPushover creates a Pushover provider. Empty credentials yield a
// provider that reports itself unconfigured.
func NewPushover(userKey, apiToken string) *Pushover {
	return &Pushover{
		userKey:  userKey,
		apiToken: apiToken,
		endpoint: pushoverEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		// Artwork is best effort: a slow image host must not stall the
		// notification itself.
		imageClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Type implements Provider.
func (p *Pushover) Type() string { return "pushover" }

// IsConfigured implements Provider.
func (p *Pushover) IsConfigured() bool {
	return p.userKey != "" && p.apiToken != ""
}

// Send implements Provider.
func (p *Pushover) Send(ctx context.Context, title, message string, opts SendOptions) error {
	if image := p.fetchImage(ctx, opts.ImageURL); image != nil {
		if err := p.sendMultipart(ctx, title, message, image); err == nil {
			return nil
		} else {
			logging.With("notify").Debug().Err(err).Msg("pushover attachment send failed, retrying without image")
		}
	}
	return p.sendForm(ctx, title, message)
}

func (p *Pushover) sendForm(ctx context.Context, title, message string) error {
	form := url.Values{
		"token":   {p.apiToken},
		"user":    {p.userKey},
		"title":   {title},
		"message": {message},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req)
}

func (p *Pushover) sendMultipart(ctx context.Context, title, message string, image []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for field, value := range map[string]string{
		"token":   p.apiToken,
		"user":    p.userKey,
		"title":   title,
		"message": message,
	} {
		if err := w.WriteField(field, value); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("attachment", "image.jpg")
	if err != nil {
		return err
	}
	if _, err := part.Write(image); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return p.do(req)
}

func (p *Pushover) do(req *http.Request) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("pushover: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// fetchImage downloads artwork for attachment. Any failure returns nil so
// the notification goes out without an image.
func (p *Pushover) fetchImage(ctx context.Context, imageURL string) []byte {
	if imageURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil
	}
	resp, err := p.imageClient.Do(req)
	if err != nil {
		logging.With("notify").Debug().Err(err).Str("url", imageURL).Msg("image download failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, pushoverMaxImageBytes+1))
	if err != nil || len(data) == 0 || len(data) > pushoverMaxImageBytes {
		return nil
	}
	return data
}
