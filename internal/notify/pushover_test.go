// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPushoverUnconfigured(t *testing.T) {
	if NewPushover("", "").IsConfigured() {
		t.Error("empty credentials must report unconfigured")
	}
	if !NewPushover("user", "token").IsConfigured() {
		t.Error("full credentials must report configured")
	}
}

func TestPushoverSendForm(t *testing.T) {
	var gotToken, gotUser, gotTitle, gotMessage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotToken = r.PostFormValue("token")
		gotUser = r.PostFormValue("user")
		gotTitle = r.PostFormValue("title")
		gotMessage = r.PostFormValue("message")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushover("user-key", "api-token")
	p.endpoint = srv.URL
	if err := p.Send(context.Background(), "Watching TV", "ABC on ch7", SendOptions{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotToken != "api-token" || gotUser != "user-key" {
		t.Errorf("credentials = %q/%q", gotToken, gotUser)
	}
	if gotTitle != "Watching TV" || gotMessage != "ABC on ch7" {
		t.Errorf("content = %q/%q", gotTitle, gotMessage)
	}
}

func TestPushoverSendWithAttachment(t *testing.T) {
	image := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("fake-jpeg-bytes"))
	}))
	defer image.Close()

	var contentType string
	var gotAttachment bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			_, _, ferr := r.FormFile("attachment")
			gotAttachment = ferr == nil
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushover("user-key", "api-token")
	p.endpoint = srv.URL
	if err := p.Send(context.Background(), "Watching TV", "msg", SendOptions{ImageURL: image.URL}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		t.Errorf("content type = %q, want multipart", contentType)
	}
	if !gotAttachment {
		t.Error("attachment field missing from multipart body")
	}
}

func TestPushoverImageFailureStillDelivers(t *testing.T) {
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushover("user-key", "api-token")
	p.endpoint = srv.URL
	err := p.Send(context.Background(), "title", "msg",
		SendOptions{ImageURL: "http://127.0.0.1:1/missing.jpg"})
	if err != nil {
		t.Fatalf("Send with dead image host: %v", err)
	}
	if !strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		t.Errorf("content type = %q, want plain form", contentType)
	}
}

func TestPushoverErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"errors":["invalid token"]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewPushover("user-key", "api-token")
	p.endpoint = srv.URL
	if err := p.Send(context.Background(), "title", "msg", SendOptions{}); err == nil {
		t.Error("non-200 response must surface as an error")
	}
}
