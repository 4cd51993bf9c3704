// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package session owns the shared viewing-session registry: active sessions,
// in-flight event markers, and recent-notification timestamps. One mutex
// protects all three maps; every operation is O(1) so detectors can call in
// from their event locks without ordering concerns.
package session

import (
	"sync"
	"time"

	"github.com/tomtom215/channelwatch/internal/logging"
)

// Session is one live viewing session keyed by the upstream event Name.
type Session struct {
	ChannelNumber string
	ChannelName   string
	Device        string
	IP            string
	Source        string
	Resolution    string
	ProgramTitle  string
	ImageURL      string
	StreamCount   int

	// Timestamp is the last touch; the cleanup sweep evicts on it.
	Timestamp time.Time
}

// Cleanup TTLs, matching the sweeper defaults.
const (
	DefaultSessionTTL      = 4 * time.Hour
	DefaultEventTTL        = 5 * time.Minute
	DefaultNotificationTTL = 24 * time.Hour
)

// HistoryStore persists notification timestamps across restarts. The badger
// implementation in this package satisfies it; a nil store keeps history in
// memory only.
type HistoryStore interface {
	Record(key string, at time.Time) error
	Last(key string) (time.Time, bool)
	Close() error
}

// Store is the thread-safe session registry.
type Store struct {
	mu            sync.Mutex
	sessions      map[string]Session
	processing    map[string]time.Time
	notifications map[string]time.Time
	persist       HistoryStore

	now func() time.Time
}

// NewStore creates an empty registry. persist may be nil.
func NewStore(persist HistoryStore) *Store {
	return &Store{
		sessions:      make(map[string]Session),
		processing:    make(map[string]time.Time),
		notifications: make(map[string]time.Time),
		persist:       persist,
		now:           time.Now,
	}
}

// AddSession adds or updates a session, refreshing its last-touch timestamp.
func (s *Store) AddSession(id string, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Timestamp = s.now()
	_, existed := s.sessions[id]
	s.sessions[id] = sess
	if !existed {
		logging.With("session").Debug().Str("session", id).Msg("session added")
	}
}

// Touch refreshes the last-touch timestamp of an existing session.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Timestamp = s.now()
		s.sessions[id] = sess
	}
}

// Session returns the session for id.
func (s *Store) Session(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// RemoveSession deletes a session if present.
func (s *Store) RemoveSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		logging.With("session").Debug().Str("session", id).Msg("session removed")
	}
}

// DeviceSession finds the session a device currently holds, excluding
// exceptID. Used by the channel detector to spot channel switches.
func (s *Store) DeviceSession(device, exceptID string) (string, Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if id != exceptID && sess.Device == device && device != "" {
			return id, sess, true
		}
	}
	return "", Session{}, false
}

// Count returns the number of active sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// TryMarkEventProcessing records an in-flight marker for the tracking key.
// Returns false when the key is already marked: the caller must back off
// without emitting (reentrancy guard).
func (s *Store) TryMarkEventProcessing(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.processing[key]; busy {
		return false
	}
	s.processing[key] = s.now()
	return true
}

// CompleteEventProcessing clears the in-flight marker.
func (s *Store) CompleteEventProcessing(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processing, key)
}

// RecordNotification stamps the notification key with the current time.
func (s *Store) RecordNotification(key string) {
	s.mu.Lock()
	now := s.now()
	s.notifications[key] = now
	persist := s.persist
	s.mu.Unlock()

	if persist != nil {
		if err := persist.Record(key, now); err != nil {
			logging.With("session").Warn().Err(err).Str("key", key).Msg("persist notification history")
		}
	}
}

// WasNotificationSent reports whether a notification for key was delivered
// within the window. Falls back to the persistent store so cooldowns hold
// across restarts.
func (s *Store) WasNotificationSent(key string, within time.Duration) bool {
	s.mu.Lock()
	last, ok := s.notifications[key]
	now := s.now()
	persist := s.persist
	s.mu.Unlock()

	if !ok && persist != nil {
		if t, found := persist.Last(key); found {
			last, ok = t, true
			s.mu.Lock()
			s.notifications[key] = t
			s.mu.Unlock()
		}
	}
	return ok && now.Sub(last) < within
}

// Cleanup evicts stale sessions, markers, and history entries. Returns the
// number of sessions removed.
func (s *Store) Cleanup(sessionTTL, eventTTL, notificationTTL time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.Timestamp) > sessionTTL {
			delete(s.sessions, id)
			removed++
		}
	}
	for key, at := range s.processing {
		if now.Sub(at) > eventTTL {
			delete(s.processing, key)
		}
	}
	for key, at := range s.notifications {
		if now.Sub(at) > notificationTTL {
			delete(s.notifications, key)
		}
	}
	if removed > 0 {
		logging.With("session").Debug().Int("removed", removed).Msg("stale sessions swept")
	}
	return removed
}

// Close releases the persistent history store, if any.
func (s *Store) Close() error {
	if s.persist != nil {
		return s.persist.Close()
	}
	return nil
}
