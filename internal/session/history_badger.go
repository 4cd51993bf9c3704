// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerHistory persists notification timestamps in a Badger database so
// cooldowns survive a restart. Entries carry a Badger TTL matching the
// notification-history retention, so the database prunes itself.
type BadgerHistory struct {
	db  *badger.DB
	ttl time.Duration
}

const historyKeyPrefix = "notif:"

// OpenBadgerHistory opens (or creates) the history database at path.
func OpenBadgerHistory(path string) (*BadgerHistory, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithNumVersionsToKeep(1)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("session: open history db: %w", err)
	}
	return &BadgerHistory{db: db, ttl: DefaultNotificationTTL}, nil
}

// Record stores the delivery timestamp for key.
func (h *BadgerHistory) Record(key string, at time.Time) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(at.Unix()))
	return h.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(historyKeyPrefix+key), buf[:]).WithTTL(h.ttl)
		return txn.SetEntry(entry)
	})
}

// Last returns the stored delivery timestamp for key.
func (h *BadgerHistory) Last(key string) (time.Time, bool) {
	var at time.Time
	err := h.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(historyKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("session: corrupt history value for %q", key)
			}
			at = time.Unix(int64(binary.BigEndian.Uint64(val)), 0)
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			// Corrupt or unreadable entries degrade to "never sent".
			return time.Time{}, false
		}
		return time.Time{}, false
	}
	return at, true
}

// Close closes the underlying database.
func (h *BadgerHistory) Close() error {
	return h.db.Close()
}
