// Package storage provides the backends for Fiber's session store
package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"flashdeck/utils"

	"go.etcd.io/bbolt"
)

var sessionBucket = []byte("sessions")

// BoltStorage keeps Fiber sessions in a bbolt file. Every value is prefixed
// with its expiry as unix nanoseconds (0 = never) and expired entries are
// swept periodically.
type BoltStorage struct {
	db   *bbolt.DB
	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

// NewBoltStorage opens (or creates) dataDir/sessions.db
func NewBoltStorage(dataDir string, gcInterval time.Duration) (*BoltStorage, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "sessions.db")
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	s := &BoltStorage{
		db:   db,
		now:  time.Now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if gcInterval > 0 {
		go s.gcLoop(gcInterval)
	} else {
		close(s.done)
	}
	return s, nil
}

// Get returns the value for key, or nil when it is missing or expired
func (s *BoltStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(sessionBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		exp, val, ok := decodeEntry(raw)
		if !ok || s.expired(exp) {
			return nil
		}
		out = bytes.Clone(val)
		return nil
	})
	return out, err
}

// Set stores val under key for exp (0 = no expiry)
func (s *BoltStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	var expiresAt int64
	if exp > 0 {
		expiresAt = s.now().Add(exp).UnixNano()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionBucket).Put([]byte(key), encodeEntry(expiresAt, val))
	})
}

// Delete removes key
func (s *BoltStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete([]byte(key))
	})
}

// Reset removes every session
func (s *BoltStorage) Reset() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(sessionBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(sessionBucket)
		return err
	})
}

// Close stops the sweeper and closes the database
func (s *BoltStorage) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	return s.db.Close()
}

func (s *BoltStorage) gcLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n, err := s.gc(); err != nil {
				utils.Log.Error("Session sweep failed: %v", err)
			} else if n > 0 {
				utils.Log.Debug("Swept %d expired sessions", n)
			}
		case <-s.stop:
			return
		}
	}
}

// gc deletes expired entries and returns how many went
func (s *BoltStorage) gc() (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			exp, _, ok := decodeEntry(v)
			if !ok || s.expired(exp) {
				stale = append(stale, bytes.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (s *BoltStorage) expired(expiresAt int64) bool {
	return expiresAt != 0 && s.now().UnixNano() >= expiresAt
}

func encodeEntry(expiresAt int64, val []byte) []byte {
	out := make([]byte, 8+len(val))
	binary.BigEndian.PutUint64(out, uint64(expiresAt))
	copy(out[8:], val)
	return out
}

func decodeEntry(raw []byte) (int64, []byte, bool) {
	if len(raw) < 8 {
		return 0, nil, false
	}
	return int64(binary.BigEndian.Uint64(raw[:8])), raw[8:], true
}
