package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	recordBucket     = "records"
	expiryValueBytes = 8
)

var errBucketMissing = errors.New("record bucket missing")

// boltStore implements a Store backed by BoltDB. Keys are grouped in one
// nested bucket per series, taken from the key prefix before the first "|".
type boltStore struct {
	db        *bolt.DB
	recordTTL time.Duration
	cleanup   *cleanupGate
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	return &boltStore{
		db:        db,
		recordTTL: opts.RecordTTL,
		cleanup:   newCleanupGate(opts.CleanupInterval, time.Now()),
	}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// SeenRecord reports whether key was marked and has not expired yet.
// Expired entries are deleted on lookup.
func (b *boltStore) SeenRecord(key string) (bool, error) {
	if b == nil || b.db == nil {
		return false, nil
	}

	now := time.Now()
	if err := b.cleanup.maybeRun(now, b.sweep); err != nil {
		return false, err
	}

	group, member := splitKey(key)
	var seen bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(recordBucket))
		if root == nil {
			return errBucketMissing
		}
		bucket := root.Bucket(group)
		if bucket == nil {
			return nil
		}

		value := bucket.Get(member)
		if value == nil {
			return nil
		}
		if expiry, ok := decodeExpiry(value); ok && expiry.After(now) {
			seen = true
			return nil
		}
		return bucket.Delete(member)
	})
	return seen, err
}

// MarkRecord stores key with an expiry of now + TTL.
func (b *boltStore) MarkRecord(key string) error {
	if b == nil || b.db == nil {
		return nil
	}

	now := time.Now()
	if err := b.cleanup.maybeRun(now, b.sweep); err != nil {
		return err
	}

	group, member := splitKey(key)
	return b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(recordBucket))
		if root == nil {
			return errBucketMissing
		}
		bucket, err := root.CreateBucketIfNotExists(group)
		if err != nil {
			return fmt.Errorf("create series bucket: %w", err)
		}
		return bucket.Put(member, encodeExpiry(now.Add(b.recordTTL)))
	})
}

// sweep removes expired keys from every series bucket.
func (b *boltStore) sweep(now time.Time) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(recordBucket))
		if root == nil {
			return errBucketMissing
		}

		var groups [][]byte
		if err := root.ForEach(func(k, v []byte) error {
			if v == nil {
				groups = append(groups, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, g := range groups {
			bucket := root.Bucket(g)
			cursor := bucket.Cursor()
			for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
				if expiry, ok := decodeExpiry(v); !ok || !expiry.After(now) {
					if err := cursor.Delete(); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// splitKey separates the series prefix from the rest of the key.
// Keys without a usable prefix land whole in the "_" group.
func splitKey(key string) ([]byte, []byte) {
	group, member, ok := strings.Cut(key, "|")
	if !ok || group == "" || member == "" {
		return []byte("_"), []byte(key)
	}
	return []byte(group), []byte(member)
}

func encodeExpiry(t time.Time) []byte {
	buf := make([]byte, expiryValueBytes)
	binary.BigEndian.PutUint64(buf, uint64(t.Unix()))
	return buf
}

// decodeExpiry decodes the expiry time from the stored byte slice.
func decodeExpiry(value []byte) (time.Time, bool) {
	if len(value) != expiryValueBytes {
		return time.Time{}, false
	}
	unix := int64(binary.BigEndian.Uint64(value))
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
