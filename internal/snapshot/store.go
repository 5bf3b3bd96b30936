// Package snapshot caches the last fully synced document set per room on
// disk, so a session that starts offline can show last-known content
// immediately. The cache is best-effort and is overwritten wholesale by the
// next full sync from the relay.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store is a bbolt-backed room -> document-set cache. One bucket per room,
// one key per filename.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the cache file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot cache %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// SaveRoom replaces the cached document set for roomID.
func (s *Store) SaveRoom(roomID string, files map[string]string) error {
	if roomID == "" {
		return errors.New("snapshot: empty room id")
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(roomID)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket([]byte(roomID))
		if err != nil {
			return err
		}
		for name, content := range files {
			if err := b.Put([]byte(name), []byte(content)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot for room %s: %w", roomID, err)
	}
	return nil
}

// LoadRoom returns the cached document set for roomID, or an empty map if
// none has been saved.
func (s *Store) LoadRoom(roomID string) (map[string]string, error) {
	files := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(roomID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			files[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot for room %s: %w", roomID, err)
	}
	return files, nil
}

// DeleteRoom drops the cached set for roomID, if any.
func (s *Store) DeleteRoom(roomID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(roomID)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete snapshot for room %s: %w", roomID, err)
	}
	return nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}
