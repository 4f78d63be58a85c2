package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MegaGrindStone/site-assistant/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the session Store interface using a BoltDB backend for persistent storage of
// threads. Each thread is stored as a single JSON value keyed by its id, so every write is a full
// overwrite.
type BoltDB struct {
	db *bolt.DB
}

var threadsBucket = []byte("threads")

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(threadsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create threads bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Get retrieves the thread stored under threadID. It returns models.ErrThreadNotFound if there is none.
func (b BoltDB) Get(_ context.Context, threadID string) (models.Thread, error) {
	var thread models.Thread
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(threadsBucket)
		if bk == nil {
			return models.ErrThreadNotFound
		}

		v := bk.Get([]byte(threadID))
		if v == nil {
			return models.ErrThreadNotFound
		}

		if err := json.Unmarshal(v, &thread); err != nil {
			return fmt.Errorf("failed to unmarshal thread: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Thread{}, err
	}
	return thread, nil
}

// Set stores the thread, replacing any previous state under the same id.
func (b BoltDB) Set(_ context.Context, thread models.Thread) error {
	v, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists(threadsBucket)
		if err != nil {
			return fmt.Errorf("failed to create threads bucket: %w", err)
		}
		return bk.Put([]byte(thread.ID), v)
	})
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}
