package state

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	boltBucket = []byte("bggeo")
	boltKey    = []byte("config")
)

// BoltStore keeps the configuration in a bbolt database file.
type BoltStore struct {
	db      *bolt.DB
	commits committer
}

// OpenBoltStore opens (creating if needed) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := EnsureParentDir(path); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bolt bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Get(ctx context.Context) (*Configuration, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(boltKey); v != nil {
			// Values are only valid for the life of the transaction.
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration from bolt: %w", err)
	}
	if data == nil {
		return nil, ErrNotFound
	}
	return Decode(data)
}

func (b *BoltStore) Set(ctx context.Context, cfg *Configuration, done func(CommitResult)) {
	b.commits.commit(ctx, cfg, func(_ context.Context, data []byte) error {
		err := b.db.Update(func(tx *bolt.Tx) error {
			bucket, err := tx.CreateBucketIfNotExists(boltBucket)
			if err != nil {
				return err
			}
			return bucket.Put(boltKey, data)
		})
		if err != nil {
			return fmt.Errorf("failed to store configuration in bolt: %w", err)
		}
		return nil
	}, done)
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
