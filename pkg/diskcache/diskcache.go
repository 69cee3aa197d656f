// Package diskcache is a bbolt-backed cache of named map snapshots for the
// CLI's cache command, adapted from the teacher's
// pkg/storage/boltdb.go: one bucket, db.Update/db.View per operation, and
// the same create-bucket-on-open discipline. Unlike the teacher's store it
// holds exactly one bucket and its values are §6.2 textual dumps, not JSON.
package diskcache

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketSnapshots = []byte("snapshots")

// Cache is a bbolt-backed key/value store of snapshot name -> §6.2 dump.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if absent) a cache database at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("diskcache: failed to open %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("diskcache: failed to create bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores dump under name, overwriting any existing entry.
func (c *Cache) Put(name string, dump []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		return b.Put([]byte(name), dump)
	})
}

// Get returns the dump stored under name, or ok=false if absent.
func (c *Cache) Get(name string) (dump []byte, ok bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		v := b.Get([]byte(name))
		if v == nil {
			return nil
		}
		dump = make([]byte, len(v))
		copy(dump, v)
		ok = true
		return nil
	})
	return dump, ok, err
}

// List returns every snapshot name currently cached, in key order.
func (c *Cache) List() ([]string, error) {
	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// Delete removes name from the cache. Deleting an absent name is a no-op.
func (c *Cache) Delete(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		return b.Delete([]byte(name))
	})
}

// Prune removes every cached entry, leaving the bucket empty.
func (c *Cache) Prune() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketSnapshots); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketSnapshots)
		return err
	})
}
