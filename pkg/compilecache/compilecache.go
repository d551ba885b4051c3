// Package compilecache keeps the output of lowering declarative modules in a
// bbolt database, so that unchanged modules are not lowered again on the next
// run.
package compilecache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"src.jsrt.sh/pkg/logutil"
)

var logger = logutil.GetLogger("[compilecache] ")

// SchemaVersion is bumped whenever the layout of entries changes. A database
// written with a different version has its entries dropped on open.
const SchemaVersion = "1"

const (
	bucketEntries = "entries"
	bucketMeta    = "meta"
	keySchema     = "schema"
)

// ErrNotFound is returned by Get when there is no entry for a key.
var ErrNotFound = errors.New("no such cache entry")

var initDB = map[string]func(*bolt.Tx) error{
	"initialize entry table": func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketEntries))
		return err
	},
	"check schema version": func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return err
		}
		if v := meta.Get([]byte(keySchema)); v != nil && string(v) != SchemaVersion {
			logger.Printf("dropping entries of schema version %s", v)
			if err := tx.DeleteBucket([]byte(bucketEntries)); err != nil {
				return err
			}
			if _, err := tx.CreateBucket([]byte(bucketEntries)); err != nil {
				return err
			}
		}
		return meta.Put([]byte(keySchema), []byte(SchemaVersion))
	},
}

// Order in which initDB runs; the entry table must exist before the schema
// check can recreate it.
var initOrder = []string{"initialize entry table", "check schema version"}

// Cache is a persistent map from module sources to lowered code. It is safe
// for concurrent use.
type Cache struct {
	db *bolt.DB
}

// Open opens the cache database at path, creating it if needed.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open compile cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range initOrder {
			if err := initDB[name](tx); err != nil {
				return fmt.Errorf("failed to %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Println("opened", path)
	return &Cache{db}, nil
}

// Key derives the key of a module from its id, its source and the identity of
// the lowering (such as the version of the transformer).
func Key(id string, src []byte, lowering string) string {
	h := sha256.New()
	h.Write([]byte(lowering))
	h.Write([]byte{0})
	h.Write([]byte(id))
	h.Write([]byte{0})
	h.Write(src)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the code stored under key, or ErrNotFound.
func (c *Cache) Get(key string) ([]byte, error) {
	var code []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketEntries)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction.
		code = append([]byte(nil), v...)
		return nil
	})
	return code, err
}

// Put stores code under key.
func (c *Cache) Put(key string, code []byte) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketEntries)).Put([]byte(key), code)
	})
}

// Delete removes the entry stored under key, if any.
func (c *Cache) Delete(key string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketEntries)).Delete([]byte(key))
	})
}

// Len returns the number of entries.
func (c *Cache) Len() (int, error) {
	var n int
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketEntries)).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
