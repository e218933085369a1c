// Package store persists pipeline records (documents, chunks, jobs) in a
// bbolt key-value database with simple secondary indexes.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Collections used by the pipeline.
const (
	CollectionDocuments = "documents"
	CollectionChunks    = "chunks"
	CollectionJobs      = "jobs"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// indexSep separates index value and record ID in index bucket keys.
// Values and IDs must not contain a NUL byte.
const indexSep = "\x00"

// Index declares a secondary index entry for a record.
type Index struct {
	Field string
	Value string
}

// Store is a bbolt-backed key-value store with per-collection buckets.
// Writes are durable on return (at-least-once semantics for the caller);
// no transactions span multiple records.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores record (JSON-encoded) under collection/id and maintains the
// given secondary index entries.
func (s *Store) Put(collection, id string, record any, indexes ...Index) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), data); err != nil {
			return err
		}
		for _, idx := range indexes {
			ib, err := tx.CreateBucketIfNotExists(indexBucket(collection, idx.Field))
			if err != nil {
				return err
			}
			if err := ib.Put([]byte(idx.Value+indexSep+id), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get decodes the record at collection/id into out.
func (s *Store) Get(collection, id string, out any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		return json.Unmarshal(data, out)
	})
}

// Delete removes the record and its index entries.
func (s *Store) Delete(collection, id string, indexes ...Index) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(collection)); b != nil {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		for _, idx := range indexes {
			if ib := tx.Bucket(indexBucket(collection, idx.Field)); ib != nil {
				if err := ib.Delete([]byte(idx.Value + indexSep + id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// QueryByIndex invokes each for every record whose indexed field equals
// value, in record-ID order. The callback receives the raw JSON record.
func (s *Store) QueryByIndex(collection, field, value string, each func(raw []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		ib := tx.Bucket(indexBucket(collection, field))
		b := tx.Bucket([]byte(collection))
		if ib == nil || b == nil {
			return nil
		}

		prefix := []byte(value + indexSep)
		c := ib.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			id := k[len(prefix):]
			data := b.Get(id)
			if data == nil {
				// Stale index entry; record was deleted.
				continue
			}
			if err := each(data); err != nil {
				return err
			}
		}
		return nil
	})
}

// List invokes each for every record in the collection in key order.
func (s *Store) List(collection string, each func(raw []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, data []byte) error {
			return each(data)
		})
	})
}

func indexBucket(collection, field string) []byte {
	return []byte(collection + "_idx_" + field)
}
