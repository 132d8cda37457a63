// Package storage provides persistent data storage for the melody predictor.
// It uses BoltDB as the underlying storage engine to store the training corpus
// and an audit trail of selection decisions.
//
// Sequences are keyed by their corpus ID. Selection records are keyed by a
// zero-padded timestamp so that cursor scans return them in time order.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bayesian-melody-predictor/internal/dataset"

	"go.etcd.io/bbolt"
)

const (
	sequencesBucket  = "sequences"  // Bucket name for corpus sequences
	selectionsBucket = "selections" // Bucket name for selection audit records

	dbFileName = "melody-data.db"
)

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the database under dataPath and ensures both
// buckets exist.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(sequencesBucket)); err != nil {
			return fmt.Errorf("create sequences bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(selectionsBucket)); err != nil {
			return fmt.Errorf("create selections bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PutSequence stores or replaces one corpus row.
func (s *Store) PutSequence(row dataset.Row) error {
	if row.ID == "" {
		return fmt.Errorf("sequence id must not be empty")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putRow(tx.Bucket([]byte(sequencesBucket)), row)
	})
}

// ImportRows stores rows in a single transaction and returns how many were
// written. Rows without an ID are skipped.
func (s *Store) ImportRows(rows []dataset.Row) (int, error) {
	written := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(sequencesBucket))
		for _, row := range rows {
			if row.ID == "" {
				continue
			}
			if err := putRow(b, row); err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Rows returns every stored corpus row in key order. Malformed records are
// skipped.
func (s *Store) Rows() ([]dataset.Row, error) {
	var rows []dataset.Row

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sequencesBucket)).ForEach(func(_, v []byte) error {
			var row dataset.Row
			if err := json.Unmarshal(v, &row); err != nil {
				return nil
			}
			rows = append(rows, row)
			return nil
		})
	})

	return rows, err
}

// CountSequences returns the number of stored corpus rows.
func (s *Store) CountSequences() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(sequencesBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func putRow(b *bbolt.Bucket, row dataset.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal sequence %s: %w", row.ID, err)
	}
	return b.Put([]byte(row.ID), data)
}

// getRecordsInRange scans bucketName from startKey through every key whose
// leading len(endKey) bytes compare <= endKey, decoding each value.
func (s *Store) getRecordsInRange(bucketName string, startKey, endKey []byte, unmarshalFunc func([]byte) (interface{}, error)) ([]interface{}, error) {
	var records []interface{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()

		for k, v := c.Seek(startKey); k != nil && compareKeys(keyPrefix(k, len(endKey)), endKey) <= 0; k, v = c.Next() {
			record, err := unmarshalFunc(v)
			if err != nil {
				continue // Skip malformed records
			}
			records = append(records, record)
		}

		return nil
	})

	return records, err
}

func keyPrefix(k []byte, n int) []byte {
	if len(k) < n {
		return k
	}
	return k[:n]
}

func compareKeys(a, b []byte) int {
	return bytes.Compare(a, b)
}
