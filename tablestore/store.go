// Package tablestore is the persistent key/value layer: a typed,
// column-oriented store with atomic transactions, backed by an embedded
// transactional database. Tables may optionally encrypt their rows with an
// AEAD keyed by a (CryptoKind, key) pair.
package tablestore

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/opd-ai/privmesh/crypto"
)

// Store is the top-level handle over the on-disk database. Tables are
// created lazily; each table owns a fixed set of numbered columns.
type Store struct {
	db  *bolt.DB
	log *logrus.Entry

	mu     sync.Mutex
	tables map[string]*Table
}

// Open opens (creating if necessary) the table store at path.
func Open(path string) (*Store, error) {
	log := logrus.WithFields(logrus.Fields{
		"component": "tablestore",
		"path":      path,
	})
	log.Debug("opening table store")

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("tablestore: open %s: %w", path, err)
	}

	return &Store{
		db:     db,
		log:    log,
		tables: make(map[string]*Table),
	}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Table returns a handle to a named table with the given number of numbered
// columns (0..columnCount-1), creating it on first use. An optional cipher
// is used to encrypt every value written to this table.
func (s *Store) Table(name string, columnCount int, cipher *Cipher) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[name]; ok {
		return t, nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		for col := 0; col < columnCount; col++ {
			if _, err := tx.CreateBucketIfNotExists(columnBucketName(name, col)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tablestore: create table %s: %w", name, err)
	}

	t := &Table{
		db:          s.db,
		name:        name,
		columnCount: columnCount,
		cipher:      cipher,
		log:         s.log.WithField("table", name),
	}
	s.tables[name] = t
	return t, nil
}

// Delete drops a table and all of its columns.
func (s *Store) Delete(name string, columnCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		for col := 0; col < columnCount; col++ {
			bucket := columnBucketName(name, col)
			if tx.Bucket(bucket) == nil {
				continue
			}
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	delete(s.tables, name)
	return err
}

func columnBucketName(table string, column int) []byte {
	return []byte(fmt.Sprintf("%s/%d", table, column))
}

// DeriveNonce computes the first crypto.Nonce worth of bytes of
// H(plaintext || key), for callers that can assert plaintext uniqueness
// (e.g. derived lookup keys) and want a nonce without consuming randomness.
func DeriveNonce(plaintext []byte, key crypto.SharedSecret) crypto.Nonce {
	buf := make([]byte, 0, len(plaintext)+len(key))
	buf = append(buf, plaintext...)
	buf = append(buf, key[:]...)
	digest := crypto.Hash(buf)

	var n crypto.Nonce
	copy(n[:], digest[:len(n)])
	return n
}
