package tablestore

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/sirupsen/logrus"
)

// Table is a fixed set of numbered columns, each an independent key/value
// map, committed together by atomic transactions.
type Table struct {
	db          *bolt.DB
	name        string
	columnCount int
	cipher      *Cipher
	log         *logrus.Entry
}

func (t *Table) column(col int) error {
	if col < 0 || col >= t.columnCount {
		return fmt.Errorf("tablestore: column %d out of range [0,%d) for table %s", col, t.columnCount, t.name)
	}
	return nil
}

// Get reads a single key from a column outside of an explicit transaction.
func (t *Table) Get(col int, key []byte) ([]byte, bool, error) {
	if err := t.column(col); err != nil {
		return nil, false, err
	}

	var value []byte
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(columnBucketName(t.name, col))
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if value == nil {
		return nil, false, nil
	}
	if t.cipher != nil {
		plain, derr := t.cipher.open(value)
		if derr != nil {
			return nil, false, derr
		}
		return plain, true, nil
	}
	return value, true, nil
}

// Set writes a single key to a column outside of an explicit transaction.
func (t *Table) Set(col int, key, value []byte) error {
	tx, err := t.Begin()
	if err != nil {
		return err
	}
	if err := tx.Set(col, key, value); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Delete removes a single key from a column outside of an explicit
// transaction.
func (t *Table) Delete(col int, key []byte) error {
	tx, err := t.Begin()
	if err != nil {
		return err
	}
	if err := tx.Delete(col, key); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Keys returns every key currently stored in a column.
func (t *Table) Keys(col int) ([][]byte, error) {
	if err := t.column(col); err != nil {
		return nil, err
	}

	var keys [][]byte
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(columnBucketName(t.name, col))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		})
	})
	return keys, err
}

// Begin starts an atomic transaction spanning every column of the table.
func (t *Table) Begin() (*Txn, error) {
	tx, err := t.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("tablestore: begin transaction: %w", err)
	}
	return &Txn{table: t, tx: tx}, nil
}
