package tablestore

import (
	bolt "go.etcd.io/bbolt"
)

// Txn is an atomic, snapshotted transaction across a table's columns. A Txn
// must be committed or rolled back exactly once.
type Txn struct {
	table *Table
	tx    *bolt.Tx
	done  bool
}

func (x *Txn) bucket(col int) (*bolt.Bucket, error) {
	if err := x.table.column(col); err != nil {
		return nil, err
	}
	return x.tx.Bucket(columnBucketName(x.table.name, col)), nil
}

// Get reads a key within the transaction's snapshot.
func (x *Txn) Get(col int, key []byte) ([]byte, bool, error) {
	b, err := x.bucket(col)
	if err != nil {
		return nil, false, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, false, nil
	}
	value := append([]byte(nil), v...)
	if x.table.cipher != nil {
		plain, derr := x.table.cipher.open(value)
		if derr != nil {
			return nil, false, derr
		}
		return plain, true, nil
	}
	return value, true, nil
}

// Set writes a key within the transaction.
func (x *Txn) Set(col int, key, value []byte) error {
	b, err := x.bucket(col)
	if err != nil {
		return err
	}
	stored := value
	if x.table.cipher != nil {
		sealed, serr := x.table.cipher.seal(value)
		if serr != nil {
			return serr
		}
		stored = sealed
	}
	return b.Put(key, stored)
}

// Delete removes a key within the transaction.
func (x *Txn) Delete(col int, key []byte) error {
	b, err := x.bucket(col)
	if err != nil {
		return err
	}
	return b.Delete(key)
}

// Commit durably applies every write made through the transaction.
func (x *Txn) Commit() error {
	if x.done {
		return nil
	}
	x.done = true
	return x.tx.Commit()
}

// Rollback discards every write made through the transaction.
func (x *Txn) Rollback() error {
	if x.done {
		return nil
	}
	x.done = true
	return x.tx.Rollback()
}
