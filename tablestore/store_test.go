package tablestore

import (
	"path/filepath"
	"testing"

	"github.com/opd-ai/privmesh/crypto"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTableSetGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	table, err := s.Table("nodes", 2, nil)
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}

	if err := table.Set(0, []byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, ok, err := table.Get(0, []byte("key1"))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !ok {
		t.Fatal("Get() reported missing key")
	}
	if string(got) != "value1" {
		t.Errorf("Get() = %q, want %q", got, "value1")
	}
}

func TestTableGetMissingKey(t *testing.T) {
	s := openTestStore(t)
	table, err := s.Table("nodes", 1, nil)
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}

	_, ok, err := table.Get(0, []byte("missing"))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("Get() reported a key that was never set")
	}
}

func TestTableColumnsAreIndependent(t *testing.T) {
	s := openTestStore(t)
	table, err := s.Table("nodes", 2, nil)
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}

	if err := table.Set(0, []byte("k"), []byte("col0")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := table.Set(1, []byte("k"), []byte("col1")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	v0, _, _ := table.Get(0, []byte("k"))
	v1, _, _ := table.Get(1, []byte("k"))
	if string(v0) != "col0" || string(v1) != "col1" {
		t.Errorf("columns not independent: col0=%q col1=%q", v0, v1)
	}
}

func TestTableColumnOutOfRange(t *testing.T) {
	s := openTestStore(t)
	table, err := s.Table("nodes", 1, nil)
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}

	if _, _, err := table.Get(5, []byte("k")); err == nil {
		t.Error("Get() expected error for out-of-range column")
	}
}

func TestTableDelete(t *testing.T) {
	s := openTestStore(t)
	table, err := s.Table("nodes", 1, nil)
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}

	if err := table.Set(0, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := table.Delete(0, []byte("k")); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	_, ok, err := table.Get(0, []byte("k"))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("key still present after Delete()")
	}
}

func TestTxnRollbackDiscardsWrites(t *testing.T) {
	s := openTestStore(t)
	table, err := s.Table("nodes", 1, nil)
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}

	txn, err := table.Begin()
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if err := txn.Set(0, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := txn.Rollback(); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	_, ok, err := table.Get(0, []byte("k"))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("rolled-back write is visible")
	}
}

func TestTableEncryptedRoundTrip(t *testing.T) {
	s := openTestStore(t)
	cipher, err := NewCipher(crypto.VLD0)
	if err != nil {
		t.Fatalf("NewCipher() failed: %v", err)
	}

	table, err := s.Table("secrets", 1, cipher)
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}

	if err := table.Set(0, []byte("k"), []byte("plaintext value")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, ok, err := table.Get(0, []byte("k"))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !ok {
		t.Fatal("Get() reported missing key")
	}
	if string(got) != "plaintext value" {
		t.Errorf("Get() = %q, want %q", got, "plaintext value")
	}
}

func TestDeriveNonceDeterministic(t *testing.T) {
	var key crypto.SharedSecret
	key[0] = 1

	a := DeriveNonce([]byte("same plaintext"), key)
	b := DeriveNonce([]byte("same plaintext"), key)
	if a != b {
		t.Error("DeriveNonce() not deterministic for identical input")
	}

	c := DeriveNonce([]byte("different plaintext"), key)
	if a == c {
		t.Error("DeriveNonce() collided on distinct plaintexts")
	}
}

func TestKeys(t *testing.T) {
	s := openTestStore(t)
	table, err := s.Table("nodes", 1, nil)
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}

	if err := table.Set(0, []byte("a"), []byte("1")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := table.Set(0, []byte("b"), []byte("2")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	keys, err := table.Keys(0)
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys() returned %d keys, want 2", len(keys))
	}
}
