// Package dhtstorage implements the fanout procedures that get, set, and
// inspect values held in the distributed record store, plus the local
// record shape and schema validation those procedures rely on.
package dhtstorage

import (
	"errors"
	"math"

	"github.com/opd-ai/privmesh/crypto"
	"github.com/opd-ai/privmesh/typekey"
)

// SchemaKind names how a record's subkey/ownership layout is interpreted.
type SchemaKind int

const (
	// SchemaDFLT is a plain record with a fixed subkey count and no
	// membership list.
	SchemaDFLT SchemaKind = iota
	// SchemaSMPL additionally carries an owner and member list, each of
	// which may write its own subkeys.
	SchemaSMPL
)

// Schema describes a record's shape: how many subkeys it has, and (for
// SMPL) who may write to it.
type Schema struct {
	Kind        SchemaKind
	SubkeyCount int
	Owner       crypto.PublicKey
	Members     []crypto.PublicKey
}

// ErrSchemaMismatch is returned when an incoming descriptor's shape
// conflicts with a stored schema's.
var ErrSchemaMismatch = errors.New("dhtstorage: schema mismatch")

// ErrSubkeyOutOfRange is returned for a subkey index the schema doesn't
// define.
var ErrSubkeyOutOfRange = errors.New("dhtstorage: subkey index out of range")

// Equivalent reports whether two schemas describe the same record shape,
// ignoring nothing — schema equality is exact per spec (signatures aside,
// which schemas don't carry).
func (s Schema) Equivalent(o Schema) bool {
	if s.Kind != o.Kind || s.SubkeyCount != o.SubkeyCount {
		return false
	}
	if s.Kind != SchemaSMPL {
		return true
	}
	if s.Owner != o.Owner || len(s.Members) != len(o.Members) {
		return false
	}
	for i, m := range s.Members {
		if m != o.Members[i] {
			return false
		}
	}
	return true
}

// MaxSequenceNumber marks "no value written yet" in inspect_value replies.
const MaxSequenceNumber = math.MaxUint32

// SignedValueData is one subkey's value together with the writer's proof
// of authorship: writer, subkey index, sequence number, and a signature
// binding all three to the bytes.
type SignedValueData struct {
	Writer    crypto.PublicKey
	Subkey    int
	Seq       uint32
	Data      []byte
	Signature crypto.Signature
}

// Record is the locally stored state for one DHT key: its schema, an
// owner keypair if we're the writer, and the per-subkey values we hold.
type Record struct {
	Key     typekey.NodeId
	Schema  Schema
	IsOwner bool
	Owner   typekey.TypedKeyPair
	Subkeys []SignedValueData
}

func (r *Record) subkeyIndex(subkey int) int {
	for i, v := range r.Subkeys {
		if v.Subkey == subkey {
			return i
		}
	}
	return -1
}

// Get returns the stored value for a subkey, if any.
func (r *Record) Get(subkey int) (SignedValueData, bool) {
	if i := r.subkeyIndex(subkey); i >= 0 {
		return r.Subkeys[i], true
	}
	return SignedValueData{}, false
}

// Put validates value against the record's schema and, if its sequence
// number is not older than what's stored, writes it in place.
func (r *Record) Put(value SignedValueData) error {
	if value.Subkey < 0 || value.Subkey >= r.Schema.SubkeyCount {
		return ErrSubkeyOutOfRange
	}
	if i := r.subkeyIndex(value.Subkey); i >= 0 {
		if value.Seq < r.Subkeys[i].Seq {
			return nil
		}
		r.Subkeys[i] = value
		return nil
	}
	r.Subkeys = append(r.Subkeys, value)
	return nil
}
