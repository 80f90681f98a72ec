// Package typekey implements the CryptoKind-tagged key wire grammar used
// throughout the overlay: TypedKey, TypedKeyPair, TypedSignature, and the
// NodeId identities built on top of them.
package typekey

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opd-ai/privmesh/crypto"
)

// TypedKey pairs a CryptoKind with a public key. Its canonical string form is
// "<kind>:<base64url-key>".
type TypedKey struct {
	Kind crypto.Kind
	Key  crypto.PublicKey
}

// TypedKeyPair additionally carries the secret half.
type TypedKeyPair struct {
	Kind   crypto.Kind
	Key    crypto.PublicKey
	Secret crypto.SecretKey
}

// TypedSignature pairs a CryptoKind with a signature.
type TypedSignature struct {
	Kind      crypto.Kind
	Signature crypto.Signature
}

const (
	bareKeyLen   = 43 // base64url, no padding, of a 32-byte key
	typedKeyLen  = 48 // "XXXX:" + 43
	bareSigLen   = 86 // base64url, no padding, of a 64-byte signature
	typedPairLen = 48 + 1 + bareKeyLen
)

// String renders the canonical "<kind>:<key>" form.
func (t TypedKey) String() string {
	return fmt.Sprintf("%s:%s", t.Kind.String(), t.Key.String())
}

// ParseTypedKey parses a typed or bare key string. A bare key (no "kind:"
// prefix) is parsed under the best available kind.
func ParseTypedKey(s string) (TypedKey, error) {
	kindStr, keyStr, hasKind := splitOnce(s)
	if !hasKind {
		key, err := crypto.ParsePublicKey(s)
		if err != nil {
			return TypedKey{}, fmt.Errorf("typekey: parse bare key: %w", err)
		}
		return TypedKey{Kind: crypto.BestKind(), Key: key}, nil
	}

	kind, err := crypto.ParseKind(kindStr)
	if err != nil {
		return TypedKey{}, fmt.Errorf("typekey: parse kind: %w", err)
	}
	key, err := crypto.ParsePublicKey(keyStr)
	if err != nil {
		return TypedKey{}, fmt.Errorf("typekey: parse key: %w", err)
	}
	return TypedKey{Kind: kind, Key: key}, nil
}

// String renders "<kind>:<key>:<secret>".
func (t TypedKeyPair) String() string {
	return fmt.Sprintf("%s:%s:%s", t.Kind.String(), t.Key.String(), t.Secret.String())
}

// ParseTypedKeyPair parses a "<kind>:<key>:<secret>" string.
func ParseTypedKeyPair(s string) (TypedKeyPair, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return TypedKeyPair{}, fmt.Errorf("typekey: malformed typed key pair %q", s)
	}

	kind, err := crypto.ParseKind(parts[0])
	if err != nil {
		return TypedKeyPair{}, fmt.Errorf("typekey: parse kind: %w", err)
	}
	key, err := crypto.ParsePublicKey(parts[1])
	if err != nil {
		return TypedKeyPair{}, fmt.Errorf("typekey: parse key: %w", err)
	}
	secret, err := crypto.ParseSecretKey(parts[2])
	if err != nil {
		return TypedKeyPair{}, fmt.Errorf("typekey: parse secret: %w", err)
	}
	return TypedKeyPair{Kind: kind, Key: key, Secret: secret}, nil
}

// String renders "<kind>:<signature>".
func (t TypedSignature) String() string {
	return fmt.Sprintf("%s:%s", t.Kind.String(), t.Signature.String())
}

// ParseTypedSignature parses a "<kind>:<signature>" string.
func ParseTypedSignature(s string) (TypedSignature, error) {
	kindStr, sigStr, ok := splitOnce(s)
	if !ok {
		return TypedSignature{}, fmt.Errorf("typekey: malformed typed signature %q", s)
	}
	kind, err := crypto.ParseKind(kindStr)
	if err != nil {
		return TypedSignature{}, fmt.Errorf("typekey: parse kind: %w", err)
	}
	sig, err := crypto.ParseSignature(sigStr)
	if err != nil {
		return TypedSignature{}, fmt.Errorf("typekey: parse signature: %w", err)
	}
	return TypedSignature{Kind: kind, Signature: sig}, nil
}

// splitOnce splits "kind:rest" on the first colon. It reports false when s
// has no colon, which callers treat as a bare (kind-less) key.
func splitOnce(s string) (head, rest string, ok bool) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", s, false
	}
	return s[:idx], s[idx+1:], true
}

// Compare orders two typed keys by CryptoKind preference first, then by key
// bytes.
func Compare(a, b TypedKey) int {
	if c := crypto.CompareKinds(a.Kind, b.Kind); c != 0 {
		return c
	}
	return a.Key.Compare(b.Key)
}

// NodeId is a TypedKey identifying a node's long-term identity under one
// CryptoKind.
type NodeId = TypedKey

// TypedKeyGroup holds a node's identities across every CryptoKind it
// advertises, sorted by kind preference.
type TypedKeyGroup struct {
	keys []NodeId
}

// NewTypedKeyGroup builds a group from an arbitrary-order set of NodeIds,
// sorting them by kind preference.
func NewTypedKeyGroup(ids ...NodeId) *TypedKeyGroup {
	g := &TypedKeyGroup{keys: append([]NodeId(nil), ids...)}
	sort.Slice(g.keys, func(i, j int) bool { return Compare(g.keys[i], g.keys[j]) < 0 })
	return g
}

// Best returns the group's most-preferred NodeId.
func (g *TypedKeyGroup) Best() (NodeId, bool) {
	if len(g.keys) == 0 {
		return NodeId{}, false
	}
	return g.keys[0], true
}

// Get returns the NodeId for a specific kind, if present.
func (g *TypedKeyGroup) Get(kind crypto.Kind) (NodeId, bool) {
	for _, k := range g.keys {
		if k.Kind == kind {
			return k, true
		}
	}
	return NodeId{}, false
}

// All returns every NodeId in the group, most-preferred first.
func (g *TypedKeyGroup) All() []NodeId {
	return append([]NodeId(nil), g.keys...)
}

// Len reports the number of identities in the group.
func (g *TypedKeyGroup) Len() int { return len(g.keys) }
