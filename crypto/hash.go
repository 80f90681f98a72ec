package crypto

import (
	"golang.org/x/crypto/blake2b"
)

// Hash computes the BLAKE2b-256 digest of data, used for DHT record keys,
// route hop fingerprints, and content addressing.
func Hash(data []byte) HashDigest {
	sum := blake2b.Sum256(data)
	return HashDigest(sum)
}

// NewHasher returns a streaming BLAKE2b-256 Hasher for incremental input.
func NewHasher() (*Hasher, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	return &Hasher{h: h}, nil
}

// Hasher wraps a streaming BLAKE2b-256 state.
type Hasher struct {
	h interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
		Reset()
	}
}

func (h *Hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

func (h *Hasher) Sum() HashDigest {
	var out HashDigest
	copy(out[:], h.h.Sum(nil))
	return out
}

func (h *Hasher) Reset() { h.h.Reset() }
