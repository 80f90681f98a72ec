package tablestore

import (
	"crypto/rand"
	"fmt"

	"github.com/opd-ai/privmesh/crypto"
)

// Cipher encrypts table rows at rest using a SharedSecret keyed by the
// table's owning (CryptoKind, key) pair. Ciphertext is the random or
// derived nonce prepended to the AEAD-sealed value.
type Cipher struct {
	Kind crypto.Kind
	Key  crypto.SharedSecret

	// DeriveNonceFromPlaintext, when true, uses tablestore.DeriveNonce
	// instead of a random nonce. Set for rows the caller can prove are
	// unique plaintexts, such as derived lookup keys.
	DeriveNonceFromPlaintext bool
}

func (c *Cipher) seal(plaintext []byte) ([]byte, error) {
	var nonce crypto.Nonce
	if c.DeriveNonceFromPlaintext {
		nonce = DeriveNonce(plaintext, c.Key)
	} else {
		n, err := crypto.GenerateNonce()
		if err != nil {
			return nil, fmt.Errorf("tablestore: generate nonce: %w", err)
		}
		nonce = n
	}

	sealed, err := crypto.EncryptShared(plaintext, nonce, c.Key)
	if err != nil {
		return nil, fmt.Errorf("tablestore: seal row: %w", err)
	}

	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce[:]...)
	out = append(out, sealed...)
	return out, nil
}

func (c *Cipher) open(ciphertext []byte) ([]byte, error) {
	var nonce crypto.Nonce
	if len(ciphertext) < len(nonce) {
		return nil, fmt.Errorf("tablestore: ciphertext shorter than nonce")
	}
	copy(nonce[:], ciphertext[:len(nonce)])

	plaintext, err := crypto.DecryptShared(ciphertext[len(nonce):], nonce, c.Key)
	if err != nil {
		return nil, fmt.Errorf("tablestore: open row: %w", err)
	}
	return plaintext, nil
}

// NewCipher builds a Cipher from random key material, useful for tables
// whose encryption key is generated fresh rather than derived from a node
// identity.
func NewCipher(kind crypto.Kind) (*Cipher, error) {
	var key crypto.SharedSecret
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("tablestore: generate table key: %w", err)
	}
	return &Cipher{Kind: kind, Key: key}, nil
}
