package crypto

import (
	"crypto/rand"
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// MaxMessageSize bounds the plaintext accepted by Encrypt/EncryptShared, to
// keep a single misbehaving peer from forcing large allocations.
const MaxMessageSize = 1024 * 1024

// GenerateNonce creates a cryptographically secure random nonce. Nonces must
// never be reused under the same key.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return Nonce{}, err
	}
	return nonce, nil
}

// Encrypt seals a message for recipientPK using senderSK, authenticated with
// NaCl box (Curve25519 + XSalsa20-Poly1305).
func Encrypt(message []byte, nonce Nonce, recipientPK PublicKey, senderSK SecretKey) ([]byte, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":     "Encrypt",
		"package":      "crypto",
		"message_size": len(message),
	})

	if len(message) == 0 {
		return nil, errors.New("empty message")
	}
	if len(message) > MaxMessageSize {
		logger.WithField("max_size", MaxMessageSize).Error("message exceeds maximum allowed size")
		return nil, errors.New("message too large")
	}

	recipient := [32]byte(recipientPK)
	sender := [32]byte(senderSK)
	n := [24]byte(nonce)
	sealed := box.Seal(nil, message, &n, &recipient, &sender)

	logger.WithField("sealed_size", len(sealed)).Debug("message sealed with nacl box")
	return sealed, nil
}

// EncryptShared seals a message under a pre-derived SharedSecret using NaCl
// secretbox (XSalsa20-Poly1305). Used for any channel that already has an
// agreed symmetric key, such as tablestore's encrypted rows.
func EncryptShared(message []byte, nonce Nonce, key SharedSecret) ([]byte, error) {
	if len(message) == 0 {
		return nil, errors.New("empty message")
	}
	if len(message) > MaxMessageSize {
		return nil, errors.New("message too large")
	}

	k := [32]byte(key)
	n := [24]byte(nonce)
	sealed := secretbox.Seal(nil, message, &n, &k)
	return sealed, nil
}
