package crypto

import (
	"errors"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// Decrypt opens a message sealed by Encrypt: ciphertext was produced by
// senderPK for recipientSK.
func Decrypt(ciphertext []byte, nonce Nonce, senderPK PublicKey, recipientSK SecretKey) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, errors.New("empty ciphertext")
	}

	sender := [32]byte(senderPK)
	recipient := [32]byte(recipientSK)
	n := [24]byte(nonce)

	decrypted, ok := box.Open(nil, ciphertext, &n, &sender, &recipient)
	if !ok {
		return nil, errors.New("decryption failed")
	}
	return decrypted, nil
}

// DecryptShared opens a message sealed by EncryptShared under the same
// SharedSecret.
func DecryptShared(ciphertext []byte, nonce Nonce, key SharedSecret) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, errors.New("empty ciphertext")
	}

	k := [32]byte(key)
	n := [24]byte(nonce)

	out, ok := secretbox.Open(nil, ciphertext, &n, &k)
	if !ok {
		return nil, errors.New("decryption failed: message authentication failed")
	}
	return out, nil
}
