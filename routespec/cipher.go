package routespec

import (
	"fmt"

	"github.com/flynn/noise"
)

var hopCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// sealHop AEAD-encrypts plaintext for one onion hop under key, using nonce
// as the counter: each hop's key is single-use per message, so the
// compiled-route cache never reuses a (key, nonce) pair.
func sealHop(key [32]byte, nonce uint64, associatedData, plaintext []byte) []byte {
	cipher := hopCipherSuite.Cipher(key)
	return cipher.Encrypt(nil, nonce, associatedData, plaintext)
}

// openHop reverses sealHop.
func openHop(key [32]byte, nonce uint64, associatedData, ciphertext []byte) ([]byte, error) {
	cipher := hopCipherSuite.Cipher(key)
	plaintext, err := cipher.Decrypt(nil, nonce, associatedData, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("routespec: open hop layer: %w", err)
	}
	return plaintext, nil
}
