package crypto

import (
	"crypto/ed25519"
	"errors"
)

// Sign creates an Ed25519 signature for a message using the seed-form
// secret key.
func Sign(message []byte, privateKey SecretKey) (Signature, error) {
	if len(message) == 0 {
		return Signature{}, errors.New("empty message")
	}

	// Ed25519 private keys are 64 bytes (32-byte seed + 32-byte public key);
	// privateKey is the 32-byte seed.
	edPrivateKey := ed25519.NewKeyFromSeed(privateKey[:])
	signatureBytes := ed25519.Sign(edPrivateKey, message)

	var signature Signature
	copy(signature[:], signatureBytes)
	return signature, nil
}

// Verify checks if a signature is valid for a message and public key.
func Verify(message []byte, signature Signature, publicKey PublicKey) bool {
	if len(message) == 0 {
		return false
	}
	return ed25519.Verify(publicKey[:], message, signature[:])
}

// PublicKeyFromSeed derives the Ed25519 public key for a given 32-byte seed.
func PublicKeyFromSeed(seed SecretKey) PublicKey {
	edPriv := ed25519.NewKeyFromSeed(seed[:])
	var pub PublicKey
	copy(pub[:], edPriv.Public().(ed25519.PublicKey))
	return pub
}
