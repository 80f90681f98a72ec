package crypto

import (
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// DeriveSharedSecret computes a shared secret between two parties using
// Elliptic Curve Diffie-Hellman (ECDH) on Curve25519.
func DeriveSharedSecret(peerPublicKey PublicKey, privateKey SecretKey) (SharedSecret, error) {
	raw, err := curve25519.X25519(privateKey[:], peerPublicKey[:])
	if err != nil {
		return SharedSecret{}, fmt.Errorf("crypto: compute shared secret: %w", err)
	}

	var result SharedSecret
	copy(result[:], raw)
	ZeroBytes(raw)
	return result, nil
}
