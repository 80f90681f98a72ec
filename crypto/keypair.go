// Package crypto implements cryptographic primitives for the overlay node.
//
// Keys are generated with NaCl's crypto_box primitive through Go's x/crypto
// packages.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Public key:", keys.Public.String())
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeyPair represents a NaCl crypto_box key pair.
//
//export PrivMeshKeyPair
type KeyPair struct {
	Public  PublicKey
	Private SecretKey
}

// GenerateKeyPair creates a new random NaCl key pair.
func GenerateKeyPair() (*KeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateKeyPair",
		"package":  "crypto",
	})
	logger.Debug("generating new cryptographic key pair")

	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"operation": "box.GenerateKey",
		}).Error("failed to generate cryptographic key pair")
		return nil, err
	}

	kp := &KeyPair{
		Public:  PublicKey(*publicKey),
		Private: SecretKey(*privateKey),
	}

	logger.WithFields(logrus.Fields{
		"public_key": fmt.Sprintf("%.8s", kp.Public.String()),
	}).Debug("cryptographic key pair generated")

	return kp, nil
}

// FromSecretKey derives the public half of a key pair from an existing
// secret key, clamping a working copy as curve25519 requires.
func FromSecretKey(secretKey SecretKey) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	var clamped [32]byte
	copy(clamped[:], secretKey[:])
	clamped[0] &= 248  // clear the bottom 3 bits
	clamped[31] &= 127 // clear the top bit
	clamped[31] |= 64  // set the second-to-top bit

	var publicKey [32]byte
	curve25519.ScalarBaseMult(&publicKey, &clamped)
	ZeroBytes(clamped[:])

	return &KeyPair{
		Public:  PublicKey(publicKey),
		Private: secretKey, // original unclamped key, per NaCl convention
	}, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key SecretKey) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
