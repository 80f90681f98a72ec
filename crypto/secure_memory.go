package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe zeros data in place using a constant-time XOR the compiler
// cannot optimize away (x XOR x = 0), and returns an error if data is nil.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	subtle.XORBytes(data, data, data)

	// prevent the compiler from eliding the wipe as a dead store
	runtime.KeepAlive(data)

	return nil
}

// ZeroBytes wipes data, discarding SecureWipe's error. Used at call sites
// where data is known non-nil (a local buffer, a slice of a fixed array).
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}

// WipeKeyPair zeros kp's private key once the pair is no longer needed.
func WipeKeyPair(kp *KeyPair) error {
	if kp == nil {
		return errors.New("cannot wipe nil KeyPair")
	}
	return SecureWipe(kp.Private[:])
}
