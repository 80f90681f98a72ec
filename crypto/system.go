package crypto

import (
	"fmt"
	"sort"
	"sync"
)

// CryptoSystem is the pluggable cryptosystem contract every backend must
// implement. A single node may have several registered at once; callers pick
// one by Kind and negotiate down to the best common kind with a peer.
type CryptoSystem interface {
	Kind() Kind

	GenerateKeyPair() (*KeyPair, error)
	KeyPairFromSecret(secret SecretKey) (*KeyPair, error)

	Sign(message []byte, secret SecretKey) (Signature, error)
	Verify(message []byte, sig Signature, public PublicKey) bool

	SharedSecret(peerPublic PublicKey, secret SecretKey) (SharedSecret, error)

	Encrypt(message []byte, nonce Nonce, peerPublic PublicKey, secret SecretKey) ([]byte, error)
	Decrypt(ciphertext []byte, nonce Nonce, peerPublic PublicKey, secret SecretKey) ([]byte, error)

	EncryptShared(message []byte, nonce Nonce, key SharedSecret) ([]byte, error)
	DecryptShared(ciphertext []byte, nonce Nonce, key SharedSecret) ([]byte, error)

	Hash(data []byte) HashDigest
}

var (
	registryMu sync.RWMutex
	registry   = map[Kind]CryptoSystem{}
)

// Register adds a cryptosystem backend to the process-wide registry, keyed
// by its Kind. Registering the same Kind twice replaces the prior backend.
func Register(cs CryptoSystem) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[cs.Kind()] = cs
}

// Get looks up a registered cryptosystem by kind.
func Get(kind Kind) (CryptoSystem, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	cs, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("crypto: unknown cryptosystem kind %q", kind)
	}
	return cs, nil
}

// Best returns the registered cryptosystem for the most-preferred kind
// shared between the process's ValidKinds and what is currently registered.
func Best() (CryptoSystem, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, k := range ValidKinds {
		if cs, ok := registry[k]; ok {
			return cs, nil
		}
	}
	return nil, fmt.Errorf("crypto: no cryptosystem registered")
}

// NegotiateKind picks the best kind common to two sorted-by-preference kind
// lists, or returns false if the lists share nothing.
func NegotiateKind(ours, theirs []Kind) (Kind, bool) {
	theirSet := make(map[Kind]bool, len(theirs))
	for _, k := range theirs {
		theirSet[k] = true
	}
	sorted := make([]Kind, len(ours))
	copy(sorted, ours)
	sort.Slice(sorted, func(i, j int) bool { return CompareKinds(sorted[i], sorted[j]) < 0 })
	for _, k := range sorted {
		if theirSet[k] {
			return k, true
		}
	}
	return Kind{}, false
}

func init() {
	Register(NewVLD0())
}
