// Package protectedstore is the secret-at-rest abstraction: small named
// blobs (node identity secrets, route secrets) that must survive a restart
// but never appear in plaintext in table store exports or debug output.
package protectedstore

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/privmesh/crypto"
)

// ErrNotFound is returned by Load when no value is stored for a key.
var ErrNotFound = errors.New("protectedstore: key not found")

// Store persists small secrets keyed by name. Implementations are free to
// back this with the OS keyring, an encrypted file, or (as here) an
// in-process map guarded by zeroing on Remove.
type Store interface {
	Save(key string, secret []byte) error
	Load(key string) ([]byte, error)
	Remove(key string) error
	Exists(key string) bool
}

// memStore is an in-process Store. It is the only backend carried here; its
// contents are held in memory only and do not survive a restart.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	log  *logrus.Entry
}

// New constructs an in-process protected store.
func New() Store {
	return &memStore{
		data: make(map[string][]byte),
		log:  logrus.WithField("component", "protectedstore"),
	}
}

func (s *memStore) Save(key string, secret []byte) error {
	if key == "" {
		return errors.New("protectedstore: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(secret))
	copy(cp, secret)
	if old, ok := s.data[key]; ok {
		crypto.ZeroBytes(old)
	}
	s.data[key] = cp
	s.log.WithField("key", key).Debug("secret saved")
	return nil
}

func (s *memStore) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (s *memStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return ErrNotFound
	}
	crypto.ZeroBytes(v)
	delete(s.data, key)
	return nil
}

func (s *memStore) Exists(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}
