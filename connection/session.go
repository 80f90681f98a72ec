package connection

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"

	"github.com/opd-ai/privmesh/crypto"
)

var sessionCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// ErrHandshakeIncomplete is returned by Seal/Open/PeerStaticKey before the
// handshake has finished.
var ErrHandshakeIncomplete = errors.New("connection: handshake not complete")

// ErrHandshakeDone is returned by Step/Finish once the handshake has
// already finished.
var ErrHandshakeDone = errors.New("connection: handshake already complete")

// SessionRole distinguishes the side of a session that already knows its
// peer's static key (Initiator) from the side that learns it during the
// handshake (Responder).
type SessionRole int

const (
	Initiator SessionRole = iota
	Responder
)

// Session is one Noise IK handshake, in progress or completed, establishing
// the authenticated, forward-secret channel carried over a
// protocol.NetworkConnection. IK lets the initiator open a channel in one
// round trip since it already holds the peer's static key (its NodeId);
// the responder authenticates the initiator from that same message.
type Session struct {
	role       SessionRole
	state      *noise.HandshakeState
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
	complete   bool
}

// NewSession starts an IK handshake as role, authenticating as local. An
// Initiator must supply peer (the static key it already knows); a
// Responder learns the peer's key from the first handshake message and
// peer is ignored.
func NewSession(local crypto.KeyPair, peer *crypto.PublicKey, role SessionRole) (*Session, error) {
	if role == Initiator && peer == nil {
		return nil, fmt.Errorf("connection: initiator requires the peer's static key")
	}

	config := noise.Config{
		CipherSuite: sessionCipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeIK,
		Initiator:   role == Initiator,
		StaticKeypair: noise.DHKey{
			Private: append([]byte(nil), local.Private[:]...),
			Public:  append([]byte(nil), local.Public[:]...),
		},
	}
	if role == Initiator {
		config.PeerStatic = append([]byte(nil), peer[:]...)
	}

	state, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("connection: start handshake: %w", err)
	}
	return &Session{role: role, state: state}, nil
}

// Step advances the handshake by one message. An Initiator calls it once,
// with received left nil, producing the single IK message to send. A
// Responder calls it once the initiator's message has arrived, passing it
// as received; the returned message is the responder's reply, and the
// session is complete on return.
func (s *Session) Step(payload, received []byte) ([]byte, error) {
	if s.complete {
		return nil, ErrHandshakeDone
	}

	if s.role == Initiator {
		msg, send, recv, err := s.state.WriteMessage(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("connection: initiator handshake write: %w", err)
		}
		s.sendCipher, s.recvCipher = send, recv
		return msg, nil
	}

	if received == nil {
		return nil, fmt.Errorf("connection: responder step requires the initiator's message")
	}
	if _, _, _, err := s.state.ReadMessage(nil, received); err != nil {
		return nil, fmt.Errorf("connection: responder handshake read: %w", err)
	}
	msg, send, recv, err := s.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("connection: responder handshake write: %w", err)
	}
	s.sendCipher, s.recvCipher = send, recv
	s.complete = true
	return msg, nil
}

// Finish consumes the responder's reply. Only the initiator calls it; it
// completes the handshake and derives the session's cipher states.
func (s *Session) Finish(reply []byte) error {
	if s.complete {
		return ErrHandshakeDone
	}
	if s.role != Initiator {
		return fmt.Errorf("connection: only the initiator calls Finish")
	}
	_, recv, send, err := s.state.ReadMessage(nil, reply)
	if err != nil {
		return fmt.Errorf("connection: initiator handshake finish: %w", err)
	}
	s.recvCipher, s.sendCipher = recv, send
	s.complete = true
	return nil
}

// Complete reports whether the handshake has finished: Seal, Open, and
// PeerStaticKey are only usable once it has.
func (s *Session) Complete() bool { return s.complete }

// PeerStaticKey returns the authenticated peer's static public key.
func (s *Session) PeerStaticKey() (crypto.PublicKey, error) {
	if !s.complete {
		return crypto.PublicKey{}, ErrHandshakeIncomplete
	}
	var pk crypto.PublicKey
	copy(pk[:], s.state.PeerStatic())
	return pk, nil
}

// Seal encrypts one transport message under the session's outbound cipher
// state, whose nonce counter advances automatically per message.
func (s *Session) Seal(plaintext []byte) ([]byte, error) {
	if !s.complete {
		return nil, ErrHandshakeIncomplete
	}
	return s.sendCipher.Encrypt(nil, nil, plaintext), nil
}

// Open decrypts one transport message under the session's inbound cipher
// state.
func (s *Session) Open(ciphertext []byte) ([]byte, error) {
	if !s.complete {
		return nil, ErrHandshakeIncomplete
	}
	plaintext, err := s.recvCipher.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("connection: open transport message: %w", err)
	}
	return plaintext, nil
}
