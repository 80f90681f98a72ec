package connection

import (
	"bytes"
	"testing"

	"github.com/opd-ai/privmesh/crypto"
)

func mustKeyPair(t *testing.T) crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	return *kp
}

func handshakeSessions(t *testing.T) (initiator, responder *Session) {
	t.Helper()
	initKeys := mustKeyPair(t)
	respKeys := mustKeyPair(t)

	initiator, err := NewSession(initKeys, &respKeys.Public, Initiator)
	if err != nil {
		t.Fatalf("NewSession(Initiator) failed: %v", err)
	}
	responder, err = NewSession(respKeys, nil, Responder)
	if err != nil {
		t.Fatalf("NewSession(Responder) failed: %v", err)
	}

	msg1, err := initiator.Step(nil, nil)
	if err != nil {
		t.Fatalf("initiator.Step() failed: %v", err)
	}
	if initiator.Complete() {
		t.Fatal("initiator reported complete after only the first message")
	}

	msg2, err := responder.Step(nil, msg1)
	if err != nil {
		t.Fatalf("responder.Step() failed: %v", err)
	}
	if !responder.Complete() {
		t.Fatal("responder did not complete after replying")
	}

	if err := initiator.Finish(msg2); err != nil {
		t.Fatalf("initiator.Finish() failed: %v", err)
	}
	if !initiator.Complete() {
		t.Fatal("initiator did not complete after Finish")
	}

	return initiator, responder
}

func TestHandshakeAuthenticatesPeerStaticKeys(t *testing.T) {
	initKeys := mustKeyPair(t)
	respKeys := mustKeyPair(t)

	initiator, err := NewSession(initKeys, &respKeys.Public, Initiator)
	if err != nil {
		t.Fatalf("NewSession(Initiator) failed: %v", err)
	}
	responder, err := NewSession(respKeys, nil, Responder)
	if err != nil {
		t.Fatalf("NewSession(Responder) failed: %v", err)
	}

	msg1, err := initiator.Step(nil, nil)
	if err != nil {
		t.Fatalf("initiator.Step() failed: %v", err)
	}
	msg2, err := responder.Step(nil, msg1)
	if err != nil {
		t.Fatalf("responder.Step() failed: %v", err)
	}
	if err := initiator.Finish(msg2); err != nil {
		t.Fatalf("initiator.Finish() failed: %v", err)
	}

	gotRemote, err := initiator.PeerStaticKey()
	if err != nil {
		t.Fatalf("initiator.PeerStaticKey() failed: %v", err)
	}
	if gotRemote != respKeys.Public {
		t.Errorf("initiator saw peer key %v, want %v", gotRemote, respKeys.Public)
	}

	gotLocal, err := responder.PeerStaticKey()
	if err != nil {
		t.Fatalf("responder.PeerStaticKey() failed: %v", err)
	}
	if gotLocal != initKeys.Public {
		t.Errorf("responder saw peer key %v, want %v", gotLocal, initKeys.Public)
	}
}

func TestSealOpenRoundTripBothDirections(t *testing.T) {
	initiator, responder := handshakeSessions(t)

	plaintext := []byte("hello across the wire")
	ciphertext, err := initiator.Seal(plaintext)
	if err != nil {
		t.Fatalf("initiator.Seal() failed: %v", err)
	}
	got, err := responder.Open(ciphertext)
	if err != nil {
		t.Fatalf("responder.Open() failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("responder.Open() = %q, want %q", got, plaintext)
	}

	reply := []byte("and back again")
	ciphertext, err = responder.Seal(reply)
	if err != nil {
		t.Fatalf("responder.Seal() failed: %v", err)
	}
	got, err = initiator.Open(ciphertext)
	if err != nil {
		t.Fatalf("initiator.Open() failed: %v", err)
	}
	if !bytes.Equal(got, reply) {
		t.Errorf("initiator.Open() = %q, want %q", got, reply)
	}
}

func TestSealAdvancesNonceSoCiphertextsDiffer(t *testing.T) {
	initiator, responder := handshakeSessions(t)

	plaintext := []byte("repeated message")
	first, err := initiator.Seal(plaintext)
	if err != nil {
		t.Fatalf("first Seal() failed: %v", err)
	}
	second, err := initiator.Seal(plaintext)
	if err != nil {
		t.Fatalf("second Seal() failed: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatal("Seal() produced identical ciphertext for two calls with the same plaintext")
	}

	if _, err := responder.Open(first); err != nil {
		t.Fatalf("responder.Open(first) failed: %v", err)
	}
	if _, err := responder.Open(second); err != nil {
		t.Fatalf("responder.Open(second) failed: %v", err)
	}
}

func TestOpenBeforeHandshakeCompleteFails(t *testing.T) {
	initKeys := mustKeyPair(t)
	respKeys := mustKeyPair(t)
	initiator, err := NewSession(initKeys, &respKeys.Public, Initiator)
	if err != nil {
		t.Fatalf("NewSession() failed: %v", err)
	}

	if _, err := initiator.Seal([]byte("too early")); err != ErrHandshakeIncomplete {
		t.Errorf("Seal() before completion = %v, want ErrHandshakeIncomplete", err)
	}
	if _, err := initiator.PeerStaticKey(); err != ErrHandshakeIncomplete {
		t.Errorf("PeerStaticKey() before completion = %v, want ErrHandshakeIncomplete", err)
	}
}

func TestNewSessionInitiatorRequiresPeerKey(t *testing.T) {
	initKeys := mustKeyPair(t)
	if _, err := NewSession(initKeys, nil, Initiator); err == nil {
		t.Fatal("NewSession(Initiator, nil peer) succeeded, want error")
	}
}
