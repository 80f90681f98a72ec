package crypto

import "testing"

func TestGenerateKeyPairIsNonZero(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	if isZeroKey(kp.Private) {
		t.Error("GenerateKeyPair() produced an all-zero private key")
	}
	if kp.Public == (PublicKey{}) {
		t.Error("GenerateKeyPair() produced an all-zero public key")
	}
}

func TestGenerateKeyPairUnique(t *testing.T) {
	a, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	b, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	if a.Public == b.Public {
		t.Error("two calls to GenerateKeyPair() produced the same public key")
	}
}

func TestFromSecretKeyMatchesGenerated(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	derived, err := FromSecretKey(kp.Private)
	if err != nil {
		t.Fatalf("FromSecretKey() failed: %v", err)
	}
	if derived.Public != kp.Public {
		t.Errorf("FromSecretKey().Public = %v, want %v", derived.Public, kp.Public)
	}
}

func TestFromSecretKeyRejectsZero(t *testing.T) {
	if _, err := FromSecretKey(SecretKey{}); err == nil {
		t.Error("FromSecretKey() expected error for all-zero secret key")
	}
}
