package crypto

// vld0System is the sole shipped CryptoSystem backend: Curve25519 for key
// agreement, Ed25519 for signatures, XSalsa20-Poly1305 (NaCl box/secretbox)
// for authenticated encryption, and BLAKE2b-256 for hashing.
type vld0System struct{}

// NewVLD0 constructs the VLD0 cryptosystem backend.
func NewVLD0() CryptoSystem {
	return vld0System{}
}

func (vld0System) Kind() Kind { return VLD0 }

func (vld0System) GenerateKeyPair() (*KeyPair, error) {
	return GenerateKeyPair()
}

func (vld0System) KeyPairFromSecret(secret SecretKey) (*KeyPair, error) {
	return FromSecretKey(secret)
}

func (vld0System) Sign(message []byte, secret SecretKey) (Signature, error) {
	return Sign(message, secret)
}

func (vld0System) Verify(message []byte, sig Signature, public PublicKey) bool {
	return Verify(message, sig, public)
}

func (vld0System) SharedSecret(peerPublic PublicKey, secret SecretKey) (SharedSecret, error) {
	return DeriveSharedSecret(peerPublic, secret)
}

func (vld0System) Encrypt(message []byte, nonce Nonce, peerPublic PublicKey, secret SecretKey) ([]byte, error) {
	return Encrypt(message, nonce, peerPublic, secret)
}

func (vld0System) Decrypt(ciphertext []byte, nonce Nonce, peerPublic PublicKey, secret SecretKey) ([]byte, error) {
	return Decrypt(ciphertext, nonce, peerPublic, secret)
}

func (vld0System) EncryptShared(message []byte, nonce Nonce, key SharedSecret) ([]byte, error) {
	return EncryptShared(message, nonce, key)
}

func (vld0System) DecryptShared(ciphertext []byte, nonce Nonce, key SharedSecret) ([]byte, error) {
	return DecryptShared(ciphertext, nonce, key)
}

func (vld0System) Hash(data []byte) HashDigest {
	return Hash(data)
}
