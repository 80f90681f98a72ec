// Package crypto implements the pluggable cryptographic capability used
// throughout the overlay: fixed-size key/signature/nonce types, a versioned
// CryptoKind registry, and a CryptoSystem interface with one concrete
// backend (VLD0) built from NaCl box, Ed25519, X25519, BLAKE2b and NaCl
// secretbox (XSalsa20-Poly1305).
//
// Concrete cryptographic research (alternative curves, post-quantum
// primitives) is out of scope; VLD0 is the sole shipped backend, but all
// call sites go through the CryptoSystem interface and a CryptoKind tag so
// additional backends can be registered without touching callers.
package crypto
