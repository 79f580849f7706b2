package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// InviteIDSize is the size of an invite identifier in bytes (32 hex
// characters on the wire).
const InviteIDSize = 16

// GenerateInviteID creates a unique 32-hex invite identifier.
func GenerateInviteID() (string, error) {
	id := make([]byte, InviteIDSize)
	if _, err := rand.Read(id); err != nil {
		return "", cryptoErrf("generate invite id", "failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(id), nil
}

// canonicalInvitePayload produces a deterministic serialization of the
// payload: JSON with lexicographically sorted keys at every level.
// json.Marshal sorts map keys, so marshaling the payload map (and any
// nested maps) yields a stable byte sequence.
func canonicalInvitePayload(payload map[string]interface{}) ([]byte, error) {
	if payload == nil {
		return nil, &ValidationError{Field: "invite payload", Reason: "must not be nil"}
	}
	canonical, err := json.Marshal(payload)
	if err != nil {
		return nil, &ValidationError{Field: "invite payload", Reason: "not serializable"}
	}
	return canonical, nil
}

// sha256Digest hashes canonical payload bytes for signing.
func sha256Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// SignInviteData canonicalizes the payload, hashes it, and signs the hash
// with the given private key. The signature is returned as hex.
func SignInviteData(payload map[string]interface{}, privateKey string) (string, error) {
	canonical, err := canonicalInvitePayload(payload)
	if err != nil {
		return "", err
	}

	seed, err := decodePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	defer ClearSensitiveBuffer(seed)

	digest := sha256.Sum256(canonical)
	sig := ed25519.Sign(ed25519.NewKeyFromSeed(seed), digest[:])
	return hex.EncodeToString(sig), nil
}

// VerifyInviteSignature recomputes the canonical hash of the payload and
// checks the signature against the given public key. It never returns an
// error: any mutation of the payload, or a signature/pubkey mismatch,
// yields false.
func VerifyInviteSignature(payload map[string]interface{}, signature, publicKey string) bool {
	canonical, err := canonicalInvitePayload(payload)
	if err != nil {
		return false
	}

	pub, err := decodePublicKey(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	digest := sha256.Sum256(canonical)
	return ed25519.Verify(pub, digest[:], sig)
}

// EncryptInviteData encrypts invite plaintext under an externally supplied
// 32-byte key, returning base64(IV[12] || ciphertext||tag).
func EncryptInviteData(plaintext string, key []byte) (string, error) {
	return EncryptWithKey([]byte(plaintext), key)
}

// DecryptInviteData reverses EncryptInviteData. A wrong key fails with a
// CryptoError; it never succeeds with wrong output.
func DecryptInviteData(ciphertext string, key []byte) (string, error) {
	plaintext, err := DecryptWithKey(ciphertext, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
