package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// KeySize is the size of public keys and private key seeds in bytes.
const KeySize = 32

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// KeyPair holds an identity key pair. Both keys are 64-character hex
// strings; the private key is the 32-byte Ed25519 seed the public key is
// derived from. The same seed drives both event signing and ECDH key
// agreement.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair creates a new random identity key pair using a
// cryptographically secure RNG.
func GenerateKeyPair() (*KeyPair, error) {
	seed := make([]byte, KeySize)
	if _, err := rand.Read(seed); err != nil {
		return nil, cryptoErr("generate key pair", err)
	}

	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	keyPair := &KeyPair{
		PublicKey:  hex.EncodeToString(pub),
		PrivateKey: hex.EncodeToString(seed),
	}

	logrus.WithFields(logrus.Fields{
		"function":          "GenerateKeyPair",
		"package":           "crypto",
		"public_key_prefix": keyPair.PublicKey[:8],
	}).Debug("Generated identity key pair")

	return keyPair, nil
}

// FromPrivateKey reconstructs a key pair from an existing 64-hex private
// key seed.
func FromPrivateKey(privateKey string) (*KeyPair, error) {
	seed, err := decodePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	defer ClearSensitiveBuffer(seed)

	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	return &KeyPair{
		PublicKey:  hex.EncodeToString(pub),
		PrivateKey: strings.ToLower(strings.TrimSpace(privateKey)),
	}, nil
}

// IsValidPublicKey reports whether s is a 64-character hex public key
// after trimming surrounding whitespace.
func IsValidPublicKey(s string) bool {
	return hexKeyPattern.MatchString(strings.TrimSpace(s))
}

// NormalizeKey lowercases a hex key and strips surrounding whitespace.
// It returns "" if the input is not a valid 64-character hex string.
func NormalizeKey(s string) string {
	trimmed := strings.TrimSpace(s)
	if !hexKeyPattern.MatchString(trimmed) {
		return ""
	}
	return strings.ToLower(trimmed)
}

// decodePrivateKey validates and decodes a 64-hex private key seed.
func decodePrivateKey(privateKey string) ([]byte, error) {
	trimmed := strings.TrimSpace(privateKey)
	if !hexKeyPattern.MatchString(trimmed) {
		return nil, &ValidationError{Field: "private key", Reason: "must be 64 hex characters"}
	}
	seed, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, &ValidationError{Field: "private key", Reason: "malformed hex"}
	}
	return seed, nil
}

// decodePublicKey validates and decodes a 64-hex public key.
func decodePublicKey(publicKey string) ([]byte, error) {
	trimmed := strings.TrimSpace(publicKey)
	if !hexKeyPattern.MatchString(trimmed) {
		return nil, &ValidationError{Field: "public key", Reason: "must be 64 hex characters"}
	}
	pub, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, &ValidationError{Field: "public key", Reason: "malformed hex"}
	}
	return pub, nil
}
