package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"filippo.io/edwards25519"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// conversationKeyInfo is the HKDF info string binding derived keys to this
// protocol version.
const conversationKeyInfo = "nostrdm-conversation-v1"

// DeriveSharedSecret computes a 32-byte shared secret between two parties
// using Elliptic Curve Diffie-Hellman on Curve25519.
//
// Identity keys are Ed25519: the private scalar is derived from the seed
// the same way Ed25519 signing derives it, and the peer's Edwards public
// key is mapped to its Montgomery form before the X25519 computation. The
// result is symmetric: DeriveSharedSecret(privA, pubB) equals
// DeriveSharedSecret(privB, pubA).
func DeriveSharedSecret(privateKey, publicKey string) ([]byte, error) {
	seed, err := decodePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	defer ClearSensitiveBuffer(seed)

	pub, err := decodePublicKey(publicKey)
	if err != nil {
		return nil, err
	}

	point, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, cryptoErrf("derive shared secret", "public key is not a valid curve point: %w", err)
	}
	montgomeryPub := point.BytesMontgomery()

	// Same scalar derivation as Ed25519 signing, so the one seed serves
	// both signing and key agreement.
	h := sha512.Sum512(seed)
	scalar := h[:32]
	defer ClearSensitiveBuffer(h[:])

	shared, err := curve25519.X25519(scalar, montgomeryPub)
	if err != nil {
		return nil, cryptoErrf("derive shared secret", "X25519 computation failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":        "DeriveSharedSecret",
		"package":         "crypto",
		"peer_key_prefix": NormalizeKey(publicKey)[:8],
	}).Debug("Computed ECDH shared secret")

	return shared, nil
}

// conversationKey derives the symmetric key for one envelope layer from
// the ECDH shared secret of the given key pair halves.
func conversationKey(privateKey, publicKey string) ([]byte, error) {
	shared, err := DeriveSharedSecret(privateKey, publicKey)
	if err != nil {
		return nil, err
	}
	defer ClearSensitiveBuffer(shared)

	return conversationKeyFromShared(shared)
}

// conversationKeyFromShared expands an already-derived ECDH shared secret
// into the symmetric conversation key.
func conversationKeyFromShared(shared []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	kdf := hkdf.New(sha256.New, shared, nil, []byte(conversationKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, cryptoErrf("derive conversation key", "HKDF expansion failed: %w", err)
	}
	return key, nil
}
