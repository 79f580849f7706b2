package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"github.com/sirupsen/logrus"
)

// IVSize is the AES-GCM nonce length prefixed to every ciphertext.
const IVSize = 12

// Maximum plaintext size (1MB to prevent excessive memory usage).
const MaxPlaintextSize = 1024 * 1024

// EncryptDirectMessage encrypts a direct-message payload for a recipient.
//
// The symmetric key is derived from the ECDH shared secret of the sender's
// private key and the recipient's public key. Each call draws a fresh
// random IV, so encrypting the same plaintext twice yields different
// ciphertext. The wire format is base64(IV[12] || ciphertext||tag).
func EncryptDirectMessage(plaintext, recipientPublicKey, senderPrivateKey string) (string, error) {
	if len(plaintext) > MaxPlaintextSize {
		return "", &ValidationError{Field: "plaintext", Reason: "message too large"}
	}

	key, err := conversationKey(senderPrivateKey, recipientPublicKey)
	if err != nil {
		return "", err
	}
	defer ClearSensitiveBuffer(key)

	ciphertext, err := sealWithKey(key, []byte(plaintext))
	if err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"function":         "EncryptDirectMessage",
		"package":          "crypto",
		"recipient_prefix": NormalizeKey(recipientPublicKey)[:8],
		"ciphertext_size":  len(ciphertext),
	}).Debug("Encrypted direct message")

	return ciphertext, nil
}

// EncryptWithKey encrypts plaintext under an externally supplied 32-byte
// symmetric key using the same IV-prefixed AES-GCM wire format as direct
// messages. Keys of any other length are rejected.
func EncryptWithKey(plaintext []byte, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", &ValidationError{Field: "key", Reason: "must be 32 bytes"}
	}
	return sealWithKey(key, plaintext)
}

// sealWithKey performs AES-256-GCM encryption, prefixing the random IV to
// the ciphertext and base64-encoding the result.
func sealWithKey(key, plaintext []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", cryptoErr("encrypt", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", cryptoErr("encrypt", err)
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", cryptoErrf("encrypt", "failed to generate IV: %w", err)
	}

	sealed := aead.Seal(iv, iv, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}
