package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
)

// DecryptDirectMessage decrypts a direct-message payload produced by
// EncryptDirectMessage. The recipient derives the same conversation key
// from its private key and the sender's public key. Decryption with a
// mismatched key pair or tampered ciphertext fails with a CryptoError;
// it never returns garbage plaintext.
func DecryptDirectMessage(ciphertext, senderPublicKey, recipientPrivateKey string) (string, error) {
	key, err := conversationKey(recipientPrivateKey, senderPublicKey)
	if err != nil {
		return "", err
	}
	defer ClearSensitiveBuffer(key)

	plaintext, err := openWithKey(key, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DecryptWithKey decrypts data produced by EncryptWithKey under the same
// externally supplied 32-byte key.
func DecryptWithKey(ciphertext string, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, &ValidationError{Field: "key", Reason: "must be 32 bytes"}
	}
	return openWithKey(key, ciphertext)
}

// openWithKey reverses sealWithKey: base64-decode, split off the IV, then
// authenticate and decrypt.
func openWithKey(key []byte, ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, cryptoErrf("decrypt", "malformed base64 ciphertext: %w", err)
	}
	if len(raw) <= IVSize {
		return nil, cryptoErrf("decrypt", "ciphertext too short: %d bytes", len(raw))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cryptoErr("decrypt", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cryptoErr("decrypt", err)
	}

	plaintext, err := aead.Open(nil, raw[:IVSize], raw[IVSize:], nil)
	if err != nil {
		return nil, cryptoErrf("decrypt", "message authentication failed: %w", err)
	}
	return plaintext, nil
}
