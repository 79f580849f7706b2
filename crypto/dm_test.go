package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectMessageRoundTrip(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	plaintexts := []string{
		"Hello World",
		"",
		"multi\nline\nmessage",
		"unicode: héllo wörld 你好",
	}

	for _, plaintext := range plaintexts {
		ciphertext, err := EncryptDirectMessage(plaintext, bob.PublicKey, alice.PrivateKey)
		require.NoError(t, err)
		assert.NotContains(t, ciphertext, plaintext)

		decrypted, err := DecryptDirectMessage(ciphertext, alice.PublicKey, bob.PrivateKey)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestDirectMessageEncryptionIsNonDeterministic(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	first, err := EncryptDirectMessage("same message", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	second, err := EncryptDirectMessage("same message", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	for _, ciphertext := range []string{first, second} {
		decrypted, err := DecryptDirectMessage(ciphertext, alice.PublicKey, bob.PrivateKey)
		require.NoError(t, err)
		assert.Equal(t, "same message", decrypted)
	}
}

func TestDirectMessageWrongKeyFails(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := EncryptDirectMessage("Hello World", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	// Wrong recipient key: alice decrypting a message addressed to bob.
	_, err = DecryptDirectMessage(ciphertext, alice.PublicKey, alice.PrivateKey)
	var cryptoError *CryptoError
	assert.ErrorAs(t, err, &cryptoError)

	// Unrelated third party.
	eve, err := GenerateKeyPair()
	require.NoError(t, err)
	_, err = DecryptDirectMessage(ciphertext, alice.PublicKey, eve.PrivateKey)
	assert.ErrorAs(t, err, &cryptoError)
}

func TestDirectMessageTamperedCiphertextFails(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := EncryptDirectMessage("payload", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	tampered := []byte(ciphertext)
	tampered[len(tampered)-5] ^= 'x'
	_, err = DecryptDirectMessage(string(tampered), alice.PublicKey, bob.PrivateKey)
	assert.Error(t, err)

	_, err = DecryptDirectMessage("not base64 at all!!!", alice.PublicKey, bob.PrivateKey)
	assert.Error(t, err)

	_, err = DecryptDirectMessage("c2hvcnQ=", alice.PublicKey, bob.PrivateKey)
	assert.Error(t, err)
}

func TestDirectMessageRejectsMalformedKeys(t *testing.T) {
	keys, err := GenerateKeyPair()
	require.NoError(t, err)

	var validationErr *ValidationError
	_, err = EncryptDirectMessage("hi", "bogus", keys.PrivateKey)
	assert.ErrorAs(t, err, &validationErr)
	_, err = EncryptDirectMessage("hi", keys.PublicKey, "bogus")
	assert.ErrorAs(t, err, &validationErr)
}

func TestDeriveSharedSecretIsSymmetric(t *testing.T) {
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)

	fromAlice, err := DeriveSharedSecret(alice.PrivateKey, bob.PublicKey)
	require.NoError(t, err)
	fromBob, err := DeriveSharedSecret(bob.PrivateKey, alice.PublicKey)
	require.NoError(t, err)

	assert.Equal(t, fromAlice, fromBob)
	assert.Len(t, fromAlice, 32)

	eve, err := GenerateKeyPair()
	require.NoError(t, err)
	fromEve, err := DeriveSharedSecret(eve.PrivateKey, bob.PublicKey)
	require.NoError(t, err)
	assert.NotEqual(t, fromAlice, fromEve)
}
