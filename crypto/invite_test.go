package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invitePayload() map[string]interface{} {
	return map[string]interface{}{
		"inviteId":  "deadbeefdeadbeefdeadbeefdeadbeef",
		"inviter":   "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"expiresAt": float64(1700000000),
		"relays":    []interface{}{"wss://relay.example.com"},
	}
}

func TestGenerateInviteIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateInviteID()
		require.NoError(t, err)
		assert.Len(t, id, 32)
		assert.False(t, seen[id], "invite id collision")
		seen[id] = true
	}
}

func TestInviteSignatureRoundTrip(t *testing.T) {
	keys, err := GenerateKeyPair()
	require.NoError(t, err)

	payload := invitePayload()
	sig, err := SignInviteData(payload, keys.PrivateKey)
	require.NoError(t, err)

	assert.True(t, VerifyInviteSignature(payload, sig, keys.PublicKey))
}

func TestInviteSignatureDetectsMutation(t *testing.T) {
	keys, err := GenerateKeyPair()
	require.NoError(t, err)

	payload := invitePayload()
	sig, err := SignInviteData(payload, keys.PrivateKey)
	require.NoError(t, err)

	for field, replacement := range map[string]interface{}{
		"inviteId":  "00000000000000000000000000000000",
		"inviter":   "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		"expiresAt": float64(1800000000),
		"relays":    []interface{}{"wss://evil.example.com"},
	} {
		mutated := invitePayload()
		mutated[field] = replacement
		assert.False(t, VerifyInviteSignature(mutated, sig, keys.PublicKey),
			"mutation of %q must invalidate the signature", field)
	}

	extra := invitePayload()
	extra["injected"] = true
	assert.False(t, VerifyInviteSignature(extra, sig, keys.PublicKey))
}

func TestInviteSignatureRejectsWrongKey(t *testing.T) {
	keys, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	payload := invitePayload()
	sig, err := SignInviteData(payload, keys.PrivateKey)
	require.NoError(t, err)

	assert.False(t, VerifyInviteSignature(payload, sig, other.PublicKey))
	assert.False(t, VerifyInviteSignature(payload, "zz", keys.PublicKey))
	assert.False(t, VerifyInviteSignature(payload, sig, "not a key"))
	assert.False(t, VerifyInviteSignature(nil, sig, keys.PublicKey))
}

func TestInviteDataEncryptionRoundTrip(t *testing.T) {
	key, err := GenerateSecureRandom(32)
	require.NoError(t, err)

	ciphertext, err := EncryptInviteData("invite payload", key)
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "invite payload")

	plaintext, err := DecryptInviteData(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, "invite payload", plaintext)
}

func TestInviteDataEncryptionRejectsBadKeyLength(t *testing.T) {
	var validationErr *ValidationError
	for _, n := range []int{1, 16, 31, 33, 64} {
		key := make([]byte, n)
		_, err := EncryptInviteData("x", key)
		assert.ErrorAs(t, err, &validationErr, "key length %d", n)
		_, err = DecryptInviteData("x", key)
		assert.ErrorAs(t, err, &validationErr, "key length %d", n)
	}
}

func TestInviteDataWrongKeyFails(t *testing.T) {
	key, err := GenerateSecureRandom(32)
	require.NoError(t, err)
	wrongKey, err := GenerateSecureRandom(32)
	require.NoError(t, err)

	ciphertext, err := EncryptInviteData("secret", key)
	require.NoError(t, err)

	var cryptoError *CryptoError
	_, err = DecryptInviteData(ciphertext, wrongKey)
	assert.ErrorAs(t, err, &cryptoError)
}
