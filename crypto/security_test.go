package crypto

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearSensitiveBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	require.NoError(t, ClearSensitiveBuffer(buf))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)

	assert.Error(t, ClearSensitiveBuffer(nil))
}

func TestClearSensitiveString(t *testing.T) {
	s := "secret"
	ClearSensitiveString(&s)
	assert.Empty(t, s)
	ClearSensitiveString(nil)
}

func TestConstantTimeCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		want bool
	}{
		{"equal", []byte("abc"), []byte("abc"), true},
		{"both empty", nil, nil, true},
		{"different content", []byte("abc"), []byte("abd"), false},
		{"different lengths", []byte("abc"), []byte("abcd"), false},
		{"one empty", []byte("abc"), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConstantTimeCompare(tt.a, tt.b))
			assert.Equal(t, tt.want, ConstantTimeStringCompare(string(tt.a), string(tt.b)))
		})
	}
}

func TestSanitizeForLoggingRedactsSensitiveFields(t *testing.T) {
	payload := map[string]interface{}{
		"id":         "msg-1",
		"privateKey": "super-secret-hex",
		"content":    "hello there",
		"nested": map[string]interface{}{
			"authToken": "bearer-xyz",
			"relayUrl":  "wss://relay.example.com",
		},
		"items": []interface{}{
			map[string]interface{}{"passphrase": "hunter2", "index": 1},
		},
	}

	sanitized := SanitizeForLogging(payload).(map[string]interface{})

	assert.Equal(t, "msg-1", sanitized["id"])
	assert.Equal(t, redactedPlaceholder, sanitized["privateKey"])
	assert.Equal(t, redactedPlaceholder, sanitized["content"])

	nested := sanitized["nested"].(map[string]interface{})
	assert.Equal(t, redactedPlaceholder, nested["authToken"])
	assert.Equal(t, "wss://relay.example.com", nested["relayUrl"])

	item := sanitized["items"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, redactedPlaceholder, item["passphrase"])
	assert.Equal(t, 1, item["index"])
}

func TestSanitizeForLoggingRedactsStructFields(t *testing.T) {
	type loginAttempt struct {
		User      string
		Password  string
		Signature string
	}
	sanitized := SanitizeForLogging(loginAttempt{
		User:      "alice",
		Password:  "hunter2",
		Signature: "deadbeef",
	}).(map[string]interface{})

	assert.Equal(t, "alice", sanitized["User"])
	assert.Equal(t, redactedPlaceholder, sanitized["Password"])
	assert.Equal(t, redactedPlaceholder, sanitized["Signature"])
}

func TestSanitizeForLoggingFlattensErrorsWithoutStacks(t *testing.T) {
	err := fmt.Errorf("outer: %w", errors.New("decryption failed"))
	sanitized := SanitizeForLogging(err).(map[string]interface{})
	assert.Equal(t, "outer: decryption failed", sanitized["error"])
	assert.Len(t, sanitized, 1)
}

func TestLoggedOutputNeverContainsPrivateKey(t *testing.T) {
	logger := logrus.New()
	hook := logtest.NewLocal(logger)
	logger.SetLevel(logrus.DebugLevel)

	keys, err := GenerateKeyPair()
	require.NoError(t, err)

	logger.WithField("payload", SanitizeForLogging(map[string]interface{}{
		"privateKey": keys.PrivateKey,
		"content":    "attack at dawn",
		"messageId":  "msg-7",
	})).Info("outgoing message")

	for _, entry := range hook.AllEntries() {
		line, err := entry.String()
		require.NoError(t, err)
		assert.NotContains(t, line, keys.PrivateKey)
		assert.NotContains(t, line, "attack at dawn")
	}
}
