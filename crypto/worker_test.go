package crypto

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/nostrdm/event"
)

func newTestWorker(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(Config{Backend: BackendWorker})
	require.NoError(t, err)
	t.Cleanup(func() {
		if closer, ok := svc.(interface{ Close() error }); ok {
			closer.Close()
		}
	})
	return svc
}

func TestWorkerBackendMatchesSoftware(t *testing.T) {
	worker := newTestWorker(t)
	software := &softwareService{}

	alice, err := worker.GenerateKeyPair()
	require.NoError(t, err)
	bob, err := software.GenerateKeyPair()
	require.NoError(t, err)

	// A message encrypted through the worker decrypts through software
	// and the other way around.
	ciphertext, err := worker.EncryptDirectMessage("cross backend", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	plaintext, err := software.DecryptDirectMessage(ciphertext, alice.PublicKey, bob.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, "cross backend", plaintext)

	ciphertext, err = software.EncryptDirectMessage("other way", alice.PublicKey, bob.PrivateKey)
	require.NoError(t, err)
	plaintext, err = worker.DecryptDirectMessage(ciphertext, bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, "other way", plaintext)

	fromWorker, err := worker.DeriveSharedSecret(alice.PrivateKey, bob.PublicKey)
	require.NoError(t, err)
	fromSoftware, err := software.DeriveSharedSecret(bob.PrivateKey, alice.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, fromSoftware, fromWorker)
}

func TestWorkerSignAndVerify(t *testing.T) {
	worker := newTestWorker(t)

	keys, err := worker.GenerateKeyPair()
	require.NoError(t, err)

	signed, err := worker.SignEvent(&event.Event{
		Kind:      event.KindDirectMessage,
		CreatedAt: 1700000000,
		Content:   "payload",
	}, keys.PrivateKey)
	require.NoError(t, err)

	assert.Equal(t, keys.PublicKey, signed.PubKey)
	assert.True(t, worker.VerifyEventSignature(signed))
	assert.True(t, VerifyEventSignature(signed))

	tampered := *signed
	tampered.Content = "different"
	assert.False(t, worker.VerifyEventSignature(&tampered))
}

func TestWorkerGiftWrapRoundTrip(t *testing.T) {
	worker := newTestWorker(t)

	alice, err := worker.GenerateKeyPair()
	require.NoError(t, err)
	bob, err := worker.GenerateKeyPair()
	require.NoError(t, err)

	rumor := &event.Event{Kind: event.KindDirectMessage, Content: "wrapped"}
	wrap, err := worker.EncryptGiftWrap(rumor, alice.PrivateKey, bob.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, event.KindGiftWrap, wrap.Kind)

	recovered, err := worker.DecryptGiftWrap(wrap, bob.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, "wrapped", recovered.Content)
	assert.Equal(t, alice.PublicKey, recovered.PubKey)
}

func TestWorkerInviteOperations(t *testing.T) {
	worker := newTestWorker(t)

	keys, err := worker.GenerateKeyPair()
	require.NoError(t, err)

	id, err := worker.GenerateInviteID()
	require.NoError(t, err)
	assert.Len(t, id, 32)

	payload := map[string]interface{}{"inviteId": id, "inviter": keys.PublicKey}
	sig, err := worker.SignInviteData(payload, keys.PrivateKey)
	require.NoError(t, err)
	assert.True(t, worker.VerifyInviteSignature(payload, sig, keys.PublicKey))
	assert.True(t, VerifyInviteSignature(payload, sig, keys.PublicKey))

	key, err := worker.GenerateSecureRandom(32)
	require.NoError(t, err)
	require.Len(t, key, 32)

	ciphertext, err := worker.EncryptInviteData("invite body", key)
	require.NoError(t, err)
	plaintext, err := worker.DecryptInviteData(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, "invite body", plaintext)
}

func TestWorkerPropagatesErrors(t *testing.T) {
	worker := newTestWorker(t)

	_, err := worker.EncryptDirectMessage("hi", "bogus", "alsobogus")
	assert.Error(t, err)

	_, err = worker.GenerateSecureRandom(-1)
	assert.Error(t, err)
}

func TestWorkerConcurrentCalls(t *testing.T) {
	worker := newTestWorker(t)

	alice, err := worker.GenerateKeyPair()
	require.NoError(t, err)
	bob, err := worker.GenerateKeyPair()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ciphertext, err := worker.EncryptDirectMessage("concurrent", bob.PublicKey, alice.PrivateKey)
			assert.NoError(t, err)
			plaintext, err := worker.DecryptDirectMessage(ciphertext, alice.PublicKey, bob.PrivateKey)
			assert.NoError(t, err)
			assert.Equal(t, "concurrent", plaintext)
		}()
	}
	wg.Wait()
}

func TestWorkerCloseFailsSubsequentCalls(t *testing.T) {
	svc, err := NewService(Config{Backend: BackendWorker})
	require.NoError(t, err)

	closer := svc.(interface{ Close() error })
	require.NoError(t, closer.Close())
	require.NoError(t, closer.Close())

	_, err = svc.GenerateKeyPair()
	assert.Error(t, err)
	assert.False(t, svc.VerifyEventSignature(&event.Event{}))
}

func TestExecuteWorkerOpUnknownOperation(t *testing.T) {
	resp := executeWorkerOp(&softwareService{}, workerRequest{
		CorrelationID: "corr-1",
		Op:            "no_such_op",
	})
	assert.Equal(t, "corr-1", resp.CorrelationID)
	assert.NotEmpty(t, resp.Err)
}
