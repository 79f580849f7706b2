package crypto

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nostrdm/event"
)

// KeystoreBridge is the contract of a platform keystore. The private key
// never leaves the keystore; callers hold only an opaque, non-secret
// session token. Implementations live outside this module.
type KeystoreBridge interface {
	// PublicKey resolves the session token to the identity public key.
	PublicKey(ctx context.Context, sessionToken string) (string, error)
	// Sign signs a 32-byte digest with the keystore-held private key.
	Sign(ctx context.Context, sessionToken string, digest []byte) ([]byte, error)
	// SharedSecret runs ECDH between the keystore-held private key and a
	// peer public key.
	SharedSecret(ctx context.Context, sessionToken, peerPublicKey string) ([]byte, error)
}

// nativeService decorates the software implementation with a keystore
// bridge: operations that need the identity private key try the native
// path first and delegate to software on failure or timeout. Composition
// keeps both paths behind the one Service contract.
type nativeService struct {
	bridge   KeystoreBridge
	token    string
	timeout  time.Duration
	software Service
}

// callBridge runs fn under the bridge deadline. It fails closed: if the
// bridge ignores its context and hangs, the caller still gets
// ErrBridgeTimeout instead of blocking forever.
func (n *nativeService) callBridge(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrBridgeTimeout
	}
}

func (n *nativeService) fallback(op string, err error) {
	logrus.WithFields(logrus.Fields{
		"function": "nativeService",
		"package":  "crypto",
		"op":       op,
		"error":    err.Error(),
	}).Warn("Native keystore path failed, falling back to software")
}

// usesToken reports whether the private key argument is this service's
// session token rather than raw key material.
func (n *nativeService) usesToken(privateKey string) bool {
	return n.token != "" && privateKey == n.token
}

// bridgeConversationKey derives the conversation key for a peer via the
// keystore-held identity key.
func (n *nativeService) bridgeConversationKey(peerPublicKey string) ([]byte, error) {
	var shared []byte
	err := n.callBridge(func(ctx context.Context) error {
		var err error
		shared, err = n.bridge.SharedSecret(ctx, n.token, peerPublicKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer ClearSensitiveBuffer(shared)
	return conversationKeyFromShared(shared)
}

func (n *nativeService) GenerateKeyPair() (*KeyPair, error) {
	return n.software.GenerateKeyPair()
}

func (n *nativeService) EncryptDirectMessage(plaintext, recipientPublicKey, senderPrivateKey string) (string, error) {
	if !n.usesToken(senderPrivateKey) {
		return n.software.EncryptDirectMessage(plaintext, recipientPublicKey, senderPrivateKey)
	}

	key, err := n.bridgeConversationKey(recipientPublicKey)
	if err != nil {
		n.fallback(opEncryptDM, err)
		return n.software.EncryptDirectMessage(plaintext, recipientPublicKey, senderPrivateKey)
	}
	defer ClearSensitiveBuffer(key)

	return sealWithKey(key, []byte(plaintext))
}

func (n *nativeService) DecryptDirectMessage(ciphertext, senderPublicKey, recipientPrivateKey string) (string, error) {
	if !n.usesToken(recipientPrivateKey) {
		return n.software.DecryptDirectMessage(ciphertext, senderPublicKey, recipientPrivateKey)
	}

	key, err := n.bridgeConversationKey(senderPublicKey)
	if err != nil {
		n.fallback(opDecryptDM, err)
		return n.software.DecryptDirectMessage(ciphertext, senderPublicKey, recipientPrivateKey)
	}
	defer ClearSensitiveBuffer(key)

	plaintext, err := openWithKey(key, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (n *nativeService) SignEvent(unsigned *event.Event, privateKey string) (*event.Event, error) {
	if !n.usesToken(privateKey) {
		return n.software.SignEvent(unsigned, privateKey)
	}
	if unsigned == nil {
		return nil, &ValidationError{Field: "event", Reason: "must not be nil"}
	}

	signed, err := n.bridgeSignEvent(unsigned)
	if err != nil {
		n.fallback(opSignEvent, err)
		return n.software.SignEvent(unsigned, privateKey)
	}
	return signed, nil
}

func (n *nativeService) bridgeSignEvent(unsigned *event.Event) (*event.Event, error) {
	var pubkey string
	if err := n.callBridge(func(ctx context.Context) error {
		var err error
		pubkey, err = n.bridge.PublicKey(ctx, n.token)
		return err
	}); err != nil {
		return nil, err
	}

	signed := *unsigned
	signed.PubKey = NormalizeKey(pubkey)
	if signed.Tags == nil {
		signed.Tags = [][]string{}
	}

	id, err := ComputeEventID(&signed)
	if err != nil {
		return nil, err
	}
	signed.ID = id

	digest, err := hex.DecodeString(id)
	if err != nil {
		return nil, cryptoErr("sign event", err)
	}

	var sig []byte
	if err := n.callBridge(func(ctx context.Context) error {
		var err error
		sig, err = n.bridge.Sign(ctx, n.token, digest)
		return err
	}); err != nil {
		return nil, err
	}
	signed.Sig = hex.EncodeToString(sig)

	return &signed, nil
}

func (n *nativeService) VerifyEventSignature(ev *event.Event) bool {
	return n.software.VerifyEventSignature(ev)
}

func (n *nativeService) EncryptGiftWrap(rumor *event.Event, senderPrivateKey, recipientPublicKey string) (*event.Event, error) {
	if !n.usesToken(senderPrivateKey) {
		return n.software.EncryptGiftWrap(rumor, senderPrivateKey, recipientPublicKey)
	}
	if rumor == nil {
		return nil, &ValidationError{Field: "rumor", Reason: "must not be nil"}
	}
	recipient := NormalizeKey(recipientPublicKey)
	if recipient == "" {
		return nil, &ValidationError{Field: "recipient public key", Reason: "must be 64 hex characters"}
	}

	// Only the rumor signature needs the identity key; the envelope
	// layers use fresh ephemeral software keys either way.
	signedRumor, err := n.bridgeSignEvent(rumor)
	if err != nil {
		n.fallback(opEncryptGiftWrap, err)
		return n.software.EncryptGiftWrap(rumor, senderPrivateKey, recipientPublicKey)
	}
	return wrapSignedRumor(signedRumor, recipient)
}

func (n *nativeService) DecryptGiftWrap(wrap *event.Event, recipientPrivateKey string) (*event.Event, error) {
	if !n.usesToken(recipientPrivateKey) {
		return n.software.DecryptGiftWrap(wrap, recipientPrivateKey)
	}
	if wrap == nil {
		return nil, &ValidationError{Field: "wrap", Reason: "must not be nil"}
	}
	if wrap.Kind != event.KindGiftWrap {
		return nil, cryptoErrf("unwrap gift wrap", "unexpected outer kind %d", wrap.Kind)
	}

	seal, err := n.bridgeOpenLayer(wrap)
	if err != nil {
		n.fallback(opDecryptGiftWrap, err)
		return n.software.DecryptGiftWrap(wrap, recipientPrivateKey)
	}
	if seal.Kind != event.KindSeal {
		return nil, cryptoErrf("unwrap gift wrap", "unexpected seal kind %d", seal.Kind)
	}

	rumor, err := n.bridgeOpenLayer(seal)
	if err != nil {
		return nil, err
	}
	return rumor, nil
}

func (n *nativeService) bridgeOpenLayer(layer *event.Event) (*event.Event, error) {
	key, err := n.bridgeConversationKey(layer.PubKey)
	if err != nil {
		return nil, err
	}
	defer ClearSensitiveBuffer(key)

	plaintext, err := openWithKey(key, layer.Content)
	if err != nil {
		return nil, err
	}
	return decodeLayerPayload(string(plaintext))
}

func (n *nativeService) DeriveSharedSecret(privateKey, publicKey string) ([]byte, error) {
	if !n.usesToken(privateKey) {
		return n.software.DeriveSharedSecret(privateKey, publicKey)
	}

	var shared []byte
	err := n.callBridge(func(ctx context.Context) error {
		var err error
		shared, err = n.bridge.SharedSecret(ctx, n.token, publicKey)
		return err
	})
	if err != nil {
		n.fallback(opDeriveSharedSecret, err)
		return n.software.DeriveSharedSecret(privateKey, publicKey)
	}
	return shared, nil
}

func (n *nativeService) GenerateInviteID() (string, error) {
	return n.software.GenerateInviteID()
}

func (n *nativeService) SignInviteData(payload map[string]interface{}, privateKey string) (string, error) {
	if !n.usesToken(privateKey) {
		return n.software.SignInviteData(payload, privateKey)
	}

	canonical, err := canonicalInvitePayload(payload)
	if err != nil {
		return "", err
	}
	digest := sha256Digest(canonical)

	var sig []byte
	if err := n.callBridge(func(ctx context.Context) error {
		var err error
		sig, err = n.bridge.Sign(ctx, n.token, digest)
		return err
	}); err != nil {
		n.fallback(opSignInvite, err)
		return n.software.SignInviteData(payload, privateKey)
	}
	return hex.EncodeToString(sig), nil
}

func (n *nativeService) VerifyInviteSignature(payload map[string]interface{}, signature, publicKey string) bool {
	return n.software.VerifyInviteSignature(payload, signature, publicKey)
}

func (n *nativeService) EncryptInviteData(plaintext string, key []byte) (string, error) {
	return n.software.EncryptInviteData(plaintext, key)
}

func (n *nativeService) DecryptInviteData(ciphertext string, key []byte) (string, error) {
	return n.software.DecryptInviteData(ciphertext, key)
}

func (n *nativeService) GenerateSecureRandom(n2 int) ([]byte, error) {
	return n.software.GenerateSecureRandom(n2)
}
