package crypto

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nostrdm/event"
)

// timestampFuzzWindow is how far into the past seal and wrap timestamps
// are randomized, so envelope creation times do not correlate with the
// rumor they carry.
const timestampFuzzWindow = 2 * 24 * time.Hour

// EncryptGiftWrap wraps a rumor event in the three-layer metadata-hiding
// envelope.
//
// The rumor is signed by the real sender. The seal encrypts the rumor
// under a fresh ephemeral key's conversation key with the recipient and is
// signed by that same ephemeral key, so its pubkey reveals nothing about
// the sender. The wrap repeats the construction with a second, distinct
// ephemeral key and carries a ["p", recipient] routing tag. Only the
// rumor's own signature ties the message to the real sender, and only the
// recipient can reach it.
func EncryptGiftWrap(rumor *event.Event, senderPrivateKey, recipientPublicKey string) (*event.Event, error) {
	if rumor == nil {
		return nil, &ValidationError{Field: "rumor", Reason: "must not be nil"}
	}
	recipient := NormalizeKey(recipientPublicKey)
	if recipient == "" {
		return nil, &ValidationError{Field: "recipient public key", Reason: "must be 64 hex characters"}
	}

	signedRumor, err := SignEvent(rumor, senderPrivateKey)
	if err != nil {
		return nil, err
	}

	return wrapSignedRumor(signedRumor, recipient)
}

// wrapSignedRumor builds the seal and wrap layers around an
// already-signed rumor.
func wrapSignedRumor(signedRumor *event.Event, recipient string) (*event.Event, error) {
	seal, err := wrapLayer(signedRumor, event.KindSeal, recipient, nil)
	if err != nil {
		return nil, err
	}

	wrap, err := wrapLayer(seal, event.KindGiftWrap, recipient,
		[][]string{{"p", recipient}})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":         "EncryptGiftWrap",
		"package":          "crypto",
		"recipient_prefix": recipient[:8],
		"wrap_id_prefix":   wrap.ID[:8],
	}).Debug("Built gift wrap envelope")

	return wrap, nil
}

// wrapLayer serializes inner, encrypts it under a fresh ephemeral key's
// conversation key with the recipient, and signs the layer with that same
// ephemeral key. The recipient recovers the layer key from the layer's
// pubkey, so no long-term identity appears on either envelope.
func wrapLayer(inner *event.Event, kind int, recipient string, tags [][]string) (*event.Event, error) {
	serialized, err := json.Marshal(inner)
	if err != nil {
		return nil, cryptoErrf("gift wrap", "failed to serialize layer payload: %w", err)
	}

	layerKeys, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer ClearSensitiveString(&layerKeys.PrivateKey)

	content, err := EncryptDirectMessage(string(serialized), recipient, layerKeys.PrivateKey)
	if err != nil {
		return nil, err
	}

	layer := &event.Event{
		Kind:      kind,
		CreatedAt: fuzzTimestamp(),
		Content:   content,
		Tags:      tags,
	}
	return SignEvent(layer, layerKeys.PrivateKey)
}

// DecryptGiftWrap reverses EncryptGiftWrap. The recipient opens the outer
// wrap with the conversation key of its private key and the wrap's
// ephemeral pubkey, checks the seal's kind, then opens the seal the same
// way to recover the rumor. Any kind mismatch or decryption failure
// surfaces as a CryptoError.
func DecryptGiftWrap(wrap *event.Event, recipientPrivateKey string) (*event.Event, error) {
	if wrap == nil {
		return nil, &ValidationError{Field: "wrap", Reason: "must not be nil"}
	}
	if wrap.Kind != event.KindGiftWrap {
		return nil, cryptoErrf("unwrap gift wrap", "unexpected outer kind %d", wrap.Kind)
	}

	seal, err := openLayer(wrap, recipientPrivateKey)
	if err != nil {
		return nil, err
	}
	if seal.Kind != event.KindSeal {
		return nil, cryptoErrf("unwrap gift wrap", "unexpected seal kind %d", seal.Kind)
	}

	rumor, err := openLayer(seal, recipientPrivateKey)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":       "DecryptGiftWrap",
		"package":        "crypto",
		"rumor_kind":     rumor.Kind,
		"sender_prefix":  safePrefix(rumor.PubKey),
		"wrap_id_prefix": safePrefix(wrap.ID),
	}).Debug("Opened gift wrap envelope")

	return rumor, nil
}

// openLayer decrypts one envelope layer using the conversation key of the
// recipient's private key and the layer signer's ephemeral pubkey.
func openLayer(layer *event.Event, recipientPrivateKey string) (*event.Event, error) {
	plaintext, err := DecryptDirectMessage(layer.Content, layer.PubKey, recipientPrivateKey)
	if err != nil {
		return nil, err
	}
	return decodeLayerPayload(plaintext)
}

// decodeLayerPayload parses a decrypted envelope layer back into an event.
func decodeLayerPayload(plaintext string) (*event.Event, error) {
	var inner event.Event
	if err := json.Unmarshal([]byte(plaintext), &inner); err != nil {
		return nil, cryptoErrf("unwrap gift wrap", "malformed layer payload: %w", err)
	}
	return &inner, nil
}

// fuzzTimestamp returns a creation time randomized up to two days into
// the past.
func fuzzTimestamp() int64 {
	now := time.Now().Unix()
	offset, err := rand.Int(rand.Reader, big.NewInt(int64(timestampFuzzWindow/time.Second)))
	if err != nil {
		return now
	}
	return now - offset.Int64()
}

func safePrefix(s string) string {
	if len(s) < 8 {
		return s
	}
	return s[:8]
}
