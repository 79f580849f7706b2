package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nostrdm/event"
)

// ComputeEventID returns the hex event id: the SHA-256 of the canonical
// serialization [0, pubkey, created_at, kind, tags, content].
func ComputeEventID(ev *event.Event) (string, error) {
	tags := ev.Tags
	if tags == nil {
		tags = [][]string{}
	}
	canonical, err := json.Marshal([]interface{}{
		0, ev.PubKey, ev.CreatedAt, ev.Kind, tags, ev.Content,
	})
	if err != nil {
		return "", cryptoErrf("compute event id", "serialization failed: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// SignEvent fills in the event's pubkey, id, and signature using the
// given private key, returning a new signed copy. The input event is not
// modified.
func SignEvent(unsigned *event.Event, privateKey string) (*event.Event, error) {
	if unsigned == nil {
		return nil, &ValidationError{Field: "event", Reason: "must not be nil"}
	}

	keyPair, err := FromPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	signed := *unsigned
	signed.PubKey = keyPair.PublicKey
	if signed.Tags == nil {
		signed.Tags = [][]string{}
	}

	id, err := ComputeEventID(&signed)
	if err != nil {
		return nil, err
	}
	signed.ID = id

	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return nil, cryptoErr("sign event", err)
	}

	seed, err := decodePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	defer ClearSensitiveBuffer(seed)

	sig := ed25519.Sign(ed25519.NewKeyFromSeed(seed), idBytes)
	signed.Sig = hex.EncodeToString(sig)

	logrus.WithFields(logrus.Fields{
		"function":  "SignEvent",
		"package":   "crypto",
		"kind":      signed.Kind,
		"id_prefix": signed.ID[:8],
	}).Debug("Signed event")

	return &signed, nil
}

// VerifyEventSignature checks an event's id and signature against its
// pubkey. It never returns an error: any malformed or unverifiable event
// yields false.
func VerifyEventSignature(ev *event.Event) bool {
	if ev == nil || ev.ID == "" || ev.Sig == "" || !IsValidPublicKey(ev.PubKey) {
		return false
	}

	expectedID, err := ComputeEventID(ev)
	if err != nil || expectedID != NormalizeKey(ev.ID) {
		return false
	}

	pub, err := hex.DecodeString(NormalizeKey(ev.PubKey))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	idBytes, err := hex.DecodeString(expectedID)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(ev.Sig)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(pub, idBytes, sig)
}
