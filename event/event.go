// Package event defines the wire-level event model used between clients
// and relays.
//
// Events follow the Nostr shape: a hex id, a numeric kind, a creation
// timestamp, free-form content, the author's public key, a signature over
// the canonical serialization, and a list of string tags.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Event kinds understood by this module.
const (
	// KindContactList is a p-tagged follow list.
	KindContactList = 3
	// KindDirectMessage carries NIP-04 style ciphertext in its content.
	KindDirectMessage = 4
	// KindSeal is the middle gift-wrap layer, signed by an ephemeral key.
	KindSeal = 13
	// KindGiftWrap is the outer gift-wrap layer, p-tagged with the recipient.
	KindGiftWrap = 1059
)

// Event is a relay-deliverable event.
type Event struct {
	ID        string     `json:"id"`
	Kind      int        `json:"kind"`
	CreatedAt int64      `json:"created_at"`
	Content   string     `json:"content"`
	PubKey    string     `json:"pubkey"`
	Sig       string     `json:"sig"`
	Tags      [][]string `json:"tags"`
}

// AddTag appends a tag to the event.
func (e *Event) AddTag(name string, values ...string) {
	tag := append([]string{name}, values...)
	e.Tags = append(e.Tags, tag)
}

// FirstTag returns the first value of the first tag with the given name,
// or "" if no such tag exists.
func (e *Event) FirstTag(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// ConversationID derives a stable conversation identifier from the two
// participant public keys. The keys are sorted first, so both parties
// compute the same id.
func ConversationID(pubkeyA, pubkeyB string) string {
	keys := []string{pubkeyA, pubkeyB}
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(keys[0] + ":" + keys[1]))
	return hex.EncodeToString(sum[:])
}

// GroupConversationID derives a conversation identifier for a group chat
// from its group identifier.
func GroupConversationID(groupID string) string {
	sum := sha256.Sum256([]byte("group:" + groupID))
	return hex.EncodeToString(sum[:])
}
