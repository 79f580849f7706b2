package store

import (
	"fmt"

	"github.com/opd-ai/nostrdm/event"
)

// Status is the delivery state of a message. Status only moves forward:
// sending -> {accepted|rejected|queued} -> {delivered|failed}; delivered
// and failed are terminal.
type Status string

const (
	StatusSending   Status = "sending"
	StatusQueued    Status = "queued"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Kind distinguishes user-authored messages from client commands.
type Kind string

const (
	KindUser    Kind = "user"
	KindCommand Kind = "command"
)

// statusTransitions lists the permitted forward moves.
var statusTransitions = map[Status][]Status{
	StatusSending:  {StatusAccepted, StatusRejected, StatusQueued},
	StatusAccepted: {StatusDelivered, StatusFailed},
	StatusRejected: {StatusDelivered, StatusFailed},
	StatusQueued:   {StatusDelivered, StatusFailed},
}

// canTransition reports whether a status change is a legal forward move.
// Re-asserting the current status is allowed (idempotent updates).
func canTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RelayResult records the outcome of one publish attempt at one relay.
type RelayResult struct {
	Relay    string `json:"relay"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Attachment is a piece of media referenced by a message.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is one entry in the conversation log. Timestamps are Unix
// milliseconds.
type Message struct {
	ID               string         `json:"id"`
	ConversationID   string         `json:"conversationId"`
	Content          string         `json:"content"`
	Kind             Kind           `json:"kind"`
	Timestamp        int64          `json:"timestamp"`
	IsOutgoing       bool           `json:"isOutgoing"`
	Status           Status         `json:"status"`
	DMFormat         string         `json:"dmFormat,omitempty"`
	EventID          string         `json:"eventId,omitempty"`
	SenderPubkey     string         `json:"senderPubkey"`
	RecipientPubkey  string         `json:"recipientPubkey"`
	EncryptedContent string         `json:"encryptedContent,omitempty"`
	RelayResults     []RelayResult  `json:"relayResults,omitempty"`
	RetryCount       int            `json:"retryCount,omitempty"`
	Attachments      []Attachment   `json:"attachments,omitempty"`
	ReplyTo          string         `json:"replyTo,omitempty"`
	Reactions        map[string]int `json:"reactions,omitempty"`
	DeletedAt        int64          `json:"deletedAt,omitempty"`
	Synced           bool           `json:"synced,omitempty"`
}

// Validate checks the fields every persisted message must carry.
func (m *Message) Validate() error {
	if m == nil {
		return &StorageError{Op: "validate message", Err: errMessageNil}
	}
	if m.ID == "" {
		return &StorageError{Op: "validate message", Err: fmt.Errorf("message id is required")}
	}
	if m.ConversationID == "" {
		return &StorageError{Op: "validate message", Err: fmt.Errorf("conversation id is required")}
	}
	return nil
}

// OutgoingMessage is one entry in the outgoing retry queue. It is created
// when a send attempt exhausts its immediate relay attempts and destroyed
// when a later attempt succeeds or retries are exhausted.
type OutgoingMessage struct {
	ID              string       `json:"id"`
	ConversationID  string       `json:"conversationId"`
	Content         string       `json:"content"`
	RecipientPubkey string       `json:"recipientPubkey"`
	CreatedAt       int64        `json:"createdAt"`
	RetryCount      int          `json:"retryCount"`
	NextRetryAt     int64        `json:"nextRetryAt"`
	SignedEvent     *event.Event `json:"signedEvent,omitempty"`
}
