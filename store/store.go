package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nostrdm/crypto"
)

// EncryptedContentSentinel replaces the content field of records stored
// with at-rest encryption. It is never treated as real content on read;
// decryption always restores the original fields.
const EncryptedContentSentinel = "[encrypted]"

// atRestKeyLabel domain-separates the at-rest key from other uses of the
// identity secret.
const atRestKeyLabel = "nostrdm-at-rest-v1"

// DefaultMaxRetries bounds how many times a queued message is retried
// before it is considered exhausted.
const DefaultMaxRetries = 5

// Config parameterizes a MessageStore.
type Config struct {
	// Backend is the storage trait instance; required.
	Backend Backend
	// IdentitySecret derives the at-rest encryption key. Required when
	// EncryptAtRest is set.
	IdentitySecret string
	// EncryptAtRest enables per-record encryption of sensitive fields.
	// Toggling it affects new writes only; existing records keep their
	// stored form and are handled per-record on read.
	EncryptAtRest bool
	// MaxRetries filters GetQueuedMessages; DefaultMaxRetries if zero.
	MaxRetries int
}

// QueryOptions windows a GetMessages call. The zero value returns every
// message of the conversation.
type QueryOptions struct {
	// Limit caps the result size. With no Before/After bound the window
	// is the most recent Limit messages.
	Limit int
	// Offset skips entries from the end of the log (newest first) before
	// the window is taken.
	Offset int
	// Before restricts to messages with Timestamp < Before (Unix ms).
	Before int64
	// After restricts to messages with Timestamp > After (Unix ms).
	After int64
}

// storedMessage is the persistence-layer view of a Message. When
// IsEncrypted is set, the sensitive fields are zeroed and EncryptedData
// holds their AES-GCM bundle.
type storedMessage struct {
	Message
	IsEncrypted   bool   `json:"isEncrypted"`
	EncryptedData string `json:"encryptedData,omitempty"`
}

// sensitiveBundle is the plaintext structure sealed into EncryptedData.
type sensitiveBundle struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyTo     string       `json:"replyTo,omitempty"`
}

// MessageStore is the durable message log plus the outgoing retry queue.
type MessageStore struct {
	backend    Backend
	atRestKey  []byte
	encrypt    bool
	maxRetries int

	// locks serializes writers of the same message id; different ids
	// proceed independently.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a MessageStore over the configured backend. The at-rest
// key is derived once per store instance from the identity secret.
func New(cfg Config) (*MessageStore, error) {
	if cfg.Backend == nil {
		return nil, &StorageError{Op: "configure", Err: errors.New("backend is required")}
	}
	if cfg.EncryptAtRest && cfg.IdentitySecret == "" {
		return nil, &StorageError{Op: "configure", Err: errors.New("identity secret is required for at-rest encryption")}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	ms := &MessageStore{
		backend:    cfg.Backend,
		encrypt:    cfg.EncryptAtRest,
		maxRetries: maxRetries,
		locks:      make(map[string]*sync.Mutex),
	}
	if cfg.IdentitySecret != "" {
		key := sha256.Sum256([]byte(cfg.IdentitySecret + ":" + atRestKeyLabel))
		ms.atRestKey = key[:]
	}

	logrus.WithFields(logrus.Fields{
		"function":        "New",
		"package":         "store",
		"encrypt_at_rest": cfg.EncryptAtRest,
	}).Debug("Message store initialized")

	return ms, nil
}

// Close releases the underlying backend.
func (ms *MessageStore) Close() error {
	return ms.backend.Close()
}

// lockFor returns the write lock for one message id.
func (ms *MessageStore) lockFor(id string) *sync.Mutex {
	ms.locksMu.Lock()
	defer ms.locksMu.Unlock()
	l, ok := ms.locks[id]
	if !ok {
		l = &sync.Mutex{}
		ms.locks[id] = l
	}
	return l
}

// PersistMessage durably upserts a message keyed by its id. The write
// completes before the call returns; there is no write-behind buffer.
func (ms *MessageStore) PersistMessage(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}

	l := ms.lockFor(m.ID)
	l.Lock()
	defer l.Unlock()

	return ms.putMessage(ctx, m)
}

func (ms *MessageStore) putMessage(ctx context.Context, m *Message) error {
	rec := *m
	stored := storedMessage{Message: rec}

	if ms.encrypt {
		bundle, err := json.Marshal(sensitiveBundle{
			Content:     m.Content,
			Attachments: m.Attachments,
			ReplyTo:     m.ReplyTo,
		})
		if err != nil {
			return &StorageError{Op: "seal message", Err: err}
		}
		blob, err := crypto.EncryptWithKey(bundle, ms.atRestKey)
		if err != nil {
			return &StorageError{Op: "seal message", Err: err}
		}
		stored.IsEncrypted = true
		stored.EncryptedData = blob
		stored.Content = EncryptedContentSentinel
		stored.Attachments = nil
		stored.ReplyTo = ""
	}

	value, err := json.Marshal(stored)
	if err != nil {
		return &StorageError{Op: "serialize message", Err: err}
	}

	if err := ms.backend.Put(ctx, BucketMessages, Record{
		Key: m.ID,
		Indexes: map[string]string{
			IndexConversation: m.ConversationID,
			IndexTimestamp:    encodeIndexTime(m.Timestamp),
		},
		Value: value,
	}); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":        "PersistMessage",
		"package":         "store",
		"message_id":      m.ID,
		"conversation_id": m.ConversationID,
		"status":          m.Status,
		"encrypted":       ms.encrypt,
	}).Debug("Persisted message")

	return nil
}

// decodeMessage parses a stored record and transparently decrypts it when
// its own isEncrypted flag says so.
func (ms *MessageStore) decodeMessage(value []byte) (*Message, error) {
	var stored storedMessage
	if err := json.Unmarshal(value, &stored); err != nil {
		return nil, &StorageError{Op: "decode message", Err: err}
	}

	if !stored.IsEncrypted {
		m := stored.Message
		return &m, nil
	}

	if ms.atRestKey == nil {
		return nil, &StorageError{Op: "decode message", Err: errors.New("record is encrypted but no identity secret is configured")}
	}
	plaintext, err := crypto.DecryptWithKey(stored.EncryptedData, ms.atRestKey)
	if err != nil {
		return nil, &StorageError{Op: "open message", Err: err}
	}
	var bundle sensitiveBundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return nil, &StorageError{Op: "open message", Err: err}
	}

	m := stored.Message
	m.Content = bundle.Content
	m.Attachments = bundle.Attachments
	m.ReplyTo = bundle.ReplyTo
	return &m, nil
}

// GetMessage returns the message with the given id, or nil if it does
// not exist. Missing ids are not an error.
func (ms *MessageStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	value, err := ms.backend.Get(ctx, BucketMessages, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ms.decodeMessage(value)
}

// GetMessages returns the conversation's messages in ascending
// chronological order. With a Limit and no explicit bounds the window is
// the most recent Limit messages, still returned ascending.
func (ms *MessageStore) GetMessages(ctx context.Context, conversationID string, opts QueryOptions) ([]Message, error) {
	values, err := ms.backend.AllByIndex(ctx, BucketMessages, IndexConversation, conversationID)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(values))
	for _, value := range values {
		m, err := ms.decodeMessage(value)
		if err != nil {
			return nil, err
		}
		if opts.Before > 0 && m.Timestamp >= opts.Before {
			continue
		}
		if opts.After > 0 && m.Timestamp <= opts.After {
			continue
		}
		messages = append(messages, *m)
	}

	sort.Slice(messages, func(i, j int) bool {
		if messages[i].Timestamp == messages[j].Timestamp {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].Timestamp < messages[j].Timestamp
	})

	// Window from the end: newest Offset entries skipped, then the most
	// recent Limit taken, order stays ascending.
	end := len(messages) - opts.Offset
	if end < 0 {
		end = 0
	}
	start := 0
	if opts.Limit > 0 && end-opts.Limit > 0 {
		start = end - opts.Limit
	}
	return messages[start:end], nil
}

// UpdateMessageStatus moves a message to a new status, enforcing the
// forward-only transition rules. Updating an unknown id is an error.
func (ms *MessageStore) UpdateMessageStatus(ctx context.Context, id string, status Status) error {
	l := ms.lockFor(id)
	l.Lock()
	defer l.Unlock()

	m, err := ms.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if m == nil {
		return &StorageError{Op: "update status", Err: fmt.Errorf("message %q does not exist", id)}
	}
	if !canTransition(m.Status, status) {
		return &StorageError{Op: "update status", Err: fmt.Errorf("illegal transition %s -> %s for message %q", m.Status, status, id)}
	}

	m.Status = status
	return ms.putMessage(ctx, m)
}

// QueueOutgoingMessage adds or updates an entry in the outgoing retry
// queue.
func (ms *MessageStore) QueueOutgoingMessage(ctx context.Context, om *OutgoingMessage) error {
	if om == nil || om.ID == "" {
		return &StorageError{Op: "queue message", Err: errors.New("queue entry id is required")}
	}
	if om.CreatedAt == 0 {
		om.CreatedAt = time.Now().UnixMilli()
	}

	value, err := json.Marshal(om)
	if err != nil {
		return &StorageError{Op: "serialize queue entry", Err: err}
	}

	if err := ms.backend.Put(ctx, BucketQueue, Record{
		Key: om.ID,
		Indexes: map[string]string{
			IndexConversation: om.ConversationID,
			IndexNextRetry:    encodeIndexTime(om.NextRetryAt),
		},
		Value: value,
	}); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":      "QueueOutgoingMessage",
		"package":       "store",
		"message_id":    om.ID,
		"retry_count":   om.RetryCount,
		"next_retry_at": om.NextRetryAt,
	}).Debug("Queued outgoing message")

	return nil
}

// GetQueuedMessages returns queue entries that are due (nextRetryAt <=
// now) and still under the retry limit, ordered by due time.
func (ms *MessageStore) GetQueuedMessages(ctx context.Context) ([]OutgoingMessage, error) {
	values, err := ms.backend.AllByIndexUpTo(ctx, BucketQueue, IndexNextRetry, encodeIndexTime(time.Now().UnixMilli()))
	if err != nil {
		return nil, err
	}

	out := make([]OutgoingMessage, 0, len(values))
	for _, value := range values {
		var om OutgoingMessage
		if err := json.Unmarshal(value, &om); err != nil {
			return nil, &StorageError{Op: "decode queue entry", Err: err}
		}
		if om.RetryCount >= ms.maxRetries {
			continue
		}
		out = append(out, om)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt < out[j].NextRetryAt })
	return out, nil
}

// RemoveFromQueue deletes a queue entry after a successful send or a
// terminal failure.
func (ms *MessageStore) RemoveFromQueue(ctx context.Context, id string) error {
	return ms.backend.Delete(ctx, BucketQueue, id)
}

// GetLastMessageTimestamp returns the newest message timestamp for a
// conversation, or 0 when the conversation is empty.
func (ms *MessageStore) GetLastMessageTimestamp(ctx context.Context, conversationID string) (int64, error) {
	messages, err := ms.GetMessages(ctx, conversationID, QueryOptions{Limit: 1})
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}
	return messages[len(messages)-1].Timestamp, nil
}

// MarkMessagesSynced flags the given messages as synced with the relay
// backlog. Unknown ids are skipped.
func (ms *MessageStore) MarkMessagesSynced(ctx context.Context, ids []string) error {
	for _, id := range ids {
		l := ms.lockFor(id)
		l.Lock()
		m, err := ms.GetMessage(ctx, id)
		if err != nil {
			l.Unlock()
			return err
		}
		if m == nil {
			l.Unlock()
			continue
		}
		m.Synced = true
		if err := ms.putMessage(ctx, m); err != nil {
			l.Unlock()
			return err
		}
		l.Unlock()
	}
	return nil
}

// CleanupOldMessages deletes messages older than the cutoff and returns
// how many were removed.
func (ms *MessageStore) CleanupOldMessages(ctx context.Context, olderThan time.Time) (int, error) {
	values, err := ms.backend.AllByIndexUpTo(ctx, BucketMessages, IndexTimestamp, encodeIndexTime(olderThan.UnixMilli()))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, value := range values {
		var stored storedMessage
		if err := json.Unmarshal(value, &stored); err != nil {
			return removed, &StorageError{Op: "decode message", Err: err}
		}
		if err := ms.backend.Delete(ctx, BucketMessages, stored.ID); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "CleanupOldMessages",
			"package":  "store",
			"removed":  removed,
		}).Info("Removed expired messages")
	}
	return removed, nil
}

// GetStorageUsage reports the backend's approximate stored size in bytes.
func (ms *MessageStore) GetStorageUsage(ctx context.Context) (int64, error) {
	return ms.backend.Usage(ctx)
}
