package nostrdm

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nostrdm/crypto"
	"github.com/opd-ai/nostrdm/event"
	"github.com/opd-ai/nostrdm/retry"
	"github.com/opd-ai/nostrdm/store"
)

// RelayPublisher is the transport primitive the out-of-scope controller
// publishes and subscribes through. Implementations own the WebSocket
// connections; this module only decides what to send and when to retry.
type RelayPublisher interface {
	// Publish delivers a signed event to one relay.
	Publish(ctx context.Context, relayURL string, ev *event.Event) error
	// Subscribe streams events of the given kinds from one relay until
	// the returned cancel function is called.
	Subscribe(ctx context.Context, relayURL string, kinds []int, onEvent func(*event.Event)) (cancel func(), err error)
}

// Options configures a Client.
type Options struct {
	// IdentitySecret is the identity private key (64 hex) or a keystore
	// session token in native mode. It also seeds the at-rest key.
	IdentitySecret string
	// EncryptAtRest enables per-record encryption in the message store.
	EncryptAtRest bool
	// StoragePath is the SQLite database path; empty selects the
	// in-memory backend.
	StoragePath string
	// CryptoBackend selects the crypto service implementation.
	CryptoBackend crypto.Backend
	// Bridge is required when CryptoBackend is BackendNative.
	Bridge crypto.KeystoreBridge
	// Retry overrides the retry coordinator defaults.
	Retry retry.Config
}

// NewOptions returns the default options: software crypto, in-memory
// storage, at-rest encryption off.
func NewOptions() *Options {
	return &Options{
		CryptoBackend: crypto.BackendSoftware,
		Retry:         retry.DefaultConfig(),
	}
}

// Client holds the wired substrate components for one identity.
type Client struct {
	crypto  crypto.Service
	store   *store.MessageStore
	retry   *retry.Coordinator
	running bool
}

// New constructs and wires the crypto service, message store, and retry
// coordinator for one identity. Components are created once here and
// passed by reference; there are no package-level singletons.
func New(options *Options) (*Client, error) {
	if options == nil {
		return nil, errors.New("options must not be nil")
	}

	svc, err := crypto.NewService(crypto.Config{
		Backend:      options.CryptoBackend,
		Bridge:       options.Bridge,
		SessionToken: options.IdentitySecret,
	})
	if err != nil {
		return nil, err
	}

	var backend store.Backend
	if options.StoragePath != "" {
		backend, err = store.NewSQLiteBackend(options.StoragePath)
		if err != nil {
			return nil, err
		}
	} else {
		backend = store.NewMemoryBackend()
	}

	messageStore, err := store.New(store.Config{
		Backend:        backend,
		IdentitySecret: options.IdentitySecret,
		EncryptAtRest:  options.EncryptAtRest,
		MaxRetries:     options.Retry.MaxRetries,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}

	client := &Client{
		crypto:  svc,
		store:   messageStore,
		retry:   retry.NewCoordinator(options.Retry),
		running: true,
	}

	logrus.WithFields(logrus.Fields{
		"function":        "New",
		"package":         "nostrdm",
		"crypto_backend":  options.CryptoBackend,
		"persistent":      options.StoragePath != "",
		"encrypt_at_rest": options.EncryptAtRest,
	}).Info("Client initialized")

	return client, nil
}

// Crypto returns the client's cryptographic service.
func (c *Client) Crypto() crypto.Service {
	return c.crypto
}

// Store returns the client's message store.
func (c *Client) Store() *store.MessageStore {
	return c.store
}

// Retry returns the client's retry coordinator.
func (c *Client) Retry() *retry.Coordinator {
	return c.retry
}

// IsRunning reports whether Kill has not yet been called.
func (c *Client) IsRunning() bool {
	return c.running
}

// Kill cancels all retry timers and releases storage. The client must
// not be used afterward.
func (c *Client) Kill() {
	if !c.running {
		return
	}
	c.running = false

	c.retry.Cleanup()
	if closer, ok := c.crypto.(io.Closer); ok {
		closer.Close()
	}
	if err := c.store.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Kill",
			"package":  "nostrdm",
			"error":    err.Error(),
		}).Warn("Failed to close message store")
	}
}
