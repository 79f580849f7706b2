package crypto

import (
	"fmt"
	"time"

	"github.com/opd-ai/nostrdm/event"
)

// Backend selects which Service implementation NewService constructs.
type Backend uint8

const (
	// BackendSoftware runs every operation in-process.
	BackendSoftware Backend = iota
	// BackendWorker proxies operations to a dedicated goroutine over an
	// explicit request/response channel boundary.
	BackendWorker
	// BackendNative tries a platform keystore bridge first and falls back
	// to the software implementation on failure or timeout.
	BackendNative
)

// DefaultBridgeTimeout bounds every native keystore call.
const DefaultBridgeTimeout = 5 * time.Second

// Service is the uniform cryptographic contract consumed by the rest of
// the module. Every argument and result is plain structured data (hex or
// base64 strings, byte slices), so implementations are free to cross a
// worker or process boundary. A private key argument is either a 64-hex
// software key or an opaque keystore session token; call sites never
// branch on which.
type Service interface {
	GenerateKeyPair() (*KeyPair, error)
	EncryptDirectMessage(plaintext, recipientPublicKey, senderPrivateKey string) (string, error)
	DecryptDirectMessage(ciphertext, senderPublicKey, recipientPrivateKey string) (string, error)
	SignEvent(unsigned *event.Event, privateKey string) (*event.Event, error)
	VerifyEventSignature(ev *event.Event) bool
	EncryptGiftWrap(rumor *event.Event, senderPrivateKey, recipientPublicKey string) (*event.Event, error)
	DecryptGiftWrap(wrap *event.Event, recipientPrivateKey string) (*event.Event, error)
	DeriveSharedSecret(privateKey, publicKey string) ([]byte, error)
	GenerateInviteID() (string, error)
	SignInviteData(payload map[string]interface{}, privateKey string) (string, error)
	VerifyInviteSignature(payload map[string]interface{}, signature, publicKey string) bool
	EncryptInviteData(plaintext string, key []byte) (string, error)
	DecryptInviteData(ciphertext string, key []byte) (string, error)
	GenerateSecureRandom(n int) ([]byte, error)
}

// Config selects and parameterizes a Service implementation.
type Config struct {
	Backend Backend
	// Bridge is required for BackendNative.
	Bridge KeystoreBridge
	// SessionToken is the opaque handle the bridge resolves to a key.
	SessionToken string
	// BridgeTimeout bounds each bridge call; DefaultBridgeTimeout if zero.
	BridgeTimeout time.Duration
}

// NewService constructs the Service implementation selected by the
// config. The result is intended to be created once at process start and
// passed by dependency injection to every consumer.
func NewService(cfg Config) (Service, error) {
	switch cfg.Backend {
	case BackendSoftware:
		return &softwareService{}, nil
	case BackendWorker:
		return newWorkerClient(), nil
	case BackendNative:
		if cfg.Bridge == nil {
			return nil, &ValidationError{Field: "bridge", Reason: "required for the native backend"}
		}
		timeout := cfg.BridgeTimeout
		if timeout <= 0 {
			timeout = DefaultBridgeTimeout
		}
		return &nativeService{
			bridge:   cfg.Bridge,
			token:    cfg.SessionToken,
			timeout:  timeout,
			software: &softwareService{},
		}, nil
	default:
		return nil, &ValidationError{Field: "backend", Reason: fmt.Sprintf("unknown backend %d", cfg.Backend)}
	}
}
