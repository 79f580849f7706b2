package crypto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nostrdm/event"
)

// Worker operation names. Each request envelope is tagged with one of
// these plus a correlation id, keeping the serialization boundary
// explicit and testable independent of the transport.
const (
	opGenerateKeyPair    = "generate_key_pair"
	opEncryptDM          = "encrypt_dm"
	opDecryptDM          = "decrypt_dm"
	opSignEvent          = "sign_event"
	opVerifyEvent        = "verify_event"
	opEncryptGiftWrap    = "encrypt_gift_wrap"
	opDecryptGiftWrap    = "decrypt_gift_wrap"
	opDeriveSharedSecret = "derive_shared_secret"
	opGenerateInviteID   = "generate_invite_id"
	opSignInvite         = "sign_invite"
	opVerifyInvite       = "verify_invite"
	opEncryptInvite      = "encrypt_invite"
	opDecryptInvite      = "decrypt_invite"
	opSecureRandom       = "secure_random"
)

// workerRequest is the request envelope crossing the worker boundary.
// Every argument is a plain string: hex, base64, JSON, or decimal.
type workerRequest struct {
	CorrelationID string   `json:"correlation_id"`
	Op            string   `json:"op"`
	Args          []string `json:"args"`
}

// workerResponse is the matching response envelope.
type workerResponse struct {
	CorrelationID string   `json:"correlation_id"`
	Results       []string `json:"results"`
	OK            bool     `json:"ok"`
	Err           string   `json:"err"`
}

// workerClient implements Service by proxying every operation to a
// dedicated goroutine over channels. One pending future is tracked per
// correlation id, so independent calls never block each other.
type workerClient struct {
	requests chan workerRequest

	mu      sync.Mutex
	pending map[string]chan workerResponse
	closed  bool
	done    chan struct{}
}

func newWorkerClient() *workerClient {
	c := &workerClient{
		requests: make(chan workerRequest),
		pending:  make(map[string]chan workerResponse),
		done:     make(chan struct{}),
	}
	go c.serve()
	return c
}

// serve is the worker loop: it executes each request against the software
// implementation and resolves the caller's pending future.
func (c *workerClient) serve() {
	software := &softwareService{}
	for {
		select {
		case req := <-c.requests:
			resp := executeWorkerOp(software, req)
			c.resolve(resp)
		case <-c.done:
			return
		}
	}
}

func (c *workerClient) resolve(resp workerResponse) {
	c.mu.Lock()
	ch, ok := c.pending[resp.CorrelationID]
	delete(c.pending, resp.CorrelationID)
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

// Close stops the worker goroutine. Outstanding calls fail.
func (c *workerClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return nil
}

// roundTrip sends one request envelope and blocks on its future.
func (c *workerClient) roundTrip(op string, args ...string) (workerResponse, error) {
	id := uuid.NewString()
	future := make(chan workerResponse, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return workerResponse{}, errors.New("crypto worker is closed")
	}
	c.pending[id] = future
	c.mu.Unlock()

	select {
	case c.requests <- workerRequest{CorrelationID: id, Op: op, Args: args}:
	case <-c.done:
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return workerResponse{}, errors.New("crypto worker is closed")
	}

	select {
	case resp := <-future:
		if resp.Err != "" {
			return workerResponse{}, fmt.Errorf("worker %s: %s", op, resp.Err)
		}
		return resp, nil
	case <-c.done:
		return workerResponse{}, errors.New("crypto worker is closed")
	}
}

// executeWorkerOp dispatches one envelope to the software implementation.
func executeWorkerOp(s Service, req workerRequest) workerResponse {
	resp := workerResponse{CorrelationID: req.CorrelationID}

	fail := func(err error) workerResponse {
		resp.Err = err.Error()
		return resp
	}
	arg := func(i int) string {
		if i < len(req.Args) {
			return req.Args[i]
		}
		return ""
	}

	switch req.Op {
	case opGenerateKeyPair:
		keys, err := s.GenerateKeyPair()
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{keys.PublicKey, keys.PrivateKey}

	case opEncryptDM:
		out, err := s.EncryptDirectMessage(arg(0), arg(1), arg(2))
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{out}

	case opDecryptDM:
		out, err := s.DecryptDirectMessage(arg(0), arg(1), arg(2))
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{out}

	case opSignEvent:
		ev, err := decodeEventArg(arg(0))
		if err != nil {
			return fail(err)
		}
		signed, err := s.SignEvent(ev, arg(1))
		if err != nil {
			return fail(err)
		}
		encoded, err := json.Marshal(signed)
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{string(encoded)}

	case opVerifyEvent:
		ev, err := decodeEventArg(arg(0))
		if err != nil {
			return fail(err)
		}
		resp.OK = s.VerifyEventSignature(ev)

	case opEncryptGiftWrap:
		rumor, err := decodeEventArg(arg(0))
		if err != nil {
			return fail(err)
		}
		wrap, err := s.EncryptGiftWrap(rumor, arg(1), arg(2))
		if err != nil {
			return fail(err)
		}
		encoded, err := json.Marshal(wrap)
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{string(encoded)}

	case opDecryptGiftWrap:
		wrap, err := decodeEventArg(arg(0))
		if err != nil {
			return fail(err)
		}
		rumor, err := s.DecryptGiftWrap(wrap, arg(1))
		if err != nil {
			return fail(err)
		}
		encoded, err := json.Marshal(rumor)
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{string(encoded)}

	case opDeriveSharedSecret:
		shared, err := s.DeriveSharedSecret(arg(0), arg(1))
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{hex.EncodeToString(shared)}

	case opGenerateInviteID:
		id, err := s.GenerateInviteID()
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{id}

	case opSignInvite:
		payload, err := decodePayloadArg(arg(0))
		if err != nil {
			return fail(err)
		}
		sig, err := s.SignInviteData(payload, arg(1))
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{sig}

	case opVerifyInvite:
		payload, err := decodePayloadArg(arg(0))
		if err != nil {
			return fail(err)
		}
		resp.OK = s.VerifyInviteSignature(payload, arg(1), arg(2))

	case opEncryptInvite:
		key, err := hex.DecodeString(arg(1))
		if err != nil {
			return fail(err)
		}
		out, err := s.EncryptInviteData(arg(0), key)
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{out}

	case opDecryptInvite:
		key, err := hex.DecodeString(arg(1))
		if err != nil {
			return fail(err)
		}
		out, err := s.DecryptInviteData(arg(0), key)
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{out}

	case opSecureRandom:
		n, err := strconv.Atoi(arg(0))
		if err != nil {
			return fail(err)
		}
		buf, err := s.GenerateSecureRandom(n)
		if err != nil {
			return fail(err)
		}
		resp.Results = []string{hex.EncodeToString(buf)}

	default:
		logrus.WithFields(logrus.Fields{
			"function": "executeWorkerOp",
			"package":  "crypto",
			"op":       req.Op,
		}).Warn("Unknown worker operation")
		resp.Err = fmt.Sprintf("unknown operation %q", req.Op)
	}

	return resp
}

func decodeEventArg(raw string) (*event.Event, error) {
	var ev event.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, fmt.Errorf("malformed event argument: %w", err)
	}
	return &ev, nil
}

func decodePayloadArg(raw string) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("malformed payload argument: %w", err)
	}
	return payload, nil
}

func (c *workerClient) GenerateKeyPair() (*KeyPair, error) {
	resp, err := c.roundTrip(opGenerateKeyPair)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) != 2 {
		return nil, errors.New("worker returned malformed key pair")
	}
	return &KeyPair{PublicKey: resp.Results[0], PrivateKey: resp.Results[1]}, nil
}

func (c *workerClient) EncryptDirectMessage(plaintext, recipientPublicKey, senderPrivateKey string) (string, error) {
	resp, err := c.roundTrip(opEncryptDM, plaintext, recipientPublicKey, senderPrivateKey)
	if err != nil {
		return "", err
	}
	return firstResult(resp)
}

func (c *workerClient) DecryptDirectMessage(ciphertext, senderPublicKey, recipientPrivateKey string) (string, error) {
	resp, err := c.roundTrip(opDecryptDM, ciphertext, senderPublicKey, recipientPrivateKey)
	if err != nil {
		return "", err
	}
	return firstResult(resp)
}

func (c *workerClient) SignEvent(unsigned *event.Event, privateKey string) (*event.Event, error) {
	encoded, err := json.Marshal(unsigned)
	if err != nil {
		return nil, &ValidationError{Field: "event", Reason: "not serializable"}
	}
	resp, err := c.roundTrip(opSignEvent, string(encoded), privateKey)
	if err != nil {
		return nil, err
	}
	raw, err := firstResult(resp)
	if err != nil {
		return nil, err
	}
	return decodeEventArg(raw)
}

func (c *workerClient) VerifyEventSignature(ev *event.Event) bool {
	encoded, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	resp, err := c.roundTrip(opVerifyEvent, string(encoded))
	if err != nil {
		return false
	}
	return resp.OK
}

func (c *workerClient) EncryptGiftWrap(rumor *event.Event, senderPrivateKey, recipientPublicKey string) (*event.Event, error) {
	encoded, err := json.Marshal(rumor)
	if err != nil {
		return nil, &ValidationError{Field: "rumor", Reason: "not serializable"}
	}
	resp, err := c.roundTrip(opEncryptGiftWrap, string(encoded), senderPrivateKey, recipientPublicKey)
	if err != nil {
		return nil, err
	}
	raw, err := firstResult(resp)
	if err != nil {
		return nil, err
	}
	return decodeEventArg(raw)
}

func (c *workerClient) DecryptGiftWrap(wrap *event.Event, recipientPrivateKey string) (*event.Event, error) {
	encoded, err := json.Marshal(wrap)
	if err != nil {
		return nil, &ValidationError{Field: "wrap", Reason: "not serializable"}
	}
	resp, err := c.roundTrip(opDecryptGiftWrap, string(encoded), recipientPrivateKey)
	if err != nil {
		return nil, err
	}
	raw, err := firstResult(resp)
	if err != nil {
		return nil, err
	}
	return decodeEventArg(raw)
}

func (c *workerClient) DeriveSharedSecret(privateKey, publicKey string) ([]byte, error) {
	resp, err := c.roundTrip(opDeriveSharedSecret, privateKey, publicKey)
	if err != nil {
		return nil, err
	}
	raw, err := firstResult(resp)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(raw)
}

func (c *workerClient) GenerateInviteID() (string, error) {
	resp, err := c.roundTrip(opGenerateInviteID)
	if err != nil {
		return "", err
	}
	return firstResult(resp)
}

func (c *workerClient) SignInviteData(payload map[string]interface{}, privateKey string) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", &ValidationError{Field: "invite payload", Reason: "not serializable"}
	}
	resp, err := c.roundTrip(opSignInvite, string(encoded), privateKey)
	if err != nil {
		return "", err
	}
	return firstResult(resp)
}

func (c *workerClient) VerifyInviteSignature(payload map[string]interface{}, signature, publicKey string) bool {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	resp, err := c.roundTrip(opVerifyInvite, string(encoded), signature, publicKey)
	if err != nil {
		return false
	}
	return resp.OK
}

func (c *workerClient) EncryptInviteData(plaintext string, key []byte) (string, error) {
	resp, err := c.roundTrip(opEncryptInvite, plaintext, hex.EncodeToString(key))
	if err != nil {
		return "", err
	}
	return firstResult(resp)
}

func (c *workerClient) DecryptInviteData(ciphertext string, key []byte) (string, error) {
	resp, err := c.roundTrip(opDecryptInvite, ciphertext, hex.EncodeToString(key))
	if err != nil {
		return "", err
	}
	return firstResult(resp)
}

func (c *workerClient) GenerateSecureRandom(n int) ([]byte, error) {
	resp, err := c.roundTrip(opSecureRandom, strconv.Itoa(n))
	if err != nil {
		return nil, err
	}
	raw, err := firstResult(resp)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(raw)
}

func firstResult(resp workerResponse) (string, error) {
	if len(resp.Results) == 0 {
		return "", errors.New("worker returned no result")
	}
	return resp.Results[0], nil
}
