package crypto

import (
	"errors"
	"fmt"
)

// ErrBridgeTimeout indicates a native keystore call exceeded its deadline.
var ErrBridgeTimeout = errors.New("native bridge call timed out")

// ValidationError reports malformed input: a key of the wrong length, an
// invalid random-length request, or a payload that cannot be canonicalized.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CryptoError reports a failed cryptographic operation: decryption with a
// wrong key, tampered ciphertext, or a malformed envelope. Operations that
// produce data always surface these; they are never swallowed into a
// success result.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

func cryptoErr(op string, err error) error {
	return &CryptoError{Op: op, Err: err}
}

func cryptoErrf(op, format string, args ...interface{}) error {
	return &CryptoError{Op: op, Err: fmt.Errorf(format, args...)}
}
