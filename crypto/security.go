package crypto

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"runtime"
)

// sensitiveFieldPattern matches field names whose values must never reach
// a log line in the clear.
var sensitiveFieldPattern = regexp.MustCompile(
	`(?i)(private|secret|token|passw|passphrase|seed|mnemonic|content|plaintext|ciphertext|sig$|signature|encrypted)`)

// redactedPlaceholder replaces sensitive values in sanitized log payloads.
const redactedPlaceholder = "[REDACTED]"

// ClearSensitiveBuffer overwrites a byte slice containing sensitive data
// with zeros. It returns an error if the slice is nil.
func ClearSensitiveBuffer(data []byte) error {
	if data == nil {
		return errors.New("cannot clear nil buffer")
	}
	for i := range data {
		data[i] = 0
	}
	// Keep the slice live so the zeroing is not optimized away.
	runtime.KeepAlive(data)
	return nil
}

// ClearSensitiveString replaces a string holding sensitive data with the
// empty string. Go strings are immutable, so the backing bytes cannot be
// scrubbed; dropping the reference is the best available hygiene.
func ClearSensitiveString(s *string) {
	if s == nil {
		return
	}
	*s = ""
}

// ConstantTimeCompare compares two byte slices in time dependent only on
// the longer length. It scans the full length even after a mismatch and
// never short-circuits on unequal lengths.
func ConstantTimeCompare(a, b []byte) bool {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	var diff byte
	if len(a) != len(b) {
		diff = 1
	}
	for i := 0; i < maxLen; i++ {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		diff |= av ^ bv
	}
	return diff == 0
}

// ConstantTimeStringCompare is ConstantTimeCompare over strings.
func ConstantTimeStringCompare(a, b string) bool {
	return ConstantTimeCompare([]byte(a), []byte(b))
}

// SanitizeForLogging walks a value and redacts any field whose name
// matches the sensitive-name pattern, recursing through maps, slices,
// structs, and wrapped errors. Errors are flattened to their message;
// stack traces are never serialized. The input is not modified.
func SanitizeForLogging(value interface{}) interface{} {
	return sanitizeValue(reflect.ValueOf(value), false)
}

func sanitizeValue(v reflect.Value, redact bool) interface{} {
	if !v.IsValid() {
		return nil
	}

	// Errors flatten to their message regardless of concrete type.
	if err, ok := v.Interface().(error); ok {
		if redact {
			return redactedPlaceholder
		}
		return map[string]interface{}{"error": err.Error()}
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return sanitizeValue(v.Elem(), redact)

	case reflect.Map:
		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			out[key] = sanitizeValue(iter.Value(), redact || sensitiveFieldPattern.MatchString(key))
		}
		return out

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			if redact {
				return redactedPlaceholder
			}
			return v.Interface()
		}
		out := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = sanitizeValue(v.Index(i), redact)
		}
		return out

	case reflect.Struct:
		out := make(map[string]interface{}, v.NumField())
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			out[field.Name] = sanitizeValue(v.Field(i), redact || sensitiveFieldPattern.MatchString(field.Name))
		}
		return out

	case reflect.String:
		if redact {
			return redactedPlaceholder
		}
		return v.String()

	default:
		if redact {
			return redactedPlaceholder
		}
		return v.Interface()
	}
}
