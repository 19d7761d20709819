// Package crypto provides signing and key helpers used by the deployment engine.
// All functions are pure with no I/O.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrEmptySecret is returned when signing is requested without a secret.
	ErrEmptySecret = errors.New("signing secret is empty")

	// ErrSignatureMismatch is returned when a signature does not match the body.
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// =============================================================================
// HMAC-SHA256 Payload Signatures
// =============================================================================

// SignatureHeader carries the hex HMAC-SHA256 of the callback body.
const SignatureHeader = "X-Webhook-Signature"

// Sign returns the lowercase hex HMAC-SHA256 of body keyed with secret.
// The signature covers exactly the bytes given; callers must sign the bytes
// they transmit.
func Sign(secret, body []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks signature against body in constant time.
func Verify(secret, body []byte, signature string) error {
	expected, err := Sign(secret, body)
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureMismatch
	}
	want, _ := hex.DecodeString(expected)
	if !hmac.Equal(want, got) {
		return ErrSignatureMismatch
	}
	return nil
}
