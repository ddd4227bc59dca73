// Package signer computes and checks webhook signatures.
//
// The signature is HMAC-SHA256 over "{unix timestamp}.{body}" keyed with the
// client's shared secret, sent as "sha256=<hex>".
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderID        = "X-Webhook-Id"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"

	scheme = "sha256="

	// DefaultTolerance is how far a receiver accepts the timestamp to drift.
	DefaultTolerance = 5 * time.Minute
)

var (
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrTimestampSkew      = errors.New("timestamp outside tolerance")
)

// Sign returns the signature header value for body sent at ts.
func Sign(secret string, ts int64, body []byte) string {
	return scheme + hex.EncodeToString(digest(secret, ts, body))
}

func digest(secret string, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// Verify checks a received signature header. A zero tolerance skips the
// timestamp check.
func Verify(secret string, ts int64, body []byte, header string, now time.Time, tolerance time.Duration) error {
	hexSig, ok := strings.CutPrefix(strings.TrimSpace(header), scheme)
	if !ok {
		return ErrMalformedSignature
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return ErrMalformedSignature
	}
	if !hmac.Equal(got, digest(secret, ts, body)) {
		return ErrSignatureMismatch
	}
	if tolerance > 0 {
		skew := now.Sub(time.Unix(ts, 0))
		if skew < -tolerance || skew > tolerance {
			return ErrTimestampSkew
		}
	}
	return nil
}

// ParseTimestamp reads the timestamp header.
func ParseTimestamp(header string) (int64, error) {
	ts, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil {
		return 0, ErrMalformedSignature
	}
	return ts, nil
}
