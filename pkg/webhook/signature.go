// Package webhook implements the payment processor's webhook signature
// scheme: an HMAC-SHA256 over the literal string "<timestamp>.<raw body>"
// carried in a header of the form "t=<unix seconds>,v1=<hex hmac>".
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the parsed signature header.
type Header struct {
	Timestamp int64
	Signature string // hex-encoded HMAC-SHA256
}

// String renders the header in wire format.
func (h Header) String() string {
	return fmt.Sprintf("t=%d,v1=%s", h.Timestamp, h.Signature)
}

// Sign computes the signature header for a payload at a given time.
// Intended for tests and for replaying captured events against a local
// endpoint.
func Sign(secret string, payload []byte, at time.Time) Header {
	ts := at.Unix()
	return Header{
		Timestamp: ts,
		Signature: computeSignature(secret, payload, ts),
	}
}

// ParseHeader parses the "t=<ts>,v1=<sig>" wire format. Unknown elements
// are ignored so future scheme versions (v2=...) do not break parsing.
func ParseHeader(raw string) (Header, error) {
	var h Header
	for _, part := range strings.Split(raw, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Header{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedHeader, value)
			}
			h.Timestamp = ts
		case "v1":
			h.Signature = value
		}
	}
	if h.Timestamp == 0 || h.Signature == "" {
		return Header{}, ErrMalformedHeader
	}
	return h, nil
}

// Verify checks payload authenticity against a raw signature header.
// The comparison is constant-time. A positive maxAge bounds the accepted
// timestamp window to limit replay; far-future timestamps are rejected
// beyond a small clock-skew allowance.
func Verify(secret string, payload []byte, rawHeader string, maxAge time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: secret is required", ErrSignatureMismatch)
	}

	header, err := ParseHeader(rawHeader)
	if err != nil {
		return err
	}

	if maxAge > 0 {
		age := time.Since(time.Unix(header.Timestamp, 0))
		if age > maxAge {
			return fmt.Errorf("%w: timestamp outside tolerance (%s old)", ErrTimestampOutOfRange, age)
		}
		if age < -time.Minute {
			return fmt.Errorf("%w: timestamp in the future", ErrTimestampOutOfRange)
		}
	}

	expected := computeSignature(secret, payload, header.Timestamp)
	if !hmac.Equal([]byte(expected), []byte(header.Signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func computeSignature(secret string, payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
