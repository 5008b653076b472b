package webhook

import "errors"

var (
	ErrMalformedHeader     = errors.New("webhook: malformed signature header")
	ErrSignatureMismatch   = errors.New("webhook: signature mismatch")
	ErrTimestampOutOfRange = errors.New("webhook: signature timestamp out of range")
)
