package domain

import "errors"

var (
	// ErrStoreUnavailable wraps any registry store failure (network, timeout, open circuit).
	ErrStoreUnavailable = errors.New("registry store unavailable")
	// ErrTransientDelivery marks a delivery failure that does not prove the connection is gone.
	ErrTransientDelivery = errors.New("transient delivery failure")
	// ErrMalformedInput marks trigger input that cannot be parsed into the expected shape.
	ErrMalformedInput = errors.New("malformed input")
)
