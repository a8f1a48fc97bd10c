package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidInterval = errors.New("invalid candle interval")
	ErrMissingAPIKey   = errors.New("missing upstream api key")
)

// UpstreamError is a non-2xx, non-429 response from the upstream data API.
type UpstreamError struct {
	Path       string
	Status     int
	StatusText string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s %d: %s", e.Path, e.Status, e.StatusText)
}

// TransportError is a network-level failure (DNS, dial, timeout, reset)
// before any HTTP status was received.
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsUpstreamFailure reports whether err is one of the three failure kinds the
// upstream client surfaces.
func IsUpstreamFailure(err error) bool {
	var ue *UpstreamError
	var te *TransportError
	return errors.Is(err, ErrRateLimited) || errors.As(err, &ue) || errors.As(err, &te)
}
