package opensky

import (
	"errors"
	"fmt"
)

// TransportError reports a fetch that failed before a usable body arrived:
// connection, DNS and timeout failures, or a non-2xx status.
type TransportError struct {
	// Op describes the failed step, e.g. "request" or "read body".
	Op string

	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int

	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("opensky transport: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("opensky transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a response body whose top-level shape is unusable.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("opensky decode: %s: %v", e.Reason, e.Err)
	}
	return "opensky decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrStatus is wrapped by TransportError for non-2xx responses.
var ErrStatus = errors.New("unexpected http status")

// IsTransport reports whether err is or wraps a [TransportError].
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDecode reports whether err is or wraps a [DecodeError].
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
