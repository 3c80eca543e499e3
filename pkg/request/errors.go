package request

import (
	"errors"
	"fmt"
)

// Common errors returned by the dispatcher.
var (
	// ErrIgnored is returned when an identical request is already in flight
	// under the Ignore policy. It is a control-flow signal, not a failure.
	ErrIgnored = errors.New("request: duplicate request ignored")

	// ErrAborted is the cancellation cause of a request superseded under the
	// Abort policy or whose mask scope was closed.
	ErrAborted = errors.New("request: aborted")

	// ErrNilRequest is returned by Dispatch for a nil request.
	ErrNilRequest = errors.New("request: nil request")
)

// BusinessError is a transported response whose result code is not a success code.
type BusinessError struct {
	Envelope *Envelope
	Message  string
}

// Error implements the error interface.
func (e *BusinessError) Error() string {
	return fmt.Sprintf("business error (code %s): %s", e.Envelope.Header.Code, e.Message)
}

// Code returns the envelope result code.
func (e *BusinessError) Code() Code {
	return e.Envelope.Header.Code
}

// TransportError is a request that did not complete normally: a non-2xx
// status, a network failure, an undecodable body or a cancellation.
type TransportError struct {
	URL        string
	StatusCode int

	// Envelope is synthesized from the response when a response was received.
	Envelope *Envelope
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Envelope != nil:
		return fmt.Sprintf("transport error (status %d) %s: %s", e.StatusCode, e.URL, e.Envelope.Header.Message)
	case e.Err != nil:
		return fmt.Sprintf("transport error %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("transport error (status %d) %s", e.StatusCode, e.URL)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsIgnored reports whether err is the duplicate-ignore signal.
func IsIgnored(err error) bool {
	return errors.Is(err, ErrIgnored)
}

// IsAborted reports whether err comes from a superseded or scope-cancelled request.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}
