package mcp

import (
	"errors"
	"fmt"
)

// TransportError reports a failure below the JSON-RPC layer: a network error,
// a non-success HTTP status, or an SSE stream that ended without delivering a
// result. It is never produced for a well-formed JSON-RPC error response.
type TransportError struct {
	// Method is the JSON-RPC method that was being sent, for context.
	Method string
	// Status is the upstream HTTP status code, or 0 when the request never
	// produced a response (connection refused, timeout, ...).
	Status int
	// Body holds a truncated copy of the upstream response body, when one was
	// read, for diagnostics.
	Body string
	// Err is the underlying cause, when any.
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("mcp: %s: %v", e.Method, e.Err)
	case e.Body != "":
		return fmt.Sprintf("mcp: %s: upstream returned %d: %s", e.Method, e.Status, e.Body)
	default:
		return fmt.Sprintf("mcp: %s: upstream returned %d", e.Method, e.Status)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports that the upstream server answered with a JSON-RPC
// error member. This is a normal, expected outcome (an unknown tool, invalid
// arguments) and carries the server-supplied code and message.
type ProtocolError struct {
	Method  string
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mcp: %s: server error %d: %s", e.Method, e.Code, e.Message)
}

// AsTransport returns the TransportError wrapped in err, if any.
func AsTransport(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// AsProtocol returns the ProtocolError wrapped in err, if any.
func AsProtocol(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
