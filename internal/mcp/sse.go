package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
)

// dataPrefix marks SSE lines that carry an event payload. Comment lines,
// event-type lines and keep-alives use other prefixes and are skipped.
var dataPrefix = []byte("data:")

// errNoData is the cause attached to the TransportError returned when an SSE
// stream ends without a single result-bearing JSON-RPC event.
var errNoData = errors.New("no data received")

// sseEvent is the subset of a JSON-RPC envelope the aggregator inspects.
// Result stays raw so that an explicit null result still counts as present.
type sseEvent struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *ResponseError  `json:"error"`
}

// aggregateSSE reduces a Server-Sent-Events byte stream to a single JSON-RPC
// result.
//
// The stream is read incrementally with a carry-over buffer so that lines
// split across arbitrary chunk boundaries are reassembled before parsing.
// Each complete "data:" line is parsed as JSON; lines that do not parse, or
// that are not JSON-RPC 2.0 envelopes, are skipped. An error envelope
// terminates aggregation immediately. A result envelope (including an
// explicit null result) replaces the retained candidate and scanning
// continues, so the last result-bearing event wins over earlier progress
// events. At end of stream the retained result is returned; a stream that
// never produced one fails with a TransportError.
//
// Cancellation is checked between chunk reads; the aggregator itself imposes
// no timeout.
func aggregateSSE(ctx context.Context, r io.Reader, method string) (json.RawMessage, error) {
	var (
		carry  []byte
		result json.RawMessage
		seen   bool
		chunk  = make([]byte, 4096)
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, &TransportError{Method: method, Err: err}
		}

		n, readErr := r.Read(chunk)
		if n > 0 {
			carry = append(carry, chunk[:n]...)
			for {
				idx := bytes.IndexByte(carry, '\n')
				if idx < 0 {
					break
				}
				line := carry[:idx]
				carry = carry[idx+1:]
				if res, ok, err := foldLine(line, method); err != nil {
					return nil, err
				} else if ok {
					result, seen = res, true
				}
			}
		}

		if readErr == io.EOF {
			// A final line without a trailing newline is still a line.
			if res, ok, err := foldLine(carry, method); err != nil {
				return nil, err
			} else if ok {
				result, seen = res, true
			}
			break
		}
		if readErr != nil {
			return nil, &TransportError{Method: method, Err: readErr}
		}
	}

	if !seen {
		return nil, &TransportError{Method: method, Err: errNoData}
	}
	return result, nil
}

// foldLine examines one complete SSE line. It returns the retained result and
// ok=true when the line carries a JSON-RPC result, an error when the line
// carries a JSON-RPC error, and ok=false otherwise.
func foldLine(line []byte, method string) (json.RawMessage, bool, error) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false, nil
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return nil, false, nil
	}

	var evt sseEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		// Streams may interleave comments, keep-alives, and unrelated event
		// payloads; those are not ours to reject.
		return nil, false, nil
	}
	if evt.JSONRPC != "2.0" {
		return nil, false, nil
	}
	if evt.Error != nil {
		return nil, false, &ProtocolError{Method: method, Code: evt.Error.Code, Message: evt.Error.Message}
	}
	if evt.Result != nil {
		return evt.Result, true, nil
	}
	return nil, false, nil
}
