// Package mcp implements a JSON-RPC 2.0 client for the Model Context Protocol
// over HTTP, where a server may answer a single request either with a plain
// JSON document or with a Server-Sent-Events stream that is reduced to one
// logical result.
//
// A Client is constructed fresh for each logical upstream interaction and is
// never shared: it owns the session identity (captured from the
// mcp-session-id response header during the initialize handshake) and a
// monotonically increasing request id counter.
package mcp

import "encoding/json"

// ProtocolVersion is the MCP protocol revision sent in every initialize
// request.
const ProtocolVersion = "2025-03-26"

// Wire header names. The session header is read case-insensitively from
// responses and sent exact-case on requests.
const (
	sessionHeader = "Mcp-Session-Id"
)

// Request is an outbound JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Notification is an outbound JSON-RPC 2.0 notification: a request without an
// id, for which no response is awaited.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an inbound JSON-RPC 2.0 response envelope. Result is kept raw
// so that a present-but-null result is distinguishable from an absent one.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is the error member of a JSON-RPC 2.0 response.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// initializeParams is the fixed parameter block for the initialize call.
type initializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    struct{}   `json:"capabilities"`
	ClientInfo      clientInfo `json:"clientInfo"`
}

// clientInfo identifies this gateway to the upstream server.
type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// listToolsParams is the parameter block for tools/list. Cursor is omitted
// when empty so a first page request sends {}.
type listToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// callToolParams is the parameter block for tools/call.
type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}
