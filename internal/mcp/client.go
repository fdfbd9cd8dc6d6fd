package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/relaydock/mcpgate/common/trace"
	"github.com/relaydock/mcpgate/common/version"
)

// JSON-RPC method names defined by MCP.
const (
	methodInitialize  = "initialize"
	methodToolsList   = "tools/list"
	methodToolsCall   = "tools/call"
	methodInitialized = "notifications/initialized"
)

// maxResponseBytes caps how much of an upstream JSON body is read, preventing
// memory exhaustion from a misbehaving server.
const maxResponseBytes = 4 * 1024 * 1024 // 4 MiB

// maxErrorBodyBytes caps the diagnostic body snippet attached to a
// TransportError for a non-success status.
const maxErrorBodyBytes = 512

// Client is a JSON-RPC 2.0 client bound to one upstream MCP endpoint.
//
// A Client owns its session state exclusively: construct a fresh one per
// logical interaction and discard it afterwards. It is not safe for
// concurrent use; calls within one client are strictly sequential.
type Client struct {
	url        string
	headers    map[string]string
	sessionID  string
	nextID     int64
	httpClient *http.Client
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHeaders sets the static headers attached to every upstream request.
// They are applied last, so a configured header wins over any default on a
// conflicting name.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) { c.headers = h }
}

// WithSessionID seeds the client with a session id captured during an earlier
// interaction, so a caller can continue a server-side session across gateway
// requests.
func WithSessionID(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client targeting the given endpoint URL. The client
// performs no I/O until one of its methods is called.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		nextID:     1,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the session id captured during Initialize, the seeded id,
// or "" when the server issued none.
func (c *Client) SessionID() string { return c.sessionID }

// Initialize performs the MCP handshake: it sends the initialize request,
// captures the session id from the mcp-session-id response header when the
// server issues one, and on success sends the notifications/initialized
// notification. The notification is fire-and-forget: a failure there is
// logged and never surfaced to the caller.
func (c *Client) Initialize(ctx context.Context) (json.RawMessage, error) {
	params := initializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      clientInfo{Name: "mcpgate", Version: version.Version},
	}
	resp, err := c.roundTrip(ctx, methodInitialize, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Session identity is transport metadata, not part of the JSON-RPC
	// payload. Header lookup is case-insensitive.
	if sid := resp.Header.Get(sessionHeader); sid != "" {
		c.sessionID = sid
	}

	result, err := c.decode(ctx, methodInitialize, resp)
	if err != nil {
		return nil, err
	}

	if err := c.notify(ctx, methodInitialized, nil); err != nil {
		slog.Warn("mcp: initialized notification failed", "url", c.url, "err", err)
	}
	return result, nil
}

// ListTools sends tools/list with the given pagination cursor ("" requests
// the first page) and returns the raw result member. The tool list shape is
// opaque pass-through; the client does not validate it.
func (c *Client) ListTools(ctx context.Context, cursor string) (json.RawMessage, error) {
	return c.call(ctx, methodToolsList, listToolsParams{Cursor: cursor})
}

// CallTool invokes the named tool with the given JSON arguments and returns
// the raw result member. An MCP error-within-result (the isError field) is
// opaque payload, not a protocol error; only a JSON-RPC error member fails
// the call.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return c.call(ctx, methodToolsCall, callToolParams{Name: name, Arguments: args})
}

// call is the shared request/response path for post-handshake methods.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	resp, err := c.roundTrip(ctx, method, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return c.decode(ctx, method, resp)
}

// roundTrip builds and sends one JSON-RPC request, consuming the next request
// id. Network failures surface as TransportError; no retries happen here.
func (c *Client) roundTrip(ctx context.Context, method string, params any) (*http.Response, error) {
	id := c.nextID
	c.nextID++

	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, &TransportError{Method: method, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Err: err}
	}
	return resp, nil
}

// notify sends a JSON-RPC notification. No response is awaited or required;
// the body is drained and discarded.
func (c *Client) notify(ctx context.Context, method string, params any) error {
	body, err := json.Marshal(Notification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := c.newRequest(ctx, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return nil
}

// newRequest assembles the outgoing POST with the header precedence the
// gateway guarantees: defaults first, then the session header when a session
// has been established, then the configured static headers, which win on any
// conflicting name.
func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName, traceID)
	}
	if c.sessionID != "" {
		req.Header.Set(sessionHeader, c.sessionID)
	}
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}
	return req, nil
}

// decode turns an upstream HTTP response into a JSON-RPC result. An
// event-stream body is aggregated regardless of status; anything else must be
// a 2xx single JSON document whose envelope carries no error member.
func (c *Client) decode(ctx context.Context, method string, resp *http.Response) (json.RawMessage, error) {
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return aggregateSSE(ctx, resp.Body, method)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &TransportError{
			Method: method,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Method: method, Err: fmt.Errorf("read body: %w", err)}
	}
	var envelope Response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &TransportError{Method: method, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if envelope.Error != nil {
		return nil, &ProtocolError{Method: method, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	return envelope.Result, nil
}
