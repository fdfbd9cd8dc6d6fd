// Package gateway implements the REST surface of mcpgate.
//
// Each inbound call constructs a fresh protocol client for the target server,
// relays session identity between the caller and the upstream, and maps the
// client's error taxonomy onto HTTP status codes. The gateway holds no
// protocol state of its own.
//
// Endpoints:
//
//	GET  /health                                     → liveness + version
//	GET  /api/list-servers                           → configured server names
//	POST /api/mcp/{server}/initialize                → MCP handshake
//	GET  /api/mcp/{server}/tools?cursor&init&sessionId
//	POST /api/mcp/{server}/tools/{tool}/execute?init&sessionId
//	GET  /api/audit?limit                            → recent tool invocations
//
// Session identity: callers may supply a session id via the Mcp-Session-Id
// request header or the sessionId query parameter (header wins). Any session
// id captured from the upstream is relayed back via the Mcp-Session-Id
// response header.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/relaydock/mcpgate/common/redact"
	"github.com/relaydock/mcpgate/common/version"
	"github.com/relaydock/mcpgate/internal/audit"
	"github.com/relaydock/mcpgate/internal/config"
	"github.com/relaydock/mcpgate/internal/mcp"
	"github.com/relaydock/mcpgate/internal/observability"
)

// maxArgsBytes caps the inbound tool-arguments body to prevent memory
// exhaustion from oversized payloads.
const maxArgsBytes = 1 * 1024 * 1024 // 1 MiB

// DefaultUpstreamTimeout bounds one upstream exchange (including SSE
// aggregation) when the caller does not configure one.
const DefaultUpstreamTimeout = 30 * time.Second

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// UpstreamTimeout bounds each upstream call. Zero means
	// DefaultUpstreamTimeout.
	UpstreamTimeout time.Duration
	// Audit, when non-nil, receives a record of every tool execution.
	Audit *audit.Store
	// AllowedOrigins configures CORS. Empty means same-origin only is not
	// enforced ("*").
	AllowedOrigins []string
}

// Server is the gateway HTTP server.
type Server struct {
	registry        *config.Registry
	auditStore      *audit.Store
	upstreamTimeout time.Duration
	addr            string
	handler         http.Handler
	server          *http.Server
}

// New creates a gateway Server over the given server registry.
func New(registry *config.Registry, opts Options) *Server {
	timeout := opts.UpstreamTimeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	s := &Server{
		registry:        registry,
		auditStore:      opts.Audit,
		upstreamTimeout: timeout,
		addr:            opts.Addr,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/list-servers", s.handleListServers)
	mux.HandleFunc("POST /api/mcp/{server}/initialize", s.handleInitialize)
	mux.HandleFunc("GET /api/mcp/{server}/tools", s.handleListTools)
	mux.HandleFunc("POST /api/mcp/{server}/tools/{tool}/execute", s.handleExecute)
	mux.HandleFunc("GET /api/audit", s.handleAudit)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Mcp-Session-Id"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
	})

	// Trace wraps recovery so a recovered panic is still logged with its
	// trace id and shows up in the request log.
	s.handler = traceMiddleware(recoverMiddleware(corsHandler.Handler(mux)))
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE aggregation upstream can legitimately take a while
	}
	return s
}

// Handler exposes the fully wrapped HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening. It returns once the listener is bound so callers
// can immediately start sending requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", s.addr, err)
	}
	slog.Info("gateway listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("gateway server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"servers": s.registry.Names()})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	client, _, err := s.clientFor(r)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.upstreamTimeout)
	defer cancel()

	result, err := client.Initialize(ctx)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	relaySession(w, client)
	writeRawJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	client, _, err := s.clientFor(r)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.upstreamTimeout)
	defer cancel()

	if wantsInit(r) {
		if _, err := client.Initialize(ctx); err != nil {
			s.writeError(r.Context(), w, err)
			return
		}
	}
	result, err := client.ListTools(ctx, r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	relaySession(w, client)
	writeRawJSON(w, http.StatusOK, result)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	serverName := r.PathValue("server")
	toolName := r.PathValue("tool")

	client, endpoint, err := s.clientFor(r)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	args, err := io.ReadAll(io.LimitReader(r.Body, maxArgsBytes))
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}
	if len(args) == 0 {
		args = []byte(`{}`)
	}
	if !json.Valid(args) {
		writeErrorBody(w, http.StatusBadRequest, "bad_request", "tool arguments must be valid JSON")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.upstreamTimeout)
	defer cancel()

	if wantsInit(r) {
		if _, err := client.Initialize(ctx); err != nil {
			s.writeError(r.Context(), w, err)
			return
		}
	}

	start := time.Now()
	result, err := client.CallTool(ctx, toolName, args)
	s.recordCall(serverName, toolName, client.SessionID(), start, err, headerValues(endpoint.Headers))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	relaySession(w, client)
	writeRawJSON(w, http.StatusOK, result)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeErrorBody(w, http.StatusServiceUnavailable, "audit_disabled", "audit log is not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	entries, err := s.auditStore.Recent(r.Context(), limit)
	if err != nil {
		observability.WithTrace(r.Context()).Error("audit query failed", "err", err)
		writeErrorBody(w, http.StatusInternalServerError, "internal", "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toAuditView(entries)})
}

// --- plumbing ---

// clientFor resolves the target server from the request path and builds a
// fresh protocol client, seeding it with any caller-supplied session id.
// The header wins over the query parameter.
func (s *Server) clientFor(r *http.Request) (*mcp.Client, config.ServerEndpoint, error) {
	name := r.PathValue("server")
	endpoint, err := s.registry.Resolve(name)
	if err != nil {
		return nil, config.ServerEndpoint{}, err
	}
	observability.WithTrace(r.Context()).Debug("resolved upstream",
		"server", name,
		"url", endpoint.URL,
		"headers", redact.Headers(endpoint.Headers),
	)
	opts := []mcp.Option{mcp.WithHeaders(endpoint.Headers)}
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("sessionId")
	}
	if sessionID != "" {
		opts = append(opts, mcp.WithSessionID(sessionID))
	}
	return mcp.NewClient(endpoint.URL, opts...), endpoint, nil
}

// wantsInit reports whether the caller asked for an initialize handshake
// before the main operation.
func wantsInit(r *http.Request) bool {
	return r.URL.Query().Get("init") == "true"
}

// relaySession copies a captured upstream session id to the response so the
// caller can continue the session on a later request.
func relaySession(w http.ResponseWriter, client *mcp.Client) {
	if sid := client.SessionID(); sid != "" {
		w.Header().Set("Mcp-Session-Id", sid)
	}
}

// headerValues collects the configured header values so error text can be
// scrubbed of them before it is persisted.
func headerValues(h map[string]string) []string {
	values := make([]string, 0, len(h))
	for _, v := range h {
		values = append(values, v)
	}
	return values
}

// recordCall writes one audit entry asynchronously. Failures are logged and
// never affect the caller's response. Configured header values are redacted
// from the persisted detail since upstream error bodies can echo credentials.
func (s *Server) recordCall(server, tool, sessionID string, start time.Time, callErr error, secrets []string) {
	if s.auditStore == nil {
		return
	}
	entry := audit.Entry{
		Server:     server,
		Tool:       tool,
		SessionID:  sessionID,
		Outcome:    audit.OutcomeOK,
		DurationMS: time.Since(start).Milliseconds(),
	}
	switch {
	case callErr == nil:
	default:
		if _, ok := mcp.AsProtocol(callErr); ok {
			entry.Outcome = audit.OutcomeProtocol
		} else {
			entry.Outcome = audit.OutcomeTransport
		}
		entry.Detail = redact.String(callErr.Error(), secrets...)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.auditStore.Record(ctx, entry); err != nil {
			slog.Warn("audit record failed", "server", server, "tool", tool, "err", err)
		}
	}()
}

// writeError maps the error taxonomy onto HTTP statuses. Only a short kind
// and message leave the process; stack detail stays in the logs.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	log := observability.WithTrace(ctx)
	switch {
	case errors.Is(err, config.ErrNotFound):
		writeErrorBody(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, config.ErrInvalidConfig):
		log.Error("invalid server configuration", "err", err)
		writeErrorBody(w, http.StatusInternalServerError, "invalid_config", err.Error())
	default:
		if te, ok := mcp.AsTransport(err); ok {
			if te.Status == http.StatusUnauthorized || te.Status == http.StatusForbidden {
				writeErrorBody(w, http.StatusUnauthorized, "upstream_auth", err.Error())
				return
			}
			log.Warn("upstream transport failure", "err", err)
			writeErrorBody(w, http.StatusInternalServerError, "transport_error", err.Error())
			return
		}
		if _, ok := mcp.AsProtocol(err); ok {
			writeErrorBody(w, http.StatusInternalServerError, "protocol_error", err.Error())
			return
		}
		log.Error("unexpected error", "err", err)
		writeErrorBody(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// auditView is the JSON shape of one audit entry.
type auditView struct {
	ID         string `json:"id"`
	Server     string `json:"server"`
	Tool       string `json:"tool"`
	SessionID  string `json:"sessionId,omitempty"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"durationMs"`
	CreatedAt  string `json:"createdAt"`
}

func toAuditView(entries []audit.Entry) []auditView {
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditView{
			ID:         e.ID,
			Server:     e.Server,
			Tool:       e.Tool,
			SessionID:  e.SessionID,
			Outcome:    e.Outcome,
			Detail:     e.Detail,
			DurationMS: e.DurationMS,
			CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeRawJSON relays an already-encoded JSON value. A nil raw value is the
// JSON null.
func writeRawJSON(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(raw) == 0 {
		w.Write([]byte("null"))
		return
	}
	w.Write(raw)
}

func writeErrorBody(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"kind": kind, "message": msg},
	})
}
