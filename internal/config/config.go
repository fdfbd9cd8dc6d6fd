// Package config loads the static servers file and resolves server names to
// upstream endpoints.
//
// The file maps server names to HTTP endpoints:
//
//	mcpServers:
//	  weather:
//	    url: https://weather.example.com/mcp
//	    type: http
//	    headers:
//	      Authorization: Bearer abc123
//
// Both YAML and JSON documents are accepted (chosen by file extension). The
// raw document is validated against an embedded JSON Schema before decoding,
// so malformed files fail at startup with a precise message rather than at
// first request. The registry is read-only after Load; there is no dynamic
// reload.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Resolve for a server name that is not configured.
var ErrNotFound = errors.New("config: server not found")

// ErrInvalidConfig is returned by Resolve when the named entry cannot be used
// as an HTTP endpoint (wrong type, missing or non-HTTP URL).
var ErrInvalidConfig = errors.New("config: invalid server entry")

//go:embed schema.json
var schemaJSON string

// ServerEndpoint is a resolved upstream endpoint. Immutable once returned;
// clients only read Headers into outgoing requests.
type ServerEndpoint struct {
	URL     string
	Headers map[string]string
}

// serverEntry mirrors one entry of the servers file.
type serverEntry struct {
	URL     string            `json:"url" yaml:"url"`
	Type    string            `json:"type" yaml:"type"`
	Headers map[string]string `json:"headers" yaml:"headers"`
}

// document mirrors the servers file as a whole.
type document struct {
	MCPServers map[string]serverEntry `json:"mcpServers" yaml:"mcpServers"`
}

// Registry holds the loaded server mapping.
type Registry struct {
	servers map[string]serverEntry
}

// Load reads, schema-validates, and decodes the servers file at path.
// Files ending in .yaml or .yml are decoded as YAML, anything else as JSON.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parse(raw, yaml.Unmarshal)
	default:
		return parse(raw, json.Unmarshal)
	}
}

// parse validates the raw document against the embedded schema, then decodes
// it into a Registry.
func parse(raw []byte, unmarshal func([]byte, any) error) (*Registry, error) {
	var generic any
	if err := unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("config: parse servers file: %w", err)
	}

	schema, err := jsonschema.CompileString("servers.schema.json", schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("config: compile schema: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("config: servers file rejected by schema: %w", err)
	}

	var doc document
	if err := unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: decode servers file: %w", err)
	}
	return &Registry{servers: doc.MCPServers}, nil
}

// Names returns the configured server names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a server name to its endpoint. It fails with ErrNotFound for
// an unknown name and ErrInvalidConfig when the entry is not an HTTP endpoint
// or lacks a usable URL. An empty type is treated as "http".
func (r *Registry) Resolve(name string) (ServerEndpoint, error) {
	entry, ok := r.servers[name]
	if !ok {
		return ServerEndpoint{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if entry.Type != "" && entry.Type != "http" {
		return ServerEndpoint{}, fmt.Errorf("%w: %q has type %q, only \"http\" is supported", ErrInvalidConfig, name, entry.Type)
	}
	if entry.URL == "" {
		return ServerEndpoint{}, fmt.Errorf("%w: %q has no url", ErrInvalidConfig, name)
	}
	u, err := url.Parse(entry.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ServerEndpoint{}, fmt.Errorf("%w: %q has non-HTTP url %q", ErrInvalidConfig, name, entry.URL)
	}
	return ServerEndpoint{URL: entry.URL, Headers: entry.Headers}, nil
}
