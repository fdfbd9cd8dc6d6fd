package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/relaydock/mcpgate/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "servers.yaml", `
mcpServers:
  weather:
    url: https://weather.example.com/mcp
    type: http
    headers:
      Authorization: Bearer abc123
  echo:
    url: http://localhost:9000/mcp
`)
	reg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "echo" || names[1] != "weather" {
		t.Errorf("Names = %v, want sorted [echo weather]", names)
	}

	ep, err := reg.Resolve("weather")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ep.URL != "https://weather.example.com/mcp" {
		t.Errorf("URL = %q", ep.URL)
	}
	if ep.Headers["Authorization"] != "Bearer abc123" {
		t.Errorf("Headers = %v", ep.Headers)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "servers.json", `{
  "mcpServers": {
    "notes": {"url": "http://notes.internal/mcp", "type": "http"}
  }
}`)
	reg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := reg.Resolve("notes"); err != nil {
		t.Errorf("Resolve: %v", err)
	}
}

func TestLoad_SchemaRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "servers.yaml", `
mcpServers:
  bad:
    url: http://x.example.com
    command: /usr/bin/thing
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected schema validation error for unknown field")
	}
}

func TestLoad_SchemaRejectsMissingServers(t *testing.T) {
	path := writeFile(t, "servers.json", `{"servers": {}}`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected schema validation error for missing mcpServers key")
	}
}

func TestResolve_UnknownName(t *testing.T) {
	path := writeFile(t, "servers.json", `{"mcpServers": {}}`)
	reg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = reg.Resolve("ghost")
	if !errors.Is(err, config.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolve_InvalidEntries(t *testing.T) {
	path := writeFile(t, "servers.yaml", `
mcpServers:
  no-url:
    type: http
  wrong-type:
    url: http://x.example.com
    type: stdio
  bad-scheme:
    url: ftp://files.example.com
`)
	reg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, name := range []string{"no-url", "wrong-type", "bad-scheme"} {
		_, err := reg.Resolve(name)
		if !errors.Is(err, config.ErrInvalidConfig) {
			t.Errorf("Resolve(%q) = %v, want ErrInvalidConfig", name, err)
		}
	}
}

func TestResolve_EmptyTypeDefaultsToHTTP(t *testing.T) {
	path := writeFile(t, "servers.json", `{"mcpServers": {"plain": {"url": "http://plain.example.com/mcp"}}}`)
	reg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := reg.Resolve("plain"); err != nil {
		t.Errorf("Resolve: %v", err)
	}
}
