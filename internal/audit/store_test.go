package audit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaydock/mcpgate/internal/audit"
)

func openStore(t *testing.T) *audit.Store {
	t.Helper()
	s, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i, e := range []audit.Entry{
		{Server: "weather", Tool: "get_weather", SessionID: "s1", Outcome: audit.OutcomeOK, DurationMS: 120},
		{Server: "weather", Tool: "get_weather", Outcome: audit.OutcomeProtocol, Detail: "unknown tool", DurationMS: 15},
		{Server: "notes", Tool: "search", Outcome: audit.OutcomeTransport, Detail: "status 502", DurationMS: 8},
	} {
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Server != "notes" || entries[0].Outcome != audit.OutcomeTransport {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[2].Outcome != audit.OutcomeOK || entries[2].SessionID != "s1" {
		t.Errorf("entries[2] = %+v", entries[2])
	}
	if entries[0].ID == "" {
		t.Error("ID not filled in")
	}
}

func TestRecentLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := audit.Entry{
			Server:    "echo",
			Tool:      "ping",
			Outcome:   audit.OutcomeOK,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len = %d, want 2", len(entries))
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s1, err := audit.Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.Record(context.Background(), audit.Entry{Server: "a", Tool: "b", Outcome: audit.OutcomeOK}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s1.Close()

	// Reopening must not re-run migrations against existing tables.
	s2, err := audit.Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()
	entries, err := s2.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len = %d, want 1", len(entries))
	}
}
