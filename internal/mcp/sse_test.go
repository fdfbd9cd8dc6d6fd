package mcp

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkReader yields the underlying data in fixed-size chunks so tests can
// exercise arbitrary line splits across read boundaries.
type chunkReader struct {
	data []byte
	size int
	off  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := r.size
	if n > len(p) {
		n = len(p)
	}
	if rem := len(r.data) - r.off; n > rem {
		n = rem
	}
	copy(p, r.data[r.off:r.off+n])
	r.off += n
	return n, nil
}

func TestAggregateSSE_LastResultWins_AnyChunking(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"jsonrpc":"2.0","id":1,"result":{"step":1}}`,
		`data: {"jsonrpc":"2.0","id":1,"result":{"step":2}}`,
		`data: {"jsonrpc":"2.0","id":1,"result":{"tools":[{"name":"get_weather"}]}}`,
		``,
	}, "\n")

	for _, size := range []int{1, 2, 3, 7, 16, 64, 4096} {
		r := &chunkReader{data: []byte(stream), size: size}
		result, err := aggregateSSE(context.Background(), r, "tools/list")
		if err != nil {
			t.Fatalf("chunk size %d: %v", size, err)
		}
		if got := string(result); got != `{"tools":[{"name":"get_weather"}]}` {
			t.Errorf("chunk size %d: result = %s", size, got)
		}
	}
}

func TestAggregateSSE_NoEventsIsTransportError(t *testing.T) {
	for _, stream := range []string{
		"",
		": keep-alive\n\n: keep-alive\n\n",
		"event: endpoint\ndata: /mcp?session_id=abc\n\n",
		"data: not json at all\n\n",
		`data: {"result":{"ok":true}}` + "\n\n", // missing jsonrpc marker
	} {
		_, err := aggregateSSE(context.Background(), strings.NewReader(stream), "tools/call")
		var te *TransportError
		if !errors.As(err, &te) {
			t.Errorf("stream %q: got %v, want TransportError", stream, err)
			continue
		}
		if !errors.Is(err, errNoData) {
			t.Errorf("stream %q: cause = %v, want errNoData", stream, te.Err)
		}
	}
}

func TestAggregateSSE_LaterErrorOverridesResult(t *testing.T) {
	stream := `data: {"jsonrpc":"2.0","id":2,"result":{"ok":true}}` + "\n" +
		`data: {"jsonrpc":"2.0","id":2,"error":{"code":-32000,"message":"boom"}}` + "\n"

	_, err := aggregateSSE(context.Background(), strings.NewReader(stream), "tools/call")
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want ProtocolError", err)
	}
	if pe.Message != "boom" {
		t.Errorf("message = %q, want %q", pe.Message, "boom")
	}
}

func TestAggregateSSE_ErrorStopsReading(t *testing.T) {
	first := `data: {"jsonrpc":"2.0","id":1,"error":{"code":1,"message":"halt"}}` + "\n"
	r := &haltReader{t: t, first: []byte(first)}

	_, err := aggregateSSE(context.Background(), r, "initialize")
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want ProtocolError", err)
	}
}

// haltReader fails the test when read again after its first chunk.
type haltReader struct {
	t     *testing.T
	first []byte
	calls int
}

func (r *haltReader) Read(p []byte) (int, error) {
	r.calls++
	if r.calls > 1 {
		r.t.Error("stream read past a decisive error event")
		return 0, io.EOF
	}
	return copy(p, r.first), nil
}

func TestAggregateSSE_InterleavedNoiseSkipped(t *testing.T) {
	stream := ": comment line\n" +
		"event: progress\n" +
		"data: 42% done\n" +
		"\n" +
		"data:\n" +
		`data:  {"jsonrpc":"2.0","id":3,"result":{"done":true}}` + "\r\n" +
		"\n"

	result, err := aggregateSSE(context.Background(), strings.NewReader(stream), "tools/call")
	if err != nil {
		t.Fatalf("aggregateSSE: %v", err)
	}
	if got := string(result); got != `{"done":true}` {
		t.Errorf("result = %s", got)
	}
}

func TestAggregateSSE_NullResultIsRetained(t *testing.T) {
	stream := `data: {"jsonrpc":"2.0","id":4,"result":null}` + "\n"

	result, err := aggregateSSE(context.Background(), strings.NewReader(stream), "tools/call")
	if err != nil {
		t.Fatalf("aggregateSSE: %v", err)
	}
	if got := string(result); got != "null" {
		t.Errorf("result = %q, want explicit null", got)
	}
}

func TestAggregateSSE_FinalLineWithoutNewline(t *testing.T) {
	stream := `data: {"jsonrpc":"2.0","id":5,"result":{"ok":true}}` // no trailing \n

	result, err := aggregateSSE(context.Background(), strings.NewReader(stream), "tools/call")
	if err != nil {
		t.Fatalf("aggregateSSE: %v", err)
	}
	if got := string(result); got != `{"ok":true}` {
		t.Errorf("result = %s", got)
	}
}

func TestAggregateSSE_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := aggregateSSE(ctx, strings.NewReader("data: x\n"), "tools/call")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cause = %v, want context.Canceled", te.Err)
	}
}
