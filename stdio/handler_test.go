package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ggoodman/mcp-website-fetcher/fetch"
	"github.com/ggoodman/mcp-website-fetcher/internal/jsonrpc"
	"github.com/ggoodman/mcp-website-fetcher/mcp"
	"github.com/ggoodman/mcp-website-fetcher/mcpservice"
)

// testHarness encapsulates pipes and collected output for stdio handler tests.
type testHarness struct {
	t       *testing.T
	stdinW  io.WriteCloser
	stdoutR *bufio.Scanner
	outMu   sync.Mutex
	lines   []string
	done    chan error
}

func newServer(t *testing.T) *mcpservice.Server {
	t.Helper()
	reg, err := mcpservice.NewRegistry(mcpservice.NewFetchTool(fetch.New()))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return mcpservice.NewServer(reg, mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "mcp-website-fetcher", Version: "test"}))
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	h := NewHandler(newServer(t), WithIO(inR, outW), WithLogger(slog.Default()))

	ctx, cancel := context.WithCancel(context.Background())
	th := &testHarness{t: t, stdinW: inW, stdoutR: bufio.NewScanner(outR), done: make(chan error, 1)}

	go func() {
		th.done <- h.Serve(ctx)
	}()

	go func() {
		for th.stdoutR.Scan() {
			line := strings.TrimSpace(th.stdoutR.Text())
			th.outMu.Lock()
			th.lines = append(th.lines, line)
			th.outMu.Unlock()
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = inW.Close()
		_ = outW.Close()
	})
	return th
}

func (th *testHarness) sendRaw(s string) {
	th.t.Helper()
	if _, err := th.stdinW.Write([]byte(s + "\n")); err != nil {
		th.t.Fatalf("write stdin: %v", err)
	}
}

func (th *testHarness) send(req *jsonrpc.Request) {
	th.t.Helper()
	b, err := json.Marshal(req)
	if err != nil {
		th.t.Fatalf("marshal request: %v", err)
	}
	th.sendRaw(string(b))
}

func (th *testHarness) nextLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		th.outMu.Lock()
		if len(th.lines) > 0 {
			s := th.lines[0]
			th.lines = th.lines[1:]
			th.outMu.Unlock()
			return s, nil
		}
		th.outMu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	return "", fmt.Errorf("timeout waiting for output line")
}

func (th *testHarness) expectResponse() *jsonrpc.Response {
	th.t.Helper()
	line, err := th.nextLine(5 * time.Second)
	if err != nil {
		th.t.Fatalf("%v", err)
	}
	var any jsonrpc.AnyMessage
	if err := json.Unmarshal([]byte(line), &any); err != nil {
		th.t.Fatalf("decode %q: %v", line, err)
	}
	if any.Type() != "response" {
		th.t.Fatalf("expected response, got %s", any.Type())
	}
	return any.AsResponse()
}

func (th *testHarness) initialize() {
	th.t.Helper()
	req, err := jsonrpc.NewRequest(jsonrpc.NewRequestID(0), string(mcp.InitializeMethod), mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ClientInfo:      mcp.ImplementationInfo{Name: "client", Version: "0.0.1"},
	})
	if err != nil {
		th.t.Fatalf("build initialize: %v", err)
	}
	th.send(req)
	res := th.expectResponse()
	if res.Error != nil {
		th.t.Fatalf("initialize failed: %+v", res.Error)
	}
	note, _ := jsonrpc.NewRequest(nil, string(mcp.InitializedNotificationMethod), nil)
	th.send(note)
}

func (th *testHarness) callFetch(id int, url string) *jsonrpc.Response {
	th.t.Helper()
	req, err := jsonrpc.NewRequest(jsonrpc.NewRequestID(id), string(mcp.ToolsCallMethod), map[string]any{
		"name":      "fetch",
		"arguments": map[string]any{"url": url},
	})
	if err != nil {
		th.t.Fatalf("build call: %v", err)
	}
	th.send(req)
	return th.expectResponse()
}

func TestInitializeListAndCall(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":1}`))
	}))
	t.Cleanup(target.Close)

	th := newHarness(t)
	th.initialize()

	list, _ := jsonrpc.NewRequest(jsonrpc.NewRequestID(1), string(mcp.ToolsListMethod), nil)
	th.send(list)
	res := th.expectResponse()
	var tools mcp.ListToolsResult
	if err := json.Unmarshal(res.Result, &tools); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != "fetch" {
		t.Fatalf("unexpected tools %+v", tools.Tools)
	}

	res = th.callFetch(2, target.URL)
	var got mcp.CallToolResult
	if err := json.Unmarshal(res.Result, &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(got.Content) != 1 || got.Content[0].Type != mcp.ContentTypeResource {
		t.Fatalf("unexpected content %+v", got.Content)
	}
	var data any
	if err := json.Unmarshal([]byte(got.Content[0].Resource.Text), &data); err != nil {
		t.Fatalf("decode embedded json: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"a": 1.0}, data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPErrorBecomesText(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(target.Close)

	th := newHarness(t)
	th.initialize()

	res := th.callFetch(1, target.URL)
	var got mcp.CallToolResult
	if err := json.Unmarshal(res.Result, &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(got.Content) != 1 || !strings.Contains(got.Content[0].Text, "404") {
		t.Fatalf("expected text mentioning 404, got %+v", got.Content)
	}
}

func TestInvalidJSONLineGetsParseError(t *testing.T) {
	th := newHarness(t)
	th.sendRaw(`this is not json`)

	res := th.expectResponse()
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeParseError {
		t.Fatalf("expected parse error, got %+v", res)
	}

	ping, _ := jsonrpc.NewRequest(jsonrpc.NewRequestID(2), string(mcp.PingMethod), nil)
	th.send(ping)
	if res := th.expectResponse(); res.Error != nil || res.ID.String() != "2" {
		t.Fatalf("expected ping result, got %+v", res)
	}
}

func TestBlankLinesAreSkipped(t *testing.T) {
	th := newHarness(t)
	th.sendRaw("")
	th.sendRaw("   ")
	th.sendRaw(`{"jsonrpc":"2.0","id":"p","method":"ping"}`)
	if res := th.expectResponse(); res.ID.String() != "p" {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestServeReturnsNilOnEOF(t *testing.T) {
	th := newHarness(t)
	th.initialize()
	_ = th.stdinW.Close()

	select {
	case err := <-th.done:
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after EOF")
	}
}

func TestServeWithBufferedInput(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"fetch","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"nope","arguments":{"url":"http://x"}}}`,
	}, "\n"))
	var out bytes.Buffer

	h := NewHandler(newServer(t), WithReader(in), WithWriter(&out))
	if err := h.Serve(context.Background()); err != nil {
		t.Fatalf("serve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 responses, got %d: %q", len(lines), out.String())
	}
	want := []string{
		`{"jsonrpc":"2.0","result":{},"id":1}`,
		`{"jsonrpc":"2.0","error":{"code":-32602,"message":"Missing required argument 'url'"},"id":2}`,
		`{"jsonrpc":"2.0","error":{"code":-32602,"message":"Unknown tool: nope"},"id":3}`,
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Fatalf("responses mismatch (-want +got):\n%s", diff)
	}

	if err := h.Serve(context.Background()); err == nil {
		t.Fatalf("expected error on second Serve")
	}
}

func TestOversizedLineEndsSession(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", 256) + `"}}` + "\n")
	var out bytes.Buffer

	h := NewHandler(newServer(t), WithIO(in, &out), WithMaxMessageSize(64))
	if err := h.Serve(context.Background()); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
}
