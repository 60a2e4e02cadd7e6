package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sameehj/kai-node/pkg/capability"
)

type fakeInvoker struct {
	requests []capability.Request
}

func (f *fakeInvoker) Invoke(_ context.Context, req capability.Request) capability.Response {
	f.requests = append(f.requests, req)
	return capability.Success(req.ID, map[string]any{"echo": req.Command})
}

func (f *fakeInvoker) Commands() []string   { return []string{"system.run", "system.which"} }
func (f *fakeInvoker) Categories() []string { return []string{"system"} }

func framed(payload string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(payload), payload)
}

func readResponses(t *testing.T, out *bytes.Buffer) []rpcResponse {
	t.Helper()
	c := newCodec(out, io.Discard)
	var resps []rpcResponse
	for {
		msg, err := c.read()
		if err == io.EOF {
			return resps
		}
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		var resp rpcResponse
		if err := json.Unmarshal(msg.payload, &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		resps = append(resps, resp)
	}
}

func TestServeInvokeFramedAndBare(t *testing.T) {
	inv := &fakeInvoker{}
	s := NewServer(inv, nil)

	in := framed(`{"jsonrpc":"2.0","id":1,"method":"node.invoke","params":{"id":"abc","command":"system.run","args":{"command":"echo hi"}}}`) +
		`{"jsonrpc":"2.0","id":2,"method":"node.invoke","params":{"command":"system.which"}}` + "\n"
	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	if !strings.HasPrefix(out.String(), "Content-Length: ") {
		t.Fatalf("framed request should get a framed reply: %q", out.String())
	}
	if !strings.HasSuffix(out.String(), "}\n") {
		t.Fatalf("bare request should get a line reply: %q", out.String())
	}

	resps := readResponses(t, &out)
	if len(resps) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(resps))
	}
	result := resps[0].Result.(map[string]any)
	if result["id"] != "abc" || result["ok"] != true {
		t.Fatalf("unexpected result %+v", result)
	}
	if inv.requests[0].Args["command"] != "echo hi" {
		t.Fatalf("args not forwarded: %+v", inv.requests[0])
	}
	if inv.requests[1].ID == "" {
		t.Fatalf("missing envelope ID should be generated")
	}
}

func TestServeErrors(t *testing.T) {
	s := NewServer(&fakeInvoker{}, nil)
	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"node.reboot"}`,
		`{"jsonrpc":"2.0","id":2}`,
		`{"jsonrpc":"2.0","id":3,"method":"node.invoke"}`,
		`{"jsonrpc":"2.0","id":4,"method":"node.invoke","params":"nope"}`,
		`{"jsonrpc":"2.0","method":"node.commands"}`,
		`{not json`,
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	resps := readResponses(t, &out)
	wantCodes := []int{codeMethodNotFound, codeInvalidRequest, codeInvalidParams, codeInvalidParams}
	if len(resps) != len(wantCodes) {
		t.Fatalf("expected %d responses (notifications get none), got %d", len(wantCodes), len(resps))
	}
	for i, code := range wantCodes {
		if resps[i].Error == nil || resps[i].Error.Code != code {
			t.Errorf("response %d: expected code %d, got %+v", i, code, resps[i].Error)
		}
	}
}

func TestServeCommandsAndInfo(t *testing.T) {
	s := NewServer(&fakeInvoker{}, nil)
	in := `{"jsonrpc":"2.0","id":"a","method":"node.commands"}` + "\n" + `{"jsonrpc":"2.0","id":"b","method":"node.info"}` + "\n"
	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	resps := readResponses(t, &out)
	commands := resps[0].Result.(map[string]any)["commands"].([]any)
	if len(commands) != 2 || commands[0] != "system.run" {
		t.Fatalf("unexpected commands %v", commands)
	}
	info := resps[1].Result.(map[string]any)
	if _, ok := info["version"].(map[string]any); !ok {
		t.Fatalf("expected version info, got %+v", info)
	}
}

func TestServeRejectsBadContentLength(t *testing.T) {
	s := NewServer(&fakeInvoker{}, nil)
	err := s.Serve(context.Background(), strings.NewReader("Content-Length: abc\r\n\r\n{}"), io.Discard)
	if err == nil {
		t.Fatalf("expected framing error")
	}
}

func TestAllowlistAuthorizer(t *testing.T) {
	a := AllowlistAuthorizer{Allowed: []string{"127.0.0.1", "10.0.0.2:4000"}}
	for _, addr := range []string{"127.0.0.1:5555", "10.0.0.2:4000"} {
		if err := a.Allow(context.Background(), addr); err != nil {
			t.Errorf("Allow(%q) = %v", addr, err)
		}
	}
	if err := a.Allow(context.Background(), "10.0.0.2:4001"); err == nil {
		t.Errorf("expected port mismatch to be refused")
	}
	if err := (AllowlistAuthorizer{}).Allow(context.Background(), "1.2.3.4:1"); err != nil {
		t.Errorf("empty allowlist should admit everyone: %v", err)
	}
}

func startListener(t *testing.T, l *Listener) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx, ln) }()
	return ln.Addr().String(), cancel, done
}

func TestListenerServesSessions(t *testing.T) {
	l := NewListener("", NewServer(&fakeInvoker{}, nil), nil)
	addr, cancel, done := startListener(t, l)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, `{"jsonrpc":"2.0","id":1,"method":"node.invoke","params":{"id":"x","command":"system.run"}}`+"\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(line, `"echo":"system.run"`) {
		t.Fatalf("unexpected reply %q", line)
	}
	if sessions := l.Sessions(); len(sessions) != 1 || sessions[0].ID == "" {
		t.Fatalf("expected one tracked session, got %+v", sessions)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("listener did not stop after cancel")
	}
	if len(l.Sessions()) != 0 {
		t.Fatalf("sessions should be closed on shutdown")
	}
}

func TestListenerRefusesUnauthorized(t *testing.T) {
	l := NewListener("", NewServer(&fakeInvoker{}, nil), AllowlistAuthorizer{Allowed: []string{"192.0.2.1"}})
	addr, cancel, done := startListener(t, l)
	defer func() {
		cancel()
		<-done
	}()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := bufio.NewReader(conn).ReadString('\n'); err == nil {
		t.Fatalf("expected refused connection to be closed")
	}
}
