package exec

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("runner tests use POSIX sh syntax")
	}
}

func newTestRunner() *LocalRunner {
	return &LocalRunner{DrainTimeout: 200 * time.Millisecond}
}

func TestRunEcho(t *testing.T) {
	skipOnWindows(t)
	res, err := newTestRunner().Run(context.Background(), Request{Command: "echo hello", TimeoutMs: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "hello" {
		t.Fatalf("expected trimmed stdout %q, got %q", "hello", res.Stdout)
	}
	if res.ExitCode != 0 || res.TimedOut {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunReportsExitCodeAndStderr(t *testing.T) {
	skipOnWindows(t)
	res, err := newTestRunner().Run(context.Background(), Request{Command: "echo oops 1>&2; exit 3", TimeoutMs: 5000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", res.ExitCode)
	}
	if res.Stderr != "oops" {
		t.Fatalf("expected stderr oops, got %q", res.Stderr)
	}
}

func TestRunAppendsArgs(t *testing.T) {
	skipOnWindows(t)
	res, err := newTestRunner().Run(context.Background(), Request{Command: "echo", Args: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "a b" {
		t.Fatalf("expected %q, got %q", "a b", res.Stdout)
	}
}

func TestRunDirect(t *testing.T) {
	skipOnWindows(t)
	res, err := newTestRunner().Run(context.Background(), Request{
		Command: "sh",
		Args:    []string{"-c", "echo direct $0", "argv0"},
		Shell:   "direct",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "direct argv0" {
		t.Fatalf("expected argv passed untouched, got %q", res.Stdout)
	}
}

func TestRunEnvAndCwd(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	r := newTestRunner()
	r.BaseEnv = map[string]string{"KAI_NODE_BASE": "base", "KAI_NODE_PROBE": "from-base"}
	res, err := r.Run(context.Background(), Request{
		Command: `echo "$KAI_NODE_BASE $KAI_NODE_PROBE"; pwd -P`,
		Cwd:     dir,
		Env:     map[string]string{"KAI_NODE_PROBE": "from-request"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(res.Stdout, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", res.Stdout)
	}
	if lines[0] != "base from-request" {
		t.Fatalf("expected request env to win over base env, got %q", lines[0])
	}
	want, _ := filepath.EvalSymlinks(dir)
	if lines[1] != want {
		t.Fatalf("expected cwd %q, got %q", want, lines[1])
	}
}

func TestRunTimeout(t *testing.T) {
	skipOnWindows(t)
	start := time.Now()
	res, err := newTestRunner().Run(context.Background(), Request{Command: "sleep 10", TimeoutMs: 200})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut || res.ExitCode != -1 {
		t.Fatalf("expected timed out result with exit -1, got %+v", res)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond+2*time.Second {
		t.Fatalf("timeout not honoured, took %v", elapsed)
	}
}

func TestRunTimeoutKeepsPartialOutput(t *testing.T) {
	skipOnWindows(t)
	res, err := newTestRunner().Run(context.Background(), Request{Command: "echo started; sleep 10", TimeoutMs: 300})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("expected timeout")
	}
	if res.Stdout != "started" {
		t.Fatalf("expected output written before the timeout, got %q", res.Stdout)
	}
}

func TestRunDoesNotWaitForOrphanHoldingPipe(t *testing.T) {
	skipOnWindows(t)
	start := time.Now()
	res, err := newTestRunner().Run(context.Background(), Request{
		Command:   "(sleep 5; echo late) & echo early",
		TimeoutMs: 20000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("runner waited for the orphaned child: %v", elapsed)
	}
	if res.TimedOut || res.ExitCode != 0 {
		t.Fatalf("expected clean exit, got %+v", res)
	}
	if res.Stdout != "early" {
		t.Fatalf("expected only output written before exit, got %q", res.Stdout)
	}
}

func TestRunStartFailureIsResult(t *testing.T) {
	skipOnWindows(t)
	res, err := newTestRunner().Run(context.Background(), Request{
		Command: "echo hi",
		Cwd:     filepath.Join(t.TempDir(), "missing"),
	})
	if err != nil {
		t.Fatalf("start failure must be reported as a result, got error %v", err)
	}
	if res.ExitCode != -1 || !strings.HasPrefix(res.Stderr, "Failed to start") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunMissingProgramIsResult(t *testing.T) {
	res, err := newTestRunner().Run(context.Background(), Request{
		Command: "totally_nonexistent_binary_xyz123",
		Shell:   "direct",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != -1 || res.TimedOut {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunCancellation(t *testing.T) {
	skipOnWindows(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	res, err := newTestRunner().Run(ctx, Request{Command: "sleep 10"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got res=%+v err=%v", res, err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("cancellation not honoured, took %v", elapsed)
	}
}

func TestRunRejectsEmptyCommand(t *testing.T) {
	for _, cmd := range []string{"", "   "} {
		if _, err := newTestRunner().Run(context.Background(), Request{Command: cmd}); !errors.Is(err, ErrEmptyCommand) {
			t.Errorf("command %q: expected ErrEmptyCommand, got %v", cmd, err)
		}
	}
}

func TestRunOutputCap(t *testing.T) {
	skipOnWindows(t)
	r := newTestRunner()
	r.MaxOutput = 5
	res, err := r.Run(context.Background(), Request{Command: "printf 1234567890"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(res.Stdout, "12345") || !strings.HasSuffix(res.Stdout, "[output truncated]") {
		t.Fatalf("expected truncated output, got %q", res.Stdout)
	}
}

func TestCaptureBufferLimit(t *testing.T) {
	t.Parallel()
	b := newCaptureBuffer(4)
	n, err := b.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("write should report full length, got n=%d err=%v", n, err)
	}
	if got := b.String(); got != "abcd"+truncatedMarker {
		t.Fatalf("unexpected buffer %q", got)
	}

	unlimited := newCaptureBuffer(0)
	_, _ = unlimited.Write([]byte("abcdef"))
	if unlimited.String() != "abcdef" {
		t.Fatalf("unexpected unlimited buffer %q", unlimited.String())
	}
}
