// Package exec runs single command lines on the local host with a hard upper
// bound on how long a call can take.
//
// Completion is detected from the process exit, not from end-of-file on its
// output pipes: a command may leave background children behind that inherit
// the pipe write ends and keep them open long after the command itself has
// exited. Output that is still buffered when the process exits is collected
// during a short drain window; whatever arrives after that is dropped.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sameehj/kai-node/pkg/env"
)

// DefaultDrainTimeout bounds output collection after the process has exited.
const DefaultDrainTimeout = 500 * time.Millisecond

// ErrEmptyCommand is returned for requests without a command.
var ErrEmptyCommand = errors.New("command is required")

// Request describes one command line to run.
type Request struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Shell     string            `json:"shell,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	TimeoutMs int               `json:"timeoutMs"`
}

// Line is the command line the request composes: Command followed by the
// space-joined Args.
func (r Request) Line() string {
	return commandLine(r.Command, r.Args)
}

// Result is the outcome of a finished, failed, or timed out command.
// ExitCode is -1 when the command timed out or could not be started.
type Result struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exitCode"`
	TimedOut   bool   `json:"timedOut"`
	DurationMs int64  `json:"durationMs"`
}

// Runner executes command requests. Implementations must return within the
// request timeout plus a small fixed grace period, report start failures as
// results, and return ctx.Err() when the context is cancelled.
type Runner interface {
	Name() string
	Run(ctx context.Context, req Request) (*Result, error)
}

// LocalRunner runs commands as child processes of the node.
type LocalRunner struct {
	// DrainTimeout bounds output collection after exit. Zero means DefaultDrainTimeout.
	DrainTimeout time.Duration
	// MaxOutput caps each captured stream in bytes. Zero means unlimited.
	MaxOutput int
	// BaseEnv is applied over the inherited environment and under Request.Env.
	BaseEnv map[string]string

	logger *slog.Logger
}

func (r *LocalRunner) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

func (r *LocalRunner) Name() string {
	return "local"
}

func (r *LocalRunner) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inv := BuildInvocation(req)
	cmd := exec.Command(inv.Program, inv.Args...)
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}
	if len(r.BaseEnv) > 0 || len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), env.Merge(r.BaseEnv, req.Env)...)
	}
	configureProcess(cmd, inv)

	r.logInfo("exec_start", "program", inv.Program, "command", req.Command, "shell", req.Shell, "timeout_ms", req.TimeoutMs)

	start := time.Now()
	stdout := newCaptureBuffer(r.MaxOutput)
	stderr := newCaptureBuffer(r.MaxOutput)
	capture, err := startCaptured(cmd, stdout, stderr)
	if err != nil {
		r.logError("exec_start_failed", "program", inv.Program, "error", err)
		return &Result{
			Stderr:     fmt.Sprintf("Failed to start: %v", err),
			ExitCode:   -1,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	var deadline <-chan time.Time
	if req.TimeoutMs > 0 {
		timer := time.NewTimer(time.Duration(req.TimeoutMs) * time.Millisecond)
		defer timer.Stop()
		deadline = timer.C
	}

	timedOut := false
	select {
	case <-exited:
	case <-deadline:
		timedOut = true
		r.logWarn("exec_timeout", "program", inv.Program, "timeout_ms", req.TimeoutMs)
		r.terminate(cmd)
		r.awaitExit(exited)
	case <-ctx.Done():
		r.logWarn("exec_cancelled", "program", inv.Program, "error", ctx.Err())
		r.terminate(cmd)
		capture.close()
		return nil, ctx.Err()
	}

	if !capture.wait(r.drainTimeout()) {
		r.logWarn("output_drain_timeout", "program", inv.Program, "drain_ms", r.drainTimeout().Milliseconds(),
			"hint", "child processes may still hold the output pipe open")
	}
	capture.close()

	res := &Result{
		Stdout:     trimOutput(stdout.String()),
		Stderr:     trimOutput(stderr.String()),
		ExitCode:   -1,
		TimedOut:   timedOut,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if !timedOut && cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	r.logInfo("exec_done", "program", inv.Program, "exit_code", res.ExitCode, "duration_ms", res.DurationMs,
		"timed_out", res.TimedOut, "stdout_len", len(res.Stdout), "stderr_len", len(res.Stderr))
	return res, nil
}

// terminate kills the whole process tree. It is safe to call on processes
// that already exited.
func (r *LocalRunner) terminate(cmd *exec.Cmd) {
	if err := terminateProcessTree(cmd); err != nil {
		r.logWarn("exec_kill_failed", "error", err)
	}
}

// awaitExit gives a killed process the drain window to be reaped.
func (r *LocalRunner) awaitExit(exited <-chan error) {
	select {
	case <-exited:
	case <-time.After(r.drainTimeout()):
		r.logWarn("exec_kill_unconfirmed", "drain_ms", r.drainTimeout().Milliseconds())
	}
}

func (r *LocalRunner) drainTimeout() time.Duration {
	if r.DrainTimeout > 0 {
		return r.DrainTimeout
	}
	return DefaultDrainTimeout
}

func trimOutput(s string) string {
	return strings.TrimRight(s, " \t\r\n")
}

func (r *LocalRunner) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *LocalRunner) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func (r *LocalRunner) logError(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Error(msg, args...)
	}
}

var _ Runner = (*LocalRunner)(nil)
