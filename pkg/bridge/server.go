// Package bridge exposes a capability registry over JSON-RPC 2.0 on stdio or
// TCP. It is a local operator surface for exercising the node's commands.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/sameehj/kai-node/pkg/capability"
	"github.com/sameehj/kai-node/pkg/system"
	"github.com/sameehj/kai-node/pkg/version"
)

const (
	MethodInvoke   = "node.invoke"
	MethodCommands = "node.commands"
	MethodInfo     = "node.info"
)

// Invoker is the part of capability.Registry the bridge serves.
type Invoker interface {
	Invoke(ctx context.Context, req capability.Request) capability.Response
	Commands() []string
	Categories() []string
}

type Server struct {
	invoker Invoker
	profile *system.Profile
	logger  *slog.Logger
}

func NewServer(invoker Invoker, profile *system.Profile) *Server {
	return &Server{invoker: invoker, profile: profile}
}

func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Serve answers requests read from reader until EOF, a read error, or ctx is
// done. Requests on one stream are handled in order.
func (s *Server) Serve(ctx context.Context, reader io.Reader, writer io.Writer) error {
	c := newCodec(reader, writer)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		msg, err := c.read()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			s.logError("bridge_read_failed", "error", err)
			return err
		}

		var req rpcRequest
		if err := json.Unmarshal(msg.payload, &req); err != nil {
			s.logWarn("bridge_parse_error", "error", err)
			_ = c.writeError(msg.framed, req.ID, codeParseError, "parse error", err.Error())
			continue
		}
		if req.Method == "" {
			_ = c.writeError(msg.framed, req.ID, codeInvalidRequest, "invalid request", "missing method")
			continue
		}

		if err := s.dispatch(ctx, c, msg.framed, req); err != nil {
			s.logError("bridge_write_failed", "method", req.Method, "error", err)
			return err
		}
	}
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) dispatch(ctx context.Context, c *codec, framed bool, req rpcRequest) error {
	switch req.Method {
	case MethodInvoke:
		var params capability.Request
		if len(req.Params) == 0 {
			return c.writeError(framed, req.ID, codeInvalidParams, "invalid params", "missing params")
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return c.writeError(framed, req.ID, codeInvalidParams, "invalid params", err.Error())
		}
		if params.ID == "" {
			params.ID = uuid.NewString()
		}
		s.logInfo("bridge_invoke", "id", params.ID, "command", params.Command)
		return c.writeResult(framed, req.ID, s.invoker.Invoke(ctx, params))
	case MethodCommands:
		return c.writeResult(framed, req.ID, map[string]any{
			"commands":   s.invoker.Commands(),
			"categories": s.invoker.Categories(),
		})
	case MethodInfo:
		return c.writeResult(framed, req.ID, map[string]any{
			"version": version.Get(),
			"system":  s.profile,
		})
	default:
		return c.writeError(framed, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func (s *Server) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Server) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Server) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
