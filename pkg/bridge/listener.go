package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sameehj/kai-node/pkg/metrics"
)

// Session tracks a single client connection.
type Session struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remoteAddr"`
	StartedAt  time.Time `json:"startedAt"`
}

// Listener serves a bridge Server to TCP clients, one session per connection.
type Listener struct {
	addr        string
	server      *Server
	authorizer  Authorizer
	maxSessions int
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewListener(addr string, server *Server, authorizer Authorizer) *Listener {
	if authorizer == nil {
		authorizer = NoopAuthorizer{}
	}
	return &Listener{addr: addr, server: server, authorizer: authorizer, sessions: make(map[string]*Session)}
}

func (l *Listener) SetLogger(logger *slog.Logger) {
	l.logger = logger
}

func (l *Listener) SetMetrics(m *metrics.Metrics) {
	l.metrics = m
}

// SetMaxSessions limits concurrent sessions; 0 means unlimited.
func (l *Listener) SetMaxSessions(max int) {
	l.maxSessions = max
}

// Start listens on the configured address and serves until ctx is done.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	return l.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is done. It closes ln and
// every open session before returning.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		wg.Wait()
	}()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	l.logInfo("bridge_listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logError("accept_failed", "error", err)
			return err
		}
		remote := conn.RemoteAddr().String()

		if l.maxSessions > 0 && l.sessionCount() >= l.maxSessions {
			l.logWarn("session_limit_reached", "remote", remote, "limit", l.maxSessions)
			_ = conn.Close()
			continue
		}
		if err := l.authorizer.Allow(ctx, remote); err != nil {
			l.logWarn("session_denied", "remote", remote, "error", err)
			_ = conn.Close()
			continue
		}

		session := &Session{ID: uuid.NewString(), RemoteAddr: remote, StartedAt: time.Now()}
		l.register(session)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer l.unregister(session.ID)
			l.serveConn(ctx, session, conn)
		}()
	}
}

func (l *Listener) serveConn(ctx context.Context, session *Session, conn net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	l.logInfo("session_start", "id", session.ID, "remote", session.RemoteAddr)
	if err := l.server.Serve(connCtx, conn, conn); err != nil {
		l.logWarn("session_error", "id", session.ID, "error", err)
	}
	l.logInfo("session_end", "id", session.ID, "remote", session.RemoteAddr, "duration", time.Since(session.StartedAt).String())
}

func (l *Listener) register(session *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[session.ID] = session
	l.metrics.SessionOpened()
}

func (l *Listener) unregister(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sessions[id]; ok {
		delete(l.sessions, id)
		l.metrics.SessionClosed()
	}
}

func (l *Listener) sessionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// Sessions lists open sessions, oldest first.
func (l *Listener) Sessions() []Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (l *Listener) Addr() string {
	return l.addr
}

func (l *Listener) logInfo(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}

func (l *Listener) logWarn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

func (l *Listener) logError(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Error(msg, args...)
	}
}
