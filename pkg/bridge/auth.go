package bridge

import (
	"context"
	"fmt"
	"net"
)

// Authorizer controls incoming bridge connections.
type Authorizer interface {
	Allow(ctx context.Context, remoteAddr string) error
}

type NoopAuthorizer struct{}

func (NoopAuthorizer) Allow(context.Context, string) error {
	return nil
}

// AllowlistAuthorizer admits only the listed hosts or host:port pairs. An
// empty list admits everyone.
type AllowlistAuthorizer struct {
	Allowed []string
}

func (a AllowlistAuthorizer) Allow(_ context.Context, remoteAddr string) error {
	if len(a.Allowed) == 0 {
		return nil
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	for _, addr := range a.Allowed {
		if addr == remoteAddr || addr == host {
			return nil
		}
	}
	return fmt.Errorf("remote address not allowed: %s", remoteAddr)
}
