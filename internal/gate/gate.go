// Package gate validates a SendGrid API key and reports whether it may send mail.
package gate

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// RequiredScope is the capability needed to send mail.
const RequiredScope = "mail.send"

// State is the outcome of a credential check.
type State int

const (
	// NotConfigured means no API key is set. It is a declined state, not an error.
	NotConfigured State = iota
	// Ready means the key is valid and carries RequiredScope.
	Ready
	// Invalid means the key was rejected or the scopes could not be fetched.
	Invalid
	// InsufficientScope means the key is valid but lacks RequiredScope.
	InsufficientScope
)

func (s State) String() string {
	switch s {
	case NotConfigured:
		return "not_configured"
	case Ready:
		return "ready"
	case Invalid:
		return "invalid"
	case InsufficientScope:
		return "insufficient_scope"
	default:
		return "unknown"
	}
}

// Readiness is the result of Initialize.
type Readiness struct {
	State  State
	Reason string
}

// Ready reports whether mail may be sent.
func (r Readiness) Ready() bool {
	return r.State == Ready
}

// ScopeLister fetches the scopes granted to an API key.
type ScopeLister interface {
	Scopes(ctx context.Context) ([]string, error)
}

// Gate owns an API key and memoizes a successful validation for its lifetime.
// It is safe for concurrent use.
type Gate struct {
	apiKey string
	client ScopeLister
	logger *slog.Logger

	mu     sync.RWMutex
	scopes map[string]struct{}

	ready atomic.Bool
	group singleflight.Group
}

// New creates a Gate for apiKey. client must authenticate with the same key.
func New(apiKey string, client ScopeLister, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		apiKey: apiKey,
		client: client,
		logger: logger,
		scopes: map[string]struct{}{},
	}
}

// Initialize validates the API key. Once Ready it returns Ready without
// contacting SendGrid again; other states are re-checked on every call.
// Concurrent callers share one in-flight validation, which is detached from
// any single caller's context and bounded by the client timeout. A caller
// whose ctx ends first gets Invalid without cancelling the others.
func (g *Gate) Initialize(ctx context.Context) Readiness {
	if g.ready.Load() {
		return Readiness{State: Ready}
	}

	if strings.TrimSpace(g.apiKey) == "" {
		return Readiness{State: NotConfigured}
	}

	ch := g.group.DoChan("initialize", func() (any, error) {
		if g.ready.Load() {
			return Readiness{State: Ready}, nil
		}
		return g.validate(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Readiness)
	case <-ctx.Done():
		return Readiness{State: Invalid, Reason: ctx.Err().Error()}
	}
}

func (g *Gate) validate(ctx context.Context) Readiness {
	g.logger.DebugContext(ctx, "validating SendGrid API credentials")

	if _, err := g.LoadScopes(ctx); err != nil {
		g.logger.ErrorContext(ctx, "SendGrid API credentials are invalid", "error", err)
		return Readiness{State: Invalid, Reason: err.Error()}
	}

	if !g.HasScope(RequiredScope) {
		g.logger.ErrorContext(ctx, "SendGrid API credentials are valid but do not have access to needed scopes",
			"required_scope", RequiredScope,
		)
		return Readiness{
			State:  InsufficientScope,
			Reason: "API key is missing the " + RequiredScope + " scope",
		}
	}

	g.ready.Store(true)
	g.logger.DebugContext(ctx, "SendGrid API credentials are valid")
	return Readiness{State: Ready}
}

// LoadScopes fetches the scopes granted to the key and replaces the current
// set. On failure the set is left empty.
func (g *Gate) LoadScopes(ctx context.Context) ([]string, error) {
	scopes, err := g.client.Scopes(ctx)

	set := make(map[string]struct{}, len(scopes))
	if err == nil {
		for _, s := range scopes {
			set[s] = struct{}{}
		}
	}

	g.mu.Lock()
	g.scopes = set
	g.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return scopes, nil
}

// HasScope reports whether name is in the loaded scope set.
func (g *Gate) HasScope(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.scopes[name]
	return ok
}

// Ready reports whether a previous Initialize succeeded.
func (g *Gate) Ready() bool {
	return g.ready.Load()
}
