// Package delivery runs the host's notification send path: pre-send hooks
// first, then the default transport when no hook took the email over.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shineum/sendgrid-bridge/internal/email"
	"github.com/shineum/sendgrid-bridge/internal/forms"
	"github.com/shineum/sendgrid-bridge/internal/provider"
)

// HandledByHook is reported when a pre-send hook aborted default delivery.
const HandledByHook = "hook"

// ErrNoFallback is returned when no hook handled the email and no fallback
// provider is configured.
var ErrNoFallback = errors.New("no fallback provider configured")

// PreSendHook may take over delivery by returning the email with AbortEmail set.
type PreSendHook func(ctx context.Context, ev forms.SendEvent) forms.Email

// Result describes how an email was delivered.
type Result struct {
	HandledBy string      `json:"handled_by"`
	Email     forms.Email `json:"email"`
}

// Pipeline delivers host notifications.
type Pipeline struct {
	hooks    []PreSendHook
	fallback provider.Provider
	tags     forms.MergeTags
	root     *email.Root
	logger   *slog.Logger
}

// New creates a Pipeline. Hooks run in the given order. A nil logger uses
// slog.Default().
func New(fallback provider.Provider, logger *slog.Logger, hooks ...PreSendHook) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		hooks:    hooks,
		fallback: fallback,
		tags:     forms.EntryTags{},
		logger:   logger,
	}
}

// ConfineAttachments restricts fallback attachment reads to root and returns p.
func (p *Pipeline) ConfineAttachments(root *email.Root) *Pipeline {
	p.root = root
	return p
}

// Deliver passes ev through every hook, each seeing the email returned by the
// previous one. If none aborted, the email is sent through the fallback.
func (p *Pipeline) Deliver(ctx context.Context, ev forms.SendEvent) (Result, error) {
	for _, hook := range p.hooks {
		ev.Email = hook(ctx, ev)
	}

	if ev.Email.AbortEmail {
		return Result{HandledBy: HandledByHook, Email: ev.Email}, nil
	}

	if p.fallback == nil {
		return Result{Email: ev.Email}, ErrNoFallback
	}

	name := p.fallback.Name()
	p.logger.InfoContext(ctx, "delivering notification through fallback provider",
		"provider", name,
		"notification_id", ev.Notification.ID,
		"entry_id", ev.Entry.ID,
	)

	out := ev.Outbound(p.tags)
	out.Confine(p.root)

	if err := p.fallback.Send(ctx, out); err != nil {
		return Result{Email: ev.Email}, fmt.Errorf("%s delivery failed: %w", name, err)
	}
	return Result{HandledBy: name, Email: ev.Email}, nil
}

// FallbackName returns the fallback provider name, or "" when none is set.
func (p *Pipeline) FallbackName() string {
	if p.fallback == nil {
		return ""
	}
	return p.fallback.Name()
}
