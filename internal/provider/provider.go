// Package provider defines the default mail transports that deliver a
// notification when no pre-send hook took it over.
package provider

import (
	"context"

	"github.com/shineum/sendgrid-bridge/internal/email"
)

// Provider is a fallback delivery backend.
type Provider interface {
	// Send delivers msg. Attachments are read from disk by the provider.
	Send(ctx context.Context, msg *email.Outbound) error

	// Name returns the provider name reported in delivery results.
	Name() string
}
