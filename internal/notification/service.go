package notification

import (
	"context"

	"github.com/shineum/sendgrid-bridge/internal/gate"
)

// ServiceInfo registers SendGrid as a notification service in the host.
type ServiceInfo struct {
	Name            string `json:"name"`
	Label           string `json:"label"`
	Disabled        bool   `json:"disabled"`
	DisabledMessage string `json:"disabled_message,omitempty"`
	State           string `json:"state"`
	Reason          string `json:"reason,omitempty"`
}

// Service describes the SendGrid notification service. It is disabled until
// the gate reports ready.
func (d *Dispatcher) Service(ctx context.Context) ServiceInfo {
	r := d.gate.Initialize(ctx)

	info := ServiceInfo{
		Name:     ServiceName,
		Label:    "SendGrid",
		Disabled: !r.Ready(),
		State:    r.State.String(),
		Reason:   r.Reason,
	}
	if info.Disabled {
		info.DisabledMessage = disabledMessage(r.State)
	}
	return info
}

func disabledMessage(s gate.State) string {
	switch s {
	case gate.InsufficientScope:
		return "Your SendGrid API key must have the mail.send scope before sending emails using their service."
	default:
		return "You must authenticate with SendGrid before sending emails using their service."
	}
}
