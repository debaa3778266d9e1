package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shineum/sendgrid-bridge/internal/forms"
	"github.com/shineum/sendgrid-bridge/internal/sendgrid"
)

// Outcome is the result of one dispatch: either a success carrying the
// provider response, or a failure carrying a kind and message.
type Outcome struct {
	ok       bool
	Response json.RawMessage
	Kind     sendgrid.ErrorKind
	Message  string
}

// Succeeded builds a success outcome.
func Succeeded(resp json.RawMessage) Outcome {
	return Outcome{ok: true, Response: resp}
}

// Failed builds a failure outcome.
func Failed(kind sendgrid.ErrorKind, message string) Outcome {
	return Outcome{Kind: kind, Message: message}
}

// OK reports whether the email was accepted by SendGrid.
func (o Outcome) OK() bool {
	return o.ok
}

// Filter may modify the message before it is sent. It returns the message
// to send, which may be msg itself.
type Filter func(ctx context.Context, msg *sendgrid.Message, ev forms.SendEvent) *sendgrid.Message

// Failure describes a failed send for failure handlers.
type Failure struct {
	Message   string
	Kind      sendgrid.ErrorKind
	Attempted *sendgrid.Message
	Event     forms.SendEvent
}

// FailureHandler is notified after a send failed.
type FailureHandler func(ctx context.Context, f Failure)

// LogFailures returns a FailureHandler that logs the failed event with a
// summary of the attempted message.
func LogFailures(logger *slog.Logger) FailureHandler {
	return func(ctx context.Context, f Failure) {
		attrs := []any{
			"kind", string(f.Kind),
			"error", f.Message,
			"entry_id", f.Event.Entry.ID,
			"form_id", f.Event.Entry.FormID,
			"notification_id", f.Event.Notification.ID,
			"subject", f.Event.Email.Subject,
		}
		if msg := f.Attempted; msg != nil {
			names := make([]string, 0, len(msg.Attachments))
			for _, att := range msg.Attachments {
				names = append(names, att.Filename)
			}
			attrs = append(attrs,
				"recipients", recipientCount(msg),
				"attachments", names,
			)
		}
		logger.WarnContext(ctx, "notification delivery failed; host falls back to its default delivery", attrs...)
	}
}
