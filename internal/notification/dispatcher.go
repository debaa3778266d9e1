// Package notification hands forms notifications to SendGrid. Its Dispatcher is
// registered as a pre-send hook in the host's notification pipeline.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shineum/sendgrid-bridge/internal/email"
	"github.com/shineum/sendgrid-bridge/internal/forms"
	"github.com/shineum/sendgrid-bridge/internal/gate"
	"github.com/shineum/sendgrid-bridge/internal/notes"
	"github.com/shineum/sendgrid-bridge/internal/sendgrid"
)

// ServiceName is the notification service value routed to SendGrid.
const ServiceName = "sendgrid"

const (
	noteSource = "sendgrid-bridge"
	addonTitle = "SendGrid Bridge"
)

// Sender submits a message to SendGrid.
type Sender interface {
	SendEmail(ctx context.Context, msg *sendgrid.Message) (json.RawMessage, error)
}

// Gate reports whether the API key may send mail.
type Gate interface {
	Initialize(ctx context.Context) gate.Readiness
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFilter appends a pre-send filter.
func WithFilter(f Filter) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.filters = append(d.filters, f)
		}
	}
}

// WithFailureHandler appends a failure handler.
func WithFailureHandler(h FailureHandler) Option {
	return func(d *Dispatcher) {
		if h != nil {
			d.onFailure = append(d.onFailure, h)
		}
	}
}

// WithMergeTags sets the resolver for from-name and reply-to merge tags.
func WithMergeTags(t forms.MergeTags) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tags = t
		}
	}
}

// WithAttachmentRoot confines attachment reads to root. Attachments outside it
// fail the send with a local I/O error.
func WithAttachmentRoot(root *email.Root) Option {
	return func(d *Dispatcher) {
		d.root = root
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// Dispatcher translates notifications into SendGrid messages and sends them.
type Dispatcher struct {
	sender    Sender
	gate      Gate
	notes     notes.Recorder
	tags      forms.MergeTags
	root      *email.Root
	logger    *slog.Logger
	filters   []Filter
	onFailure []FailureHandler
}

// New creates a Dispatcher.
func New(sender Sender, g Gate, recorder notes.Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		gate:   g,
		notes:  recorder,
		tags:   forms.EntryTags{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaybeSendEmail is the pre-send hook. It sends SendGrid notifications when the
// gate is ready and sets AbortEmail on success so the host skips its default
// delivery. Any other email is returned untouched.
func (d *Dispatcher) MaybeSendEmail(ctx context.Context, ev forms.SendEvent) forms.Email {
	result := ev.Email
	log := d.logger.With(
		"notification_id", ev.Notification.ID,
		"notification_name", ev.Notification.Name,
		"entry_id", ev.Entry.ID,
	)

	if ev.Email.AbortEmail {
		log.DebugContext(ctx, "not sending notification via SendGrid: already aborted by another hook")
		return result
	}

	if ev.Notification.Service != ServiceName {
		return result
	}

	if !d.gate.Initialize(ctx).Ready() {
		return result
	}

	outcome, _ := d.Dispatch(ctx, ev)
	title := fmt.Sprintf("%s (ID: %s)", ev.Notification.Name, ev.Notification.ID)

	if outcome.OK() {
		d.addNote(ctx, log, notes.Note{
			EntryID: ev.Entry.ID,
			Title:   title,
			Body:    fmt.Sprintf("%s successfully passed the notification to SendGrid.", addonTitle),
			Source:  noteSource,
			Type:    notes.TypeSuccess,
		})
		result.AbortEmail = true
		return result
	}

	d.addNote(ctx, log, notes.Note{
		EntryID: ev.Entry.ID,
		Title:   title,
		Body:    fmt.Sprintf("%s was unable to send the notification. Error: %s", addonTitle, outcome.Message),
		Source:  noteSource,
		Type:    notes.TypeError,
	})
	return result
}

// Dispatch builds the SendGrid message for ev, runs the filters and sends it.
// Callers must have checked the gate. The attempted message is returned
// alongside the outcome; it is nil when the message could not be built.
func (d *Dispatcher) Dispatch(ctx context.Context, ev forms.SendEvent) (Outcome, *sendgrid.Message) {
	log := d.logger.With("notification_id", ev.Notification.ID, "entry_id", ev.Entry.ID)

	out := ev.Outbound(d.tags)
	out.Confine(d.root)

	msg, err := sendgrid.BuildMessage(out)
	if err != nil {
		outcome := Failed(kindOrLocal(err), err.Error())
		d.fail(ctx, log, outcome, nil, ev)
		return outcome, nil
	}

	for _, f := range d.filters {
		if next := f(ctx, msg, ev); next != nil {
			msg = next
		}
	}

	log.DebugContext(ctx, "sending notification via SendGrid",
		"recipients", recipientCount(msg),
		"attachments", len(msg.Attachments),
	)

	resp, err := d.sender.SendEmail(ctx, msg)
	if err != nil {
		outcome := Failed(kindOrAPI(err), err.Error())
		d.fail(ctx, log, outcome, msg, ev)
		return outcome, msg
	}

	log.DebugContext(ctx, "notification successfully passed to SendGrid")
	return Succeeded(resp), msg
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, outcome Outcome, msg *sendgrid.Message, ev forms.SendEvent) {
	log.ErrorContext(ctx, "unable to send notification with SendGrid",
		"kind", string(outcome.Kind),
		"error", outcome.Message,
	)

	f := Failure{
		Message:   outcome.Message,
		Kind:      outcome.Kind,
		Attempted: msg,
		Event:     ev,
	}
	for _, h := range d.onFailure {
		h(ctx, f)
	}
}

func (d *Dispatcher) addNote(ctx context.Context, log *slog.Logger, n notes.Note) {
	if d.notes == nil {
		return
	}
	if _, err := d.notes.Add(ctx, n); err != nil {
		log.WarnContext(ctx, "failed to record entry note", "error", err)
	}
}

func recipientCount(msg *sendgrid.Message) int {
	n := 0
	for _, p := range msg.Personalizations {
		n += len(p.To) + len(p.Cc) + len(p.Bcc)
	}
	return n
}

func kindOrLocal(err error) sendgrid.ErrorKind {
	if k := sendgrid.KindOf(err); k != "" {
		return k
	}
	return sendgrid.KindLocalIO
}

func kindOrAPI(err error) sendgrid.ErrorKind {
	if k := sendgrid.KindOf(err); k != "" {
		return k
	}
	return sendgrid.KindAPI
}
