// Package forms models the parts of the forms host that the notification
// bridge reads: the email descriptor handed to pre-send hooks, the
// notification that produced it and the entry it was sent for.
package forms

import (
	"strings"

	"github.com/shineum/sendgrid-bridge/internal/email"
)

// Email is the host's email descriptor. Hooks return it, possibly with
// AbortEmail set to suppress the host's default delivery.
type Email struct {
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	Message     string            `json:"message"`
	Headers     map[string]string `json:"headers,omitempty"`
	Attachments []string          `json:"attachments,omitempty"`
	AbortEmail  bool              `json:"abort_email"`
}

// Header returns the header value for name, or "".
func (e Email) Header(name string) string {
	return e.Headers[name]
}

// Notification is the host rule that produced an email.
type Notification struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Service  string `json:"service"`
	FromName string `json:"fromName,omitempty"`
	ReplyTo  string `json:"replyTo,omitempty"`
}

// Entry is the form submission a notification is sent for.
type Entry struct {
	ID     string            `json:"id"`
	FormID string            `json:"form_id"`
	Fields map[string]string `json:"fields,omitempty"`
}

// SendEvent carries the arguments of one pre-send hook invocation.
type SendEvent struct {
	Email        Email        `json:"email"`
	Format       email.Format `json:"format"`
	Notification Notification `json:"notification"`
	Entry        Entry        `json:"entry"`
}

// Outbound converts the event into a rendered outbound email. The from name
// and reply-to are taken from the notification and resolved through tags.
func (ev SendEvent) Outbound(tags MergeTags) *email.Outbound {
	if tags == nil {
		tags = EntryTags{}
	}

	out := &email.Outbound{
		From: email.Address{
			Name:    tags.Replace(ev.Notification.FromName, ev.Entry),
			Address: email.ParseFromHeader(ev.Email.Header("From")),
		},
		To:      email.SplitAddresses(ev.Email.To),
		Subject: ev.Email.Subject,
		Body:    ev.Email.Message,
		Format:  ev.Format,
	}

	if v, ok := ev.Email.Headers["Cc"]; ok {
		out.Cc = email.SplitHeaderAddresses("Cc", v)
	}
	if v, ok := ev.Email.Headers["Bcc"]; ok {
		out.Bcc = email.SplitHeaderAddresses("Bcc", v)
	}

	if ev.Notification.ReplyTo != "" {
		out.ReplyTo = strings.TrimSpace(tags.Replace(ev.Notification.ReplyTo, ev.Entry))
	}

	for _, path := range ev.Email.Attachments {
		out.Attachments = append(out.Attachments, email.NewAttachment(path))
	}

	return out
}
