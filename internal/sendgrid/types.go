// Package sendgrid implements the SendGrid v3 API client and the translation of an
// outbound email into a mail/send request.
package sendgrid

import (
	"encoding/base64"
	"encoding/json"

	"github.com/shineum/sendgrid-bridge/internal/email"
)

// Message is the request body of the mail/send endpoint.
type Message struct {
	From             Address           `json:"from"`
	Personalizations []Personalization `json:"personalizations"`
	Content          []Content         `json:"content"`
	ReplyTo          *Address          `json:"reply_to,omitempty"`
	Attachments      []Attachment      `json:"attachments,omitempty"`

	// Extras holds additional top-level fields (categories, send_at,
	// tracking_settings...) set by pre-send filters. They override typed
	// fields of the same name.
	Extras map[string]json.RawMessage `json:"-"`
}

// Address is an email address with an optional name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Personalization groups the recipients and subject of a message.
type Personalization struct {
	Subject string    `json:"subject"`
	To      []Address `json:"to"`
	Cc      []Address `json:"cc,omitempty"`
	Bcc     []Address `json:"bcc,omitempty"`
}

// Content is one body part of a message.
type Content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Attachment is a base64 encoded file.
type Attachment struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// MarshalJSON encodes the message and merges Extras into the top-level object.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	data, err := json.Marshal(plain(m))
	if err != nil || len(m.Extras) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range m.Extras {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// SetExtra stores value under a top-level field name.
func (m *Message) SetExtra(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.Extras == nil {
		m.Extras = make(map[string]json.RawMessage)
	}
	m.Extras[name] = raw
	return nil
}

// scopesResponse is the body of GET scopes.
type scopesResponse struct {
	Scopes []string `json:"scopes"`
}

// BuildMessage converts an outbound email into a mail/send request body.
// It reads every attachment from disk; a read failure is returned as a
// KindLocalIO error.
func BuildMessage(out *email.Outbound) (*Message, error) {
	contentType := "text/plain"
	if out.IsHTML() {
		contentType = "text/html"
	}

	msg := &Message{
		From: Address{
			Email: out.From.Address,
			Name:  out.From.Name,
		},
		Personalizations: []Personalization{{
			Subject: out.Subject,
			To:      toAddresses(out.To),
			Cc:      toAddresses(out.Cc),
			Bcc:     toAddresses(out.Bcc),
		}},
		Content: []Content{{
			Type:  contentType,
			Value: out.Body,
		}},
	}

	// to is always present in the request, even when empty.
	if msg.Personalizations[0].To == nil {
		msg.Personalizations[0].To = []Address{}
	}

	if out.ReplyTo != "" {
		msg.ReplyTo = &Address{Email: out.ReplyTo}
	}

	for _, att := range out.Attachments {
		data, err := att.Read()
		if err != nil {
			return nil, &Error{Kind: KindLocalIO, Message: err.Error(), Cause: err}
		}
		msg.Attachments = append(msg.Attachments, Attachment{
			Content:  base64.StdEncoding.EncodeToString(data),
			Filename: att.FileName,
		})
	}

	return msg, nil
}

func toAddresses(list []string) []Address {
	if len(list) == 0 {
		return nil
	}
	out := make([]Address, 0, len(list))
	for _, addr := range list {
		out = append(out, Address{Email: addr})
	}
	return out
}
