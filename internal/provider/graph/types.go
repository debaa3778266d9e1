// Package graph implements a fallback Provider that sends through the
// Microsoft Graph sendMail endpoint.
package graph

import (
	"encoding/base64"
	"mime"
	"path/filepath"

	"github.com/shineum/sendgrid-bridge/internal/email"
)

type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject       string           `json:"subject"`
	Body          messageBody      `json:"body"`
	ToRecipients  []recipient      `json:"toRecipients"`
	CcRecipients  []recipient      `json:"ccRecipients,omitempty"`
	BccRecipients []recipient      `json:"bccRecipients,omitempty"`
	ReplyTo       []recipient      `json:"replyTo,omitempty"`
	Attachments   []fileAttachment `json:"attachments,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type fileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func recipients(addrs []string) []recipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]recipient, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, recipient{EmailAddress: emailAddress{Address: addr}})
	}
	return out
}

// buildSendMailRequest converts msg into a sendMail body. Attachments are read
// from disk; the first unreadable file aborts the build.
func buildSendMailRequest(msg *email.Outbound) (*sendMailRequest, error) {
	body := messageBody{ContentType: "text", Content: msg.Body}
	if msg.IsHTML() {
		body.ContentType = "html"
	}

	m := sendMailMessage{
		Subject:       msg.Subject,
		Body:          body,
		ToRecipients:  recipients(msg.To),
		CcRecipients:  recipients(msg.Cc),
		BccRecipients: recipients(msg.Bcc),
	}
	if m.ToRecipients == nil {
		m.ToRecipients = []recipient{}
	}
	if msg.ReplyTo != "" {
		m.ReplyTo = recipients([]string{msg.ReplyTo})
	}

	for _, att := range msg.Attachments {
		data, err := att.Read()
		if err != nil {
			return nil, err
		}
		contentType := mime.TypeByExtension(filepath.Ext(att.FileName))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		m.Attachments = append(m.Attachments, fileAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.FileName,
			ContentType:  contentType,
			ContentBytes: base64.StdEncoding.EncodeToString(data),
		})
	}

	return &sendMailRequest{Message: m, SaveToSentItems: true}, nil
}
