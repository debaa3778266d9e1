package stdout

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/sendgrid-bridge/internal/email"
	"github.com/shineum/sendgrid-bridge/internal/provider"
)

var _ provider.Provider = (*Provider)(nil)

func TestSend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0o600))

	var buf bytes.Buffer
	p := NewWithWriter(&buf)

	err := p.Send(context.Background(), &email.Outbound{
		From:    email.Address{Name: "Site", Address: "noreply@example.com"},
		To:      []string{"a@example.com", "b@example.com"},
		Cc:      []string{"c@example.com"},
		ReplyTo: "reply@example.com",
		Subject: "New submission",
		Body:    "<p>Hello</p>",
		Format:  email.FormatHTML,
		Attachments: []email.Attachment{
			email.NewAttachment(path),
			email.NewAttachment(filepath.Join(t.TempDir(), "gone.txt")),
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "From: Site <noreply@example.com>\n")
	assert.Contains(t, out, "To: a@example.com, b@example.com\n")
	assert.Contains(t, out, "Cc: c@example.com\n")
	assert.NotContains(t, out, "Bcc:")
	assert.Contains(t, out, "Reply-To: reply@example.com\n")
	assert.Contains(t, out, "Subject: New submission\n")
	assert.Contains(t, out, "Format: html\n")
	assert.Contains(t, out, "<p>Hello</p>\n")
	assert.Contains(t, out, "Attachments: report.pdf (2.0 KB), gone.txt (missing)\n")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("closed pipe")
}

func TestSend_WriteError(t *testing.T) {
	t.Parallel()

	err := NewWithWriter(failingWriter{}).Send(context.Background(), &email.Outbound{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed pipe")
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "2.0 MB", formatSize(2*1024*1024))
}
