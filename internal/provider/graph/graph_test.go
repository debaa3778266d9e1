package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/sendgrid-bridge/internal/email"
	"github.com/shineum/sendgrid-bridge/internal/provider"
)

var _ provider.Provider = (*Provider)(nil)

func TestBuildSendMailRequest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("pdf"), 0o600))

	req, err := buildSendMailRequest(&email.Outbound{
		To:          []string{"alice@example.com", "bob@example.com"},
		Bcc:         []string{"audit@example.com"},
		ReplyTo:     "reply@example.com",
		Subject:     "Test Subject",
		Body:        "<p>Hello</p>",
		Format:      email.FormatHTML,
		Attachments: []email.Attachment{email.NewAttachment(path)},
	})
	require.NoError(t, err)

	m := req.Message
	assert.Equal(t, "Test Subject", m.Subject)
	assert.Equal(t, messageBody{ContentType: "html", Content: "<p>Hello</p>"}, m.Body)
	require.Len(t, m.ToRecipients, 2)
	assert.Equal(t, "bob@example.com", m.ToRecipients[1].EmailAddress.Address)
	assert.Nil(t, m.CcRecipients)
	require.Len(t, m.BccRecipients, 1)
	require.Len(t, m.ReplyTo, 1)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "report.pdf", m.Attachments[0].Name)
	assert.Equal(t, "application/pdf", m.Attachments[0].ContentType)
	assert.Equal(t, "cGRm", m.Attachments[0].ContentBytes)
}

func TestBuildSendMailRequest_TextAndEmptyTo(t *testing.T) {
	t.Parallel()

	req, err := buildSendMailRequest(&email.Outbound{Body: "plain", Format: email.FormatText})
	require.NoError(t, err)
	assert.Equal(t, "text", req.Message.Body.ContentType)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"toRecipients":[]`)
}

func TestBuildSendMailRequest_MissingAttachment(t *testing.T) {
	t.Parallel()

	_, err := buildSendMailRequest(&email.Outbound{
		Attachments: []email.Attachment{email.NewAttachment(filepath.Join(t.TempDir(), "gone.txt"))},
	})
	require.Error(t, err)
}

func newTestServer(t *testing.T, sendStatus int, sendBody string) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()

	var tokenCalls, sendCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1.0/users/{sender}/sendMail", func(w http.ResponseWriter, r *http.Request) {
		sendCalls.Add(1)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "forms@example.com", r.PathValue("sender"))

		var body sendMailRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello", body.Message.Subject)

		w.WriteHeader(sendStatus)
		_, _ = w.Write([]byte(sendBody))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls, &sendCalls
}

func testConfig() Config {
	return Config{TenantID: "tenant", ClientID: "client", ClientSecret: "secret", Sender: "forms@example.com"}
}

func TestSend_ReusesToken(t *testing.T) {
	t.Parallel()

	srv, tokenCalls, sendCalls := newTestServer(t, http.StatusAccepted, "")
	p := newWithEndpoints(context.Background(), testConfig(), srv.URL+"/v1.0/", srv.URL+"/token")

	msg := &email.Outbound{To: []string{"a@example.com"}, Subject: "Hello", Body: "hi"}
	require.NoError(t, p.Send(context.Background(), msg))
	require.NoError(t, p.Send(context.Background(), msg))

	assert.Equal(t, int32(1), tokenCalls.Load())
	assert.Equal(t, int32(2), sendCalls.Load())
}

func TestSend_ErrorResponse(t *testing.T) {
	t.Parallel()

	srv, _, sendCalls := newTestServer(t, http.StatusForbidden,
		`{"error":{"code":"ErrorAccessDenied","message":"Access is denied."}}`)
	p := newWithEndpoints(context.Background(), testConfig(), srv.URL+"/v1.0/", srv.URL+"/token")

	err := p.Send(context.Background(), &email.Outbound{To: []string{"a@example.com"}, Subject: "Hello"})
	require.Error(t, err)
	assert.Equal(t, "Graph API error (HTTP 403): Access is denied.", err.Error())
	assert.Equal(t, int32(1), sendCalls.Load())
}

func TestName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "msgraph", New(context.Background(), testConfig()).Name())
}
