package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/sendgrid-bridge/internal/email"
)

const (
	defaultGraphURL = "https://graph.microsoft.com/v1.0/"
	tokenURLFormat  = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
	graphScope      = "https://graph.microsoft.com/.default"
	requestTimeout  = 30 * time.Second
)

// Config holds the Azure AD application credentials and the mailbox that
// sends on the bridge's behalf.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
}

// Provider sends notifications as the configured mailbox. Access tokens are
// fetched with the client credentials grant and cached until they expire.
type Provider struct {
	sender string
	http   *resty.Client
}

// New creates a Provider. ctx scopes token requests and must outlive the
// Provider.
func New(ctx context.Context, cfg Config) *Provider {
	return newWithEndpoints(ctx, cfg, defaultGraphURL, fmt.Sprintf(tokenURLFormat, cfg.TenantID))
}

func newWithEndpoints(ctx context.Context, cfg Config, graphURL, tokenURL string) *Provider {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}

	hc := cc.Client(context.WithoutCancel(ctx))
	hc.Timeout = requestTimeout

	return &Provider{
		sender: cfg.Sender,
		http:   resty.NewWithClient(hc).SetBaseURL(graphURL).SetRetryCount(0),
	}
}

// Send implements provider.Provider. It makes a single attempt.
func (p *Provider) Send(ctx context.Context, msg *email.Outbound) error {
	body, err := buildSendMailRequest(msg)
	if err != nil {
		return fmt.Errorf("failed to build sendMail request: %w", err)
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetPathParam("sender", p.sender).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("users/{sender}/sendMail")
	if err != nil {
		return fmt.Errorf("Graph API request failed: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusAccepted, http.StatusOK:
		return nil
	}

	message := string(resp.Body())
	var errResp errorResponse
	if json.Unmarshal(resp.Body(), &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return fmt.Errorf("Graph API error (HTTP %d): %s", resp.StatusCode(), message)
}

// Name implements provider.Provider.
func (p *Provider) Name() string {
	return "msgraph"
}
