package sendgrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the SendGrid v3 API root.
const DefaultBaseURL = "https://api.sendgrid.com/v3/"

// defaultTimeout bounds every API call.
const defaultTimeout = 30 * time.Second

// defaultStatsDays is the look-back window of Stats when days is not positive.
const defaultStatsDays = 30

// Config holds the configuration for creating a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client is a thin request/response wrapper around the SendGrid v3 API.
// It never retries; every failure is returned as an *Error.
type Client struct {
	http *resty.Client
	now  func() time.Time
}

// New creates a Client authenticating with cfg.APIKey.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{http: client, now: time.Now}
}

// Scopes returns the permission scopes granted to the API key.
func (c *Client) Scopes(ctx context.Context) ([]string, error) {
	raw, err := c.request(ctx, http.MethodGet, "scopes", nil, "scopes")
	if err != nil {
		return nil, err
	}

	var scopes []string
	if err := json.Unmarshal(raw, &scopes); err != nil {
		// The narrowing falls back to the whole body when the key is missing.
		var resp scopesResponse
		if err2 := json.Unmarshal(raw, &resp); err2 != nil {
			return nil, &Error{Kind: KindAPI, Message: fmt.Sprintf("Unexpected scopes response: %v", err)}
		}
		scopes = resp.Scopes
	}
	return scopes, nil
}

// SendEmail submits msg to mail/send. SendGrid answers 202 with an empty body,
// in which case the returned body is nil.
func (c *Client) SendEmail(ctx context.Context, msg *Message) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPost, "mail/send", msg, "")
}

// Stats returns global account statistics starting days ago (30 when days
// is not positive).
func (c *Client) Stats(ctx context.Context, days int) (json.RawMessage, error) {
	if days <= 0 {
		days = defaultStatsDays
	}
	start := c.now().AddDate(0, 0, -days).Format("2006-01-02")
	return c.request(ctx, http.MethodGet, "stats", map[string]string{"start_date": start}, "")
}

// request performs one API call. GET options become the query string, any
// other method sends them as the JSON body. A non-empty returnKey narrows a
// successful response to that top-level field when present.
func (c *Client) request(ctx context.Context, method, action string, options any, returnKey string) (json.RawMessage, error) {
	req := c.http.R().SetContext(ctx)

	if method == http.MethodGet {
		if params, ok := options.(map[string]string); ok {
			req.SetQueryParams(params)
		}
	} else if options != nil {
		body, err := json.Marshal(options)
		if err != nil {
			return nil, &Error{Kind: KindLocalIO, Message: fmt.Sprintf("failed to marshal request body: %v", err), Cause: err}
		}
		req.SetBody(body)
	}

	resp, err := req.Execute(method, action)
	if err != nil {
		return nil, &Error{
			Kind:    KindTransport,
			Message: "Request failed. " + err.Error(),
			Cause:   err,
		}
	}

	return classifyResponse(resp.StatusCode(), resp.Body(), returnKey)
}
