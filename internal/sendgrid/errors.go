package sendgrid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed API call.
type ErrorKind string

const (
	// KindTransport is a network level failure (DNS, connect, timeout).
	KindTransport ErrorKind = "transport"
	// KindAPI is a structured error or a non-success status from SendGrid.
	KindAPI ErrorKind = "api"
	// KindLocalIO is a local failure preparing the request, such as an
	// unreadable attachment.
	KindLocalIO ErrorKind = "local_io"
)

// Error is returned by every failed client call.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of err, or an empty kind when err is not an *Error.
func KindOf(err error) ErrorKind {
	var sgErr *Error
	if errors.As(err, &sgErr) {
		return sgErr.Kind
	}
	return ""
}

// classifyResponse turns a raw response into either the (optionally narrowed)
// body or an *Error. Embedded error fields win over the status code since
// SendGrid can answer 200 with an error payload.
func classifyResponse(statusCode int, body []byte, returnKey string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		fields = nil
	}

	if raw, ok := fields["error"]; ok {
		return nil, &Error{Kind: KindAPI, StatusCode: statusCode, Message: errorMessage(raw)}
	}

	if raw, ok := fields["errors"]; ok {
		return nil, &Error{Kind: KindAPI, StatusCode: statusCode, Message: errorsMessage(raw)}
	}

	if statusCode != http.StatusOK && statusCode != http.StatusAccepted {
		return nil, &Error{
			Kind:       KindAPI,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("Request failed. Response Code: %d", statusCode),
		}
	}

	if returnKey != "" {
		if raw, ok := fields[returnKey]; ok {
			return raw, nil
		}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// errorMessage reads {"message": "..."} or a bare string.
func errorMessage(raw json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return scalarString(raw)
}

// errorsMessage joins the values of every entry with ";". A non-sequence value
// is used as the message directly.
func errorsMessage(raw json.RawMessage) string {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		if values, ok := orderedValues(raw); ok {
			return strings.Join(values, ";")
		}
		return scalarString(raw)
	}

	var values []string
	for _, entry := range entries {
		if vals, ok := orderedValues(entry); ok {
			values = append(values, vals...)
			continue
		}
		if s := scalarString(entry); s != "" {
			values = append(values, s)
		}
	}
	return strings.Join(values, ";")
}

// orderedValues returns the non-null values of a JSON array or object in
// document order. ok is false for scalars.
func orderedValues(raw json.RawMessage) ([]string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '[' && delim != '{') {
		return nil, false
	}

	var values []string
	for dec.More() {
		if delim == '{' {
			// key
			if _, err := dec.Token(); err != nil {
				return values, true
			}
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return values, true
		}
		if s := scalarString(v); s != "" {
			values = append(values, s)
		}
	}
	return values, true
}

func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}
