package sendgrid

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyResponse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		status     int
		body       string
		returnKey  string
		wantErr    string
		wantStatus int
		wantBody   string
	}{
		{
			name:    "errors sequence joined across entries",
			status:  http.StatusBadRequest,
			body:    `{"errors":[["msg1"],["msg2"]]}`,
			wantErr: "msg1;msg2",
		},
		{
			name:    "errors objects keep field order and skip nulls",
			status:  http.StatusBadRequest,
			body:    `{"errors":[{"message":"The from email does not contain a valid address.","field":"from.email","help":null}]}`,
			wantErr: "The from email does not contain a valid address.;from.email",
		},
		{
			name:    "errors string used directly",
			status:  http.StatusBadRequest,
			body:    `{"errors":"something broke"}`,
			wantErr: "something broke",
		},
		{
			name:    "error field wins over 200",
			status:  http.StatusOK,
			body:    `{"error":{"message":"bad key"}}`,
			wantErr: "bad key",
		},
		{
			name:    "error field wins over errors field",
			status:  http.StatusUnauthorized,
			body:    `{"error":{"message":"first"},"errors":[["second"]]}`,
			wantErr: "first",
		},
		{
			name:    "status without error fields",
			status:  http.StatusInternalServerError,
			body:    `{"ok":false}`,
			wantErr: "Request failed. Response Code: 500",
		},
		{
			name:    "non JSON body with bad status",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantErr: "Request failed. Response Code: 502",
		},
		{
			name:     "202 with clean body",
			status:   http.StatusAccepted,
			body:     `{"id":"abc"}`,
			wantBody: `{"id":"abc"}`,
		},
		{
			name:   "202 with empty body",
			status: http.StatusAccepted,
			body:   ``,
		},
		{
			name:      "narrowed to return key",
			status:    http.StatusOK,
			body:      `{"scopes":["mail.send"]}`,
			returnKey: "scopes",
			wantBody:  `["mail.send"]`,
		},
		{
			name:      "missing return key returns full body",
			status:    http.StatusOK,
			body:      `{"other":1}`,
			returnKey: "scopes",
			wantBody:  `{"other":1}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			body, err := classifyResponse(tc.status, []byte(tc.body), tc.returnKey)
			if tc.wantErr != "" {
				require.Error(t, err)
				var sgErr *Error
				require.True(t, errors.As(err, &sgErr))
				assert.Equal(t, KindAPI, sgErr.Kind)
				assert.Equal(t, tc.wantErr, sgErr.Message)
				assert.Equal(t, tc.status, sgErr.StatusCode)
				return
			}

			require.NoError(t, err)
			if tc.wantBody == "" {
				assert.Nil(t, body)
				return
			}
			assert.JSONEq(t, tc.wantBody, string(body))
		})
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindTransport, Message: "dial"})
	assert.Equal(t, KindTransport, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}
