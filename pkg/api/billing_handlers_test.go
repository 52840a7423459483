package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/onramp/pkg/apperr"
	"github.com/platinummonkey/onramp/pkg/billing"
)

func postWebhook(ts *testServer, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/billing/webhook", strings.NewReader(body))
	req.Header.Set(stripeSignatureHeader, signature)
	w := httptest.NewRecorder()
	ts.ServeHTTP(w, req)
	return w
}

func TestHandleWebhook(t *testing.T) {
	ts := newTestServer(t)
	var gotPayload, gotSignature string
	ts.billing.handleWebhookFunc = func(ctx context.Context, payload []byte, signature string) (string, error) {
		gotPayload, gotSignature = string(payload), signature
		return billing.WebhookApplied, nil
	}

	w := postWebhook(ts, `{"id":"evt_1"}`, "t=1,v1=abc")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"id":"evt_1"}`, gotPayload)
	assert.Equal(t, "t=1,v1=abc", gotSignature)
	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, billing.WebhookApplied, resp.Result)
}

func TestHandleWebhook_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	ts.billing.handleWebhookFunc = func(ctx context.Context, payload []byte, signature string) (string, error) {
		return billing.WebhookDuplicate, nil
	}

	w := postWebhook(ts, `{}`, "sig")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":"duplicate"}`, w.Body.String())
}

func TestHandleWebhook_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad signature", fmt.Errorf("%w: no valid signature", billing.ErrInvalidSignature), http.StatusBadRequest},
		{"unknown customer", apperr.NotFound("organization", "cus_9"), http.StatusNotFound},
		{"database down", apperr.Dependency("postgres", "set tier", errors.New("refused")), http.StatusServiceUnavailable},
		{"missing secret", apperr.Configuration("webhook secret is not configured"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.billing.handleWebhookFunc = func(ctx context.Context, payload []byte, signature string) (string, error) {
				return billing.WebhookFailed, tt.err
			}

			w := postWebhook(ts, `{}`, "sig")

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHandleWebhook_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t)
	called := false
	ts.billing.handleWebhookFunc = func(ctx context.Context, payload []byte, signature string) (string, error) {
		called = true
		return billing.WebhookApplied, nil
	}

	w := postWebhook(ts, strings.Repeat("a", maxBodyBytes+1), "sig")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}
