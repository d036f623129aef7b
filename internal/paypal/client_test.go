package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePayPal struct {
	t          *testing.T
	expiresIn  int
	tokenDelay time.Duration
	tokenHits  atomic.Int32
	handler    http.HandlerFunc
}

func (f *fakePayPal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/oauth2/token" {
		f.tokenHits.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(f.t, ok)
		assert.Equal(f.t, "client", user)
		assert.Equal(f.t, "secret", pass)
		require.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "client_credentials", r.Form.Get("grant_type"))
		if f.tokenDelay > 0 {
			time.Sleep(f.tokenDelay)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":%d}`, f.tokenHits.Load(), f.expiresIn)
		return
	}
	f.handler(w, r)
}

func newTestClient(t *testing.T, f *fakePayPal) *Client {
	t.Helper()
	f.t = t
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", ClientID: "client", ClientSecret: "secret", Timeout: 5 * time.Second})
}

func TestClientCachesToken(t *testing.T) {
	var auth []string
	var mu sync.Mutex
	f := &fakePayPal{expiresIn: 3600, handler: func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		_, _ = io.WriteString(w, `{"id":"PO1","status":"CREATED"}`)
	}}
	c := newTestClient(t, f)

	for i := 0; i < 3; i++ {
		o, err := c.GetOrder(context.Background(), "PO1")
		require.NoError(t, err)
		assert.Equal(t, "PO1", o.ID)
	}

	assert.EqualValues(t, 1, f.tokenHits.Load())
	assert.Equal(t, []string{"Bearer tok-1", "Bearer tok-1", "Bearer tok-1"}, auth)
}

func TestClientRefreshesTokenInsideExpiryBuffer(t *testing.T) {
	// 30s lifetime is inside the one minute buffer, so it is never reused.
	f := &fakePayPal{expiresIn: 30, handler: func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"PO1","status":"CREATED"}`)
	}}
	c := newTestClient(t, f)

	_, err := c.GetOrder(context.Background(), "PO1")
	require.NoError(t, err)
	_, err = c.GetOrder(context.Background(), "PO1")
	require.NoError(t, err)

	assert.EqualValues(t, 2, f.tokenHits.Load())
}

func TestClientSingleFlightTokenRefresh(t *testing.T) {
	f := &fakePayPal{expiresIn: 3600, tokenDelay: 100 * time.Millisecond, handler: func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"S1","status":"ACTIVE"}`)
	}}
	c := newTestClient(t, f)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetSubscription(context.Background(), "S1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.tokenHits.Load())
}

func TestVerifyWebhookSignatureRequest(t *testing.T) {
	var got VerifyWebhookRequest
	f := &fakePayPal{expiresIn: 3600, handler: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/notifications/verify-webhook-signature", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"verification_status":"SUCCESS"}`)
	}}
	c := newTestClient(t, f)

	resp, err := c.VerifyWebhookSignature(context.Background(), VerifyWebhookRequest{
		AuthAlgo:         "SHA256withRSA",
		CertURL:          "https://api.paypal.com/cert",
		TransmissionID:   "tx-1",
		TransmissionSig:  "sig",
		TransmissionTime: "2024-01-01T00:00:00Z",
		WebhookID:        "WH-1",
		WebhookEvent:     json.RawMessage(`{"id":"WH-EVT-1"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, VerificationSuccess, resp.VerificationStatus)
	assert.Equal(t, "WH-1", got.WebhookID)
	assert.Equal(t, "tx-1", got.TransmissionID)
	assert.JSONEq(t, `{"id":"WH-EVT-1"}`, string(got.WebhookEvent))
}

func TestClientAPIError(t *testing.T) {
	f := &fakePayPal{expiresIn: 3600, handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"name":"UNPROCESSABLE_ENTITY"}`)
	}}
	c := newTestClient(t, f)

	_, err := c.CaptureOrder(context.Background(), "PO1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "/v2/checkout/orders/PO1/capture", apiErr.Path)
	assert.Contains(t, apiErr.Body, "UNPROCESSABLE_ENTITY")
}

func TestCancelSubscriptionNoContent(t *testing.T) {
	var reason map[string]string
	f := &fakePayPal{expiresIn: 3600, handler: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/billing/subscriptions/S1/cancel", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reason))
		w.WriteHeader(http.StatusNoContent)
	}}
	c := newTestClient(t, f)

	require.NoError(t, c.CancelSubscription(context.Background(), "S1", "too expensive"))
	assert.Equal(t, "too expensive", reason["reason"])
}

func TestOrderCaptureID(t *testing.T) {
	var o Order
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "PO1",
		"status": "COMPLETED",
		"purchase_units": [{"payments": {"captures": [{"id": "CAP1", "status": "COMPLETED", "amount": {"currency_code": "USD", "value": "42.50"}}]}}]
	}`), &o))
	assert.Equal(t, "CAP1", o.CaptureID())

	bare := Order{ID: "PO2"}
	assert.Equal(t, "PO2", bare.CaptureID())
}
