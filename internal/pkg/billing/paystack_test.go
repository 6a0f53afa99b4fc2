package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestPaystackClient(srv *httptest.Server) *PaystackClient {
	return &PaystackClient{
		SecretKey:  "sk_test_abc",
		APIBaseURL: srv.URL,
		HTTPClient: srv.Client(),
	}
}

func TestPaystackInitializeTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transaction/initialize" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_abc" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Authorization URL created",
			"data": {
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code": "ac_123",
				"reference": "pf_ref_1"
			}
		}`))
	}))
	defer srv.Close()

	client := newTestPaystackClient(srv)
	res, err := client.InitializeTransaction(context.Background(), "jane@example.com", 15000, "pf_ref_1", map[string]interface{}{"plan": "premium"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AuthorizationURL != "https://checkout.paystack.com/abc" || res.AccessCode != "ac_123" || res.Reference != "pf_ref_1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPaystackVerifyTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/pf_ref_1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"status": "success",
				"amount": 15000,
				"currency": "NGN",
				"paid_at": "2024-05-01T12:00:00Z",
				"gateway_response": "Successful",
				"channel": "card"
			}
		}`))
	}))
	defer srv.Close()

	client := newTestPaystackClient(srv)
	res, err := client.VerifyTransaction(context.Background(), "pf_ref_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "success" || res.AmountMinor != 15000 || res.Currency != "NGN" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.PaidAt == nil || !res.PaidAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected paid_at: %v", res.PaidAt)
	}
}

func TestPaystackErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       error
	}{
		{name: "server error", statusCode: http.StatusBadGateway, body: `oops`, want: ErrGatewayUnavailable},
		{name: "client error", statusCode: http.StatusNotFound, body: `{"status":false,"message":"Transaction reference not found"}`, want: ErrGatewayRejected},
		{name: "false envelope", statusCode: http.StatusOK, body: `{"status":false,"message":"Invalid key"}`, want: ErrGatewayRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newTestPaystackClient(srv)
			if _, err := client.VerifyTransaction(context.Background(), "pf_ref"); !errors.Is(err, tt.want) {
				t.Fatalf("VerifyTransaction error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPaystackNetworkErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // force a connection error

	client := &PaystackClient{
		SecretKey:  "sk_test_abc",
		APIBaseURL: srv.URL,
		HTTPClient: &http.Client{Timeout: time.Second},
	}
	if _, err := client.VerifyTransaction(context.Background(), "pf_ref"); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}
