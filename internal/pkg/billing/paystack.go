package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

const defaultPaystackAPIBaseURL = "https://api.paystack.co"

// PaystackClient is a thin typed wrapper around Paystack's transaction
// endpoints. It performs no retries; retry policy belongs to callers.
type PaystackClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// InitializeTransactionResult holds the processor-side handle for a new
// transaction. AuthorizationURL is the checkout page the customer is sent to.
type InitializeTransactionResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyTransactionResult is the confirmed state of a transaction as reported
// by the processor. Amount is in minor units (kobo).
type VerifyTransactionResult struct {
	Status          string
	AmountMinor     int64
	Currency        string
	PaidAt          *time.Time
	GatewayResponse string
	Channel         string
}

func NewPaystackClientFromEnv() *PaystackClient {
	return &PaystackClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("PAYSTACK_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("PAYSTACK_API_BASE_URL", defaultPaystackAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// paystackEnvelope is the common {status, message, data} response wrapper.
type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeTransaction creates a processor-side transaction. The reference is
// chosen by us so the ledger entry and the processor record stay correlatable.
func (c *PaystackClient) InitializeTransaction(ctx context.Context, email string, amountMinor int64, reference string, metadata map[string]interface{}) (*InitializeTransactionResult, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("PAYSTACK_SECRET_KEY is not configured")
	}
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: customer email is required", ErrGatewayRejected)
	}
	if amountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrGatewayRejected)
	}

	payload := map[string]interface{}{
		"email":     strings.TrimSpace(email),
		"amount":    amountMinor,
		"reference": strings.TrimSpace(reference),
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	data, err := c.do(ctx, http.MethodPost, "/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var out struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("paystack initialize response malformed: %w", err)
	}
	if strings.TrimSpace(out.AuthorizationURL) == "" {
		return nil, fmt.Errorf("%w: initialize returned no authorization_url", ErrGatewayRejected)
	}
	return &InitializeTransactionResult{
		AuthorizationURL: out.AuthorizationURL,
		AccessCode:       out.AccessCode,
		Reference:        strings.TrimSpace(out.Reference),
	}, nil
}

// VerifyTransaction fetches the confirmed state of a transaction by reference.
func (c *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (*VerifyTransactionResult, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("PAYSTACK_SECRET_KEY is not configured")
	}
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrGatewayRejected)
	}

	data, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+ref, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Status          string `json:"status"`
		Amount          int64  `json:"amount"`
		Currency        string `json:"currency"`
		PaidAt          string `json:"paid_at"`
		GatewayResponse string `json:"gateway_response"`
		Channel         string `json:"channel"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("paystack verify response malformed: %w", err)
	}

	result := &VerifyTransactionResult{
		Status:          strings.ToLower(strings.TrimSpace(out.Status)),
		AmountMinor:     out.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(out.Currency)),
		GatewayResponse: out.GatewayResponse,
		Channel:         out.Channel,
	}
	if ts := strings.TrimSpace(out.PaidAt); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			result.PaidAt = &t
		}
	}
	return result, nil
}

func (c *PaystackClient) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrGatewayUnavailable, resp.StatusCode, string(raw))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrGatewayRejected, resp.StatusCode, string(raw))
	}

	var envlp paystackEnvelope
	if err := json.Unmarshal(raw, &envlp); err != nil {
		return nil, fmt.Errorf("paystack response malformed: %w", err)
	}
	if !envlp.Status {
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, envlp.Message)
	}
	return envlp.Data, nil
}
