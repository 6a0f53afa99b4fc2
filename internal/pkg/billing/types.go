package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
)

// ReconcileResult is the outcome of a reconciliation run for one reference.
// Applied is true only for the call that performed the terminal transition;
// repeated calls return the recorded outcome with Applied=false.
type ReconcileResult struct {
	Payment      *models.Payment
	Subscription *models.Subscription
	Outcome      string
	Applied      bool
	Mismatch     bool
}

// WebhookResult is the normalized outcome of webhook ingress processing. The
// controller maps it onto HTTP status codes.
type WebhookResult struct {
	Event          *models.WebhookEvent
	SignatureValid bool
	Duplicate      bool
	Ignored        bool
	Reconcile      *ReconcileResult
}

// ChargeEvent is the parsed shape of a Paystack charge webhook payload.
type ChargeEvent struct {
	Event         string
	TransactionID int64
	Reference     string
	Status        string
	AmountMinor   int64
	Currency      string
	PaidAt        *time.Time
	UserID        uint
	Plan          string
}

// ParsePaystackWebhookEvent extracts the fields the reconciliation path needs
// from a raw webhook body. Metadata user_id tolerates both string and number
// encodings since initialize metadata round-trips through the processor.
func ParsePaystackWebhookEvent(payload []byte) (*ChargeEvent, error) {
	var raw struct {
		Event string `json:"event"`
		Data  struct {
			ID        int64  `json:"id"`
			Reference string `json:"reference"`
			Status    string `json:"status"`
			Amount    int64  `json:"amount"`
			Currency  string `json:"currency"`
			PaidAt    string `json:"paid_at"`
			Metadata  struct {
				UserID json.RawMessage `json:"user_id"`
				Plan   string          `json:"plan"`
			} `json:"metadata"`
		} `json:"data"`
	}

	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("webhook payload malformed: %w", err)
	}
	if strings.TrimSpace(raw.Event) == "" {
		return nil, errors.New("webhook payload missing event type")
	}

	out := &ChargeEvent{
		Event:         strings.ToLower(strings.TrimSpace(raw.Event)),
		TransactionID: raw.Data.ID,
		Reference:     strings.TrimSpace(raw.Data.Reference),
		Status:        strings.ToLower(strings.TrimSpace(raw.Data.Status)),
		AmountMinor:   raw.Data.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(raw.Data.Currency)),
		Plan:          strings.ToLower(strings.TrimSpace(raw.Data.Metadata.Plan)),
	}
	if ts := strings.TrimSpace(raw.Data.PaidAt); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			out.PaidAt = &t
		}
	}
	if id, ok := coerceUint(raw.Data.Metadata.UserID); ok {
		out.UserID = id
	}
	return out, nil
}

// EventID returns the dedup key for this delivery. Paystack carries no
// delivery id header, so the processor transaction id is used.
func (e *ChargeEvent) EventID() string {
	if e.TransactionID > 0 {
		return strconv.FormatInt(e.TransactionID, 10)
	}
	return ""
}

func coerceUint(raw json.RawMessage) (uint, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return uint(n), n > 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err == nil {
			return uint(n), n > 0
		}
	}
	return 0, false
}
