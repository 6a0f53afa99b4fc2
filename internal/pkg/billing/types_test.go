package billing

import "testing"

func TestParsePaystackWebhookEvent(t *testing.T) {
	raw := []byte(`{
		"event": "charge.success",
		"data": {
			"id": 302961,
			"reference": "pf_abc123",
			"status": "success",
			"amount": 15000,
			"currency": "NGN",
			"paid_at": "2024-05-01T12:34:56Z",
			"metadata": { "user_id": 7, "plan": "premium" }
		}
	}`)

	ev, err := ParsePaystackWebhookEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Event != "charge.success" {
		t.Fatalf("unexpected event type %q", ev.Event)
	}
	if ev.Reference != "pf_abc123" || ev.AmountMinor != 15000 || ev.Currency != "NGN" {
		t.Fatalf("unexpected charge fields: %+v", ev)
	}
	if ev.UserID != 7 || ev.Plan != "premium" {
		t.Fatalf("unexpected metadata: user=%d plan=%q", ev.UserID, ev.Plan)
	}
	if ev.PaidAt == nil {
		t.Fatalf("expected paid_at to parse")
	}
	if ev.EventID() != "302961" {
		t.Fatalf("unexpected event id %q", ev.EventID())
	}
}

func TestParsePaystackWebhookEvent_StringUserID(t *testing.T) {
	raw := []byte(`{
		"event": "charge.success",
		"data": {
			"reference": "pf_xyz",
			"amount": 5000,
			"metadata": { "user_id": "42", "plan": "basic" }
		}
	}`)

	ev, err := ParsePaystackWebhookEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.UserID != 42 {
		t.Fatalf("expected string user_id to coerce, got %d", ev.UserID)
	}
	if ev.EventID() != "" {
		t.Fatalf("expected empty event id without data.id, got %q", ev.EventID())
	}
}

func TestParsePaystackWebhookEvent_Invalid(t *testing.T) {
	if _, err := ParsePaystackWebhookEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected parse error for non-JSON payload")
	}
	if _, err := ParsePaystackWebhookEvent([]byte(`{"data":{}}`)); err == nil {
		t.Fatalf("expected parse error for missing event type")
	}
}
