package billing

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"
)

func TestVerifyPaystackWebhookSignature(t *testing.T) {
	payload := []byte(`{"event":"charge.success"}`)
	secret := "sk_test_secret"

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	validSig := hex.EncodeToString(mac.Sum(nil))

	if !VerifyPaystackWebhookSignature(payload, validSig, secret) {
		t.Fatalf("expected signature to validate")
	}
	if VerifyPaystackWebhookSignature(payload, validSig, "other-secret") {
		t.Fatalf("expected signature with wrong secret to fail")
	}
	if VerifyPaystackWebhookSignature([]byte(`{"event":"tampered"}`), validSig, secret) {
		t.Fatalf("expected tampered payload to fail")
	}
	if VerifyPaystackWebhookSignature(payload, "deadbeef", secret) {
		t.Fatalf("expected invalid signature to fail")
	}
	if VerifyPaystackWebhookSignature(payload, "", secret) {
		t.Fatalf("expected empty signature to fail")
	}
	if VerifyPaystackWebhookSignature(payload, validSig, "") {
		t.Fatalf("expected empty secret to fail")
	}
}
