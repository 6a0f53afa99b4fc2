package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/database"
	"github.com/ManuelReschke/PayFox/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const subscriptionCacheTTL = 60 * time.Second

func subscriptionCacheKey(userID uint) string {
	return fmt.Sprintf("billing:subscription:%d", userID)
}

type initializePaymentRequest struct {
	Plan string `json:"plan"`
}

// HandleInitializePayment creates a processor checkout session and the pending
// ledger entry for the authenticated user.
func HandleInitializePayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req initializePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}

	user, err := loadUser(userCtx.UserID)
	if err != nil {
		return err
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	payment, err := svc.InitializePayment(ctx, user.ID, user.Email, req.Plan)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrUnknownPlan):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_plan", "message": "Plan must be one of basic, premium, enterprise"})
		case errors.Is(err, billing.ErrGatewayUnavailable):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "gateway_unavailable", "message": "Payment processor is unreachable, try again"})
		case errors.Is(err, billing.ErrGatewayRejected):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_rejected", "message": "Payment processor rejected the request"})
		default:
			log.Errorf("[BillingController] initialize payment for user %d failed: %v", user.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Payment could not be initialized"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"reference":         payment.Reference,
		"authorization_url": payment.AuthorizationURL,
		"access_code":       payment.AccessCode,
		"plan":              payment.Plan,
		"amount_minor":      payment.AmountMinor,
		"currency":          payment.Currency,
		"status":            payment.Status,
	})
}

// HandleVerifyPayment reconciles a payment against the processor and returns
// the recorded outcome. Safe to call repeatedly; finalization happens once.
func HandleVerifyPayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	reference := strings.TrimSpace(c.Params("reference"))
	if reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Payment reference is required"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Authorize on the stored ledger entry before any processor round-trip:
	// only the owner (or an admin) may trigger reconciliation.
	payment, err := svc.GetPayment(ctx, reference)
	if err != nil {
		if errors.Is(err, billing.ErrUnknownPayment) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown payment reference"})
		}
		log.Errorf("[BillingController] load payment %s failed: %v", reference, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Payment verification failed"})
	}
	if payment.UserID != userCtx.UserID && !userCtx.IsAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Payment belongs to another account"})
	}

	res, err := svc.Reconcile(ctx, reference)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrUnknownPayment):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown payment reference"})
		case errors.Is(err, billing.ErrPaymentMismatch):
			// Recorded as failed; the client sees the terminal outcome.
		case errors.Is(err, billing.ErrGatewayUnavailable):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "gateway_unavailable", "message": "Payment processor is unreachable, try again"})
		default:
			log.Errorf("[BillingController] verify payment %s failed: %v", reference, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Payment verification failed"})
		}
	}

	if res.Applied {
		_ = cache.Delete(subscriptionCacheKey(res.Payment.UserID))
	}

	body := fiber.Map{
		"reference":    res.Payment.Reference,
		"status":       res.Payment.Status,
		"plan":         res.Payment.Plan,
		"amount_minor": res.Payment.AmountMinor,
		"currency":     res.Payment.Currency,
		"paid_at":      formatTimePtr(res.Payment.PaidAt),
	}
	if res.Subscription != nil {
		body["subscription"] = subscriptionResponse(res.Subscription)
	}
	return c.JSON(body)
}

// HandleListPayments returns the authenticated user's payment history.
func HandleListPayments(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	payments, err := svc.ListPayments(context.Background(), userCtx.UserID)
	if err != nil {
		log.Errorf("[BillingController] list payments for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payments"})
	}

	items := make([]fiber.Map, 0, len(payments))
	for _, p := range payments {
		items = append(items, fiber.Map{
			"reference":    p.Reference,
			"status":       p.Status,
			"plan":         p.Plan,
			"amount_minor": p.AmountMinor,
			"currency":     p.Currency,
			"description":  p.Description,
			"paid_at":      formatTimePtr(p.PaidAt),
			"created_at":   p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(fiber.Map{"payments": items})
}

// HandleGetSubscription returns the user's current entitlement. The response
// is cached briefly; reconciliation and cancel drop the cache entry.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	cacheKey := subscriptionCacheKey(userCtx.UserID)
	if cached, err := cache.Get(cacheKey); err == nil && cached != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(cached)
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	sub, err := svc.GetSubscription(context.Background(), userCtx.UserID)
	if err != nil {
		log.Errorf("[BillingController] load subscription for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscription"})
	}

	if encoded, err := json.Marshal(subscriptionResponse(sub)); err == nil {
		if err := cache.Set(cacheKey, string(encoded), subscriptionCacheTTL); err != nil {
			log.Warnf("[BillingController] subscription cache write for user %d failed: %v", userCtx.UserID, err)
		}
	}
	return c.JSON(subscriptionResponse(sub))
}

// HandleCancelSubscription cancels the user's subscription immediately.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	sub, err := svc.CancelSubscription(context.Background(), userCtx.UserID)
	if err != nil {
		log.Errorf("[BillingController] cancel subscription for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Subscription could not be cancelled"})
	}
	_ = cache.Delete(subscriptionCacheKey(userCtx.UserID))
	return c.JSON(subscriptionResponse(sub))
}

// HandlePaystackWebhook is the processor-facing ingress. Status codes steer
// redelivery: 2xx stops it, 5xx requests it. Business failures respond 200 so
// the processor does not retry what the ledger already recorded.
func HandlePaystackWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Paystack-Signature"))

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	res, err := svc.ProcessWebhook(ctx, rawBody, signature)
	if err != nil {
		if errors.Is(err, billing.ErrGatewayUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "gateway_unavailable"})
		}
		log.Errorf("[BillingController] webhook processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	if !res.SignatureValid {
		log.Warnf("[BillingController] webhook with invalid signature from %s", clientIP(c))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if res.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if res.Ignored {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	body := fiber.Map{"ok": true}
	if res.Reconcile != nil {
		body["status"] = res.Reconcile.Outcome
		if res.Reconcile.Applied && res.Reconcile.Payment != nil {
			_ = cache.Delete(subscriptionCacheKey(res.Reconcile.Payment.UserID))
		}
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

func subscriptionResponse(sub *models.Subscription) fiber.Map {
	return fiber.Map{
		"plan":         sub.Plan,
		"status":       sub.Status,
		"start_date":   sub.StartDate.UTC().Format(time.RFC3339),
		"end_date":     formatTimePtr(sub.EndDate),
		"auto_renew":   sub.AutoRenew,
		"amount_minor": sub.AmountMinor,
		"currency":     sub.Currency,
	}
}
