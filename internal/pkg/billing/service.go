package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Gateway is the processor-side contract the reconciliation engine consumes.
type Gateway interface {
	InitializeTransaction(ctx context.Context, email string, amountMinor int64, reference string, metadata map[string]interface{}) (*InitializeTransactionResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*VerifyTransactionResult, error)
}

// Notifier is the notification collaborator. Delivery is out of scope here;
// the billing service only emits creation calls.
type Notifier interface {
	Notify(ctx context.Context, userID uint, notificationType, content string, referenceID uint) error
}

// Service owns the write path into the payment ledger and the subscription
// store. Both the client-triggered verify poll and the webhook ingress
// converge on Reconcile, which is idempotent per payment reference.
type Service struct {
	repo          Repository
	gateway       Gateway
	notifier      Notifier
	cycle         time.Duration
	webhookSecret string
}

// NewService creates a billing service with injected collaborators. A zero
// cycle falls back to the default 30-day billing cycle.
func NewService(repo Repository, gateway Gateway, notifier Notifier, cycle time.Duration) *Service {
	if cycle <= 0 {
		cycle = DefaultCycle
	}
	return &Service{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		cycle:    cycle,
	}
}

// CycleFromEnv returns the billing cycle length, overridable through
// BILLING_CYCLE_DAYS.
func CycleFromEnv() time.Duration {
	if days := env.GetEnv("BILLING_CYCLE_DAYS", ""); days != "" {
		if d, err := time.ParseDuration(days + "h"); err == nil && d > 0 {
			return d * 24
		}
	}
	return DefaultCycle
}

// NewServiceFromDB creates a billing service wired for production use: GORM
// repository, Paystack client and DB-backed notifier, configured from env.
func NewServiceFromDB(db *gorm.DB) *Service {
	svc := NewService(NewRepository(db), NewPaystackClientFromEnv(), NewDBNotifier(db), CycleFromEnv())
	svc.webhookSecret = env.GetEnv("PAYSTACK_WEBHOOK_SECRET", env.GetEnv("PAYSTACK_SECRET_KEY", ""))
	return svc
}

// SetWebhookSecret overrides the shared webhook secret (used by tests).
func (s *Service) SetWebhookSecret(secret string) {
	s.webhookSecret = secret
}

// InitializePayment creates a processor-side transaction and the pending
// ledger entry for it. The reference is generated locally so the webhook and
// the poll path can both correlate the processor record to our row.
func (s *Service) InitializePayment(ctx context.Context, userID uint, email, plan string) (*models.Payment, error) {
	p := normalizePlan(plan)
	price, ok := PlanPriceMinor(string(p))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	if userID == 0 || strings.TrimSpace(email) == "" {
		return nil, errors.New("user_id and email are required")
	}

	reference := "pf_" + uuid.NewString()
	init, err := s.gateway.InitializeTransaction(ctx, email, price, reference, map[string]interface{}{
		"user_id": userID,
		"plan":    string(p),
	})
	if err != nil {
		return nil, err
	}
	if init.Reference != "" {
		reference = init.Reference
	}

	payment := &models.Payment{
		UserID:           userID,
		Reference:        reference,
		Plan:             string(p),
		AmountMinor:      price,
		Currency:         models.DefaultCurrency,
		Status:           models.PaymentStatusPending,
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
		Description:      fmt.Sprintf("%s plan subscription", capitalize(string(p))),
	}
	if err := s.repo.CreatePayment(payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// Reconcile verifies a payment against the processor and applies the outcome
// exactly once. Already-terminal payments short-circuit with the recorded
// outcome; that check plus the repository's compare-and-set finalize is the
// idempotency boundary for concurrent poll/webhook verification.
func (s *Service) Reconcile(ctx context.Context, reference string) (*ReconcileResult, error) {
	payment, err := s.repo.GetPaymentByReference(reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownPayment
		}
		return nil, err
	}
	if payment.IsTerminal() {
		return &ReconcileResult{Payment: payment, Outcome: payment.Status}, nil
	}

	verify, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrGatewayRejected) {
			// Processor does not know the transaction or refuses it for good.
			return s.finalizeFailed(ctx, reference, nil, err)
		}
		// Transient: payment stays pending, caller retries.
		return nil, err
	}

	switch verify.Status {
	case "success":
		if verify.AmountMinor != payment.AmountMinor || !strings.EqualFold(verify.Currency, payment.Currency) {
			log.Warnf("[Billing] payment %s amount mismatch: verified %d %s, ledger %d %s",
				reference, verify.AmountMinor, verify.Currency, payment.AmountMinor, payment.Currency)
			res, err := s.finalizeFailed(ctx, reference, verify.PaidAt, nil)
			if err != nil {
				return nil, err
			}
			res.Mismatch = true
			return res, ErrPaymentMismatch
		}

		fin, err := s.repo.FinalizeAndActivate(reference, models.PaymentStatusSuccess, verify.PaidAt, s.cycle)
		if err != nil {
			return nil, err
		}
		res := &ReconcileResult{
			Payment:      fin.Payment,
			Subscription: fin.Subscription,
			Outcome:      fin.Payment.Status,
			Applied:      fin.Applied,
		}
		if fin.Applied && fin.Subscription != nil {
			s.notifyActivation(ctx, fin.Payment, fin.Subscription)
		}
		return res, nil

	case "failed", "abandoned", "reversed":
		return s.finalizeFailed(ctx, reference, verify.PaidAt, nil)

	default:
		// Still pending/ongoing at the processor: nothing to apply yet.
		return &ReconcileResult{Payment: payment, Outcome: payment.Status}, nil
	}
}

func (s *Service) finalizeFailed(ctx context.Context, reference string, paidAt *time.Time, cause error) (*ReconcileResult, error) {
	_ = ctx
	fin, err := s.repo.FinalizeAndActivate(reference, models.PaymentStatusFailed, paidAt, 0)
	if err != nil {
		return nil, err
	}
	if cause != nil && fin.Applied {
		log.Infof("[Billing] payment %s finalized as failed: %v", reference, cause)
	}
	return &ReconcileResult{
		Payment: fin.Payment,
		Outcome: fin.Payment.Status,
		Applied: fin.Applied,
	}, nil
}

func (s *Service) notifyActivation(ctx context.Context, payment *models.Payment, sub *models.Subscription) {
	content := fmt.Sprintf("Your %s subscription is active", sub.Plan)
	if sub.EndDate != nil {
		content = fmt.Sprintf("%s until %s", content, sub.EndDate.UTC().Format("2006-01-02"))
	}
	if err := s.notifier.Notify(ctx, payment.UserID, models.NotificationTypeSubscription, content, sub.ID); err != nil {
		// The ledger is already correct; a lost notification must not unwind it.
		log.Errorf("[Billing] activation notification for payment %s failed: %v", payment.Reference, err)
	}
}

// ExpireLapsedSubscriptions downgrades paid subscriptions, active or
// cancelled, whose validity window elapsed. Safe to run concurrently with
// Reconcile; the repository re-checks the end date at write time.
func (s *Service) ExpireLapsedSubscriptions(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireDueSubscriptions(time.Now())
	for _, sub := range expired {
		content := "Your subscription expired and your account was moved to the free plan"
		if nerr := s.notifier.Notify(ctx, sub.UserID, models.NotificationTypeSubscription, content, sub.ID); nerr != nil {
			log.Errorf("[Billing] expiry notification for user %d failed: %v", sub.UserID, nerr)
		}
		log.Infof("[Billing] subscription expired for user %d", sub.UserID)
	}
	return len(expired), err
}

// GetSubscription returns the user's subscription, lazily creating the free
// default so the entitlement is never absent.
func (s *Service) GetSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	return s.repo.GetOrCreateSubscription(userID)
}

// GetPayment returns the ledger entry for a reference without touching the
// processor. Callers use it to authorize before triggering reconciliation.
func (s *Service) GetPayment(ctx context.Context, reference string) (*models.Payment, error) {
	_ = ctx
	p, err := s.repo.GetPaymentByReference(reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownPayment
		}
		return nil, err
	}
	return p, nil
}

// CancelSubscription stops renewal and marks the entitlement cancelled. The
// paid plan keeps its remaining validity; the expiry sweep reaps it once the
// end date passes.
func (s *Service) CancelSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.repo.CancelSubscription(userID)
	if err != nil {
		return nil, err
	}
	content := "Your subscription was cancelled"
	if nerr := s.notifier.Notify(ctx, userID, models.NotificationTypeSubscription, content, sub.ID); nerr != nil {
		log.Errorf("[Billing] cancel notification for user %d failed: %v", userID, nerr)
	}
	return sub, nil
}

// ListPayments returns the caller's ledger entries, newest first.
func (s *Service) ListPayments(ctx context.Context, userID uint) ([]models.Payment, error) {
	_ = ctx
	return s.repo.ListPaymentsByUser(userID)
}

// ListStalePendingPayments returns pending payments older than cutoff for the
// background compensating reconciler.
func (s *Service) ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	_ = ctx
	return s.repo.ListPendingPaymentsOlderThan(cutoff, limit)
}

// ProcessWebhook runs the full ingress pipeline for one delivery: signature
// check, idempotent event recording, provisional payment creation for
// webhook-first arrivals, and reconciliation. A non-nil error means the
// failure was transient and the processor should redeliver; business
// failures are absorbed into the result so the processor stops retrying.
func (s *Service) ProcessWebhook(ctx context.Context, rawPayload []byte, signatureHeader string) (*WebhookResult, error) {
	sigValid := VerifyPaystackWebhookSignature(rawPayload, signatureHeader, s.webhookSecret)

	event, parseErr := ParsePaystackWebhookEvent(rawPayload)
	eventID := ""
	eventType := ""
	paymentRef := ""
	if parseErr == nil {
		eventID = event.EventID()
		eventType = event.Event
		paymentRef = event.Reference
	}

	if !sigValid {
		// Rejected deliveries are recorded for audit but must never occupy
		// the (provider, provider_event_id) dedup slot: an unauthenticated
		// sender could otherwise block a later genuine delivery carrying the
		// same processor event id.
		rejected := &models.WebhookEvent{
			Provider:        models.ProviderPaystack,
			ProviderEventID: "rejected:" + uuid.NewString(),
			EventType:       eventType,
			PaymentRef:      paymentRef,
			PayloadJSON:     string(rawPayload),
			SignatureValid:  false,
			Outcome:         models.WebhookOutcomeRejected,
		}
		if err := s.repo.CreateWebhookEvent(rejected); err != nil {
			log.Errorf("[Billing] recording rejected webhook delivery failed: %v", err)
		} else {
			s.markProcessed(rejected.ID, errors.New("invalid webhook signature"))
		}
		return &WebhookResult{Event: rejected, SignatureValid: false}, nil
	}

	if eventID == "" {
		// No usable processor event id: dedup on the payload itself.
		sum := sha256.Sum256(rawPayload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Provider:        models.ProviderPaystack,
		ProviderEventID: eventID,
		EventType:       eventType,
		PaymentRef:      paymentRef,
		PayloadJSON:     string(rawPayload),
		SignatureValid:  true,
		Outcome:         models.WebhookOutcomeAccepted,
	})
	if err != nil {
		return nil, err
	}

	result := &WebhookResult{Event: stored, SignatureValid: true}
	if !created {
		if stored.ProcessedAt != nil {
			result.Duplicate = true
			return result, nil
		}
		// The earlier attempt stopped short of a terminal outcome (transient
		// gateway failure, or a crash mid-processing). The redelivery is its
		// retry, not a duplicate.
	}
	if parseErr != nil {
		s.markProcessed(stored.ID, parseErr)
		result.Ignored = true
		return result, nil
	}
	if event.Event != "charge.success" {
		s.markProcessed(stored.ID, nil)
		result.Ignored = true
		return result, nil
	}
	if event.Reference == "" {
		s.markProcessed(stored.ID, errors.New("charge event missing reference"))
		result.Ignored = true
		return result, nil
	}

	// Webhook may outrun the initialize round-trip: create the pending row
	// provisionally from the payload so reconciliation has a ledger entry.
	if _, err := s.repo.GetPaymentByReference(event.Reference); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if event.UserID == 0 || !IsPaidPlan(event.Plan) {
			s.markProcessed(stored.ID, fmt.Errorf("unknown reference %s and metadata incomplete", event.Reference))
			result.Ignored = true
			return result, nil
		}
		currency := event.Currency
		if currency == "" {
			currency = models.DefaultCurrency
		}
		if _, _, err := s.repo.CreatePaymentIfNotExists(&models.Payment{
			UserID:      event.UserID,
			Reference:   event.Reference,
			Plan:        normalizeToString(event.Plan),
			AmountMinor: event.AmountMinor,
			Currency:    currency,
			Status:      models.PaymentStatusPending,
			Description: fmt.Sprintf("%s plan subscription", capitalize(event.Plan)),
		}); err != nil {
			return nil, err
		}
	}

	rec, err := s.Reconcile(ctx, event.Reference)
	switch {
	case err == nil:
		s.markProcessed(stored.ID, nil)
		result.Reconcile = rec
		return result, nil
	case errors.Is(err, ErrPaymentMismatch):
		// Permanent business failure: recorded in the ledger, processor must
		// not redeliver.
		s.markProcessed(stored.ID, err)
		result.Reconcile = rec
		return result, nil
	default:
		// Transient (gateway or DB): record the failure but leave the event
		// unprocessed so the redelivery is retried instead of answered as a
		// duplicate; the stale-pending reconciler also covers this payment.
		s.recordFailure(stored.ID, err)
		return nil, err
	}
}

// recordFailure stores the processing error without stamping processed_at, so
// a redelivery of the same event id re-enters the pipeline.
func (s *Service) recordFailure(eventID uint, processingErr error) {
	if err := s.repo.RecordWebhookError(eventID, processingErr.Error()); err != nil {
		log.Errorf("[Billing] recording webhook event %d failure failed: %v", eventID, err)
	}
}

func (s *Service) markProcessed(eventID uint, processingErr error) {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(eventID, msg); err != nil {
		log.Errorf("[Billing] marking webhook event %d processed failed: %v", eventID, err)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func normalizeToString(plan string) string {
	return string(normalizePlan(plan))
}
