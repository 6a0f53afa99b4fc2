package billing

import (
	"errors"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FinalizeResult reports what a FinalizeAndActivate call changed. Applied is
// false when the payment was already terminal; Subscription is set only when
// this call activated one.
type FinalizeResult struct {
	Payment      *models.Payment
	Subscription *models.Subscription
	Applied      bool
}

// Repository provides DB operations used by the billing service. The ledger
// write path (FinalizeAndActivate) is the only place payments leave pending
// and subscriptions gain paid plans.
type Repository interface {
	CreatePayment(p *models.Payment) error
	CreatePaymentIfNotExists(p *models.Payment) (bool, *models.Payment, error)
	GetPaymentByReference(reference string) (*models.Payment, error)
	ListPaymentsByUser(userID uint) ([]models.Payment, error)
	ListPendingPaymentsOlderThan(cutoff time.Time, limit int) ([]models.Payment, error)
	FinalizeAndActivate(reference, outcome string, paidAt *time.Time, window time.Duration) (*FinalizeResult, error)
	GetOrCreateSubscription(userID uint) (*models.Subscription, error)
	CancelSubscription(userID uint) (*models.Subscription, error)
	ExpireDueSubscriptions(now time.Time) ([]models.Subscription, error)
	CreateWebhookEvent(event *models.WebhookEvent) error
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	RecordWebhookError(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

// CreatePaymentIfNotExists inserts a payment unless the reference is already
// known. Used for provisional creation when a webhook outruns the client's
// initialize round-trip.
func (r *gormRepository) CreatePaymentIfNotExists(p *models.Payment) (bool, *models.Payment, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference"}},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Payment
	if err := r.db.Where("reference = ?", p.Reference).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetPaymentByReference(reference string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.Where("reference = ?", reference).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListPaymentsByUser(userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&payments).Error
	return payments, err
}

func (r *gormRepository) ListPendingPaymentsOlderThan(cutoff time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	q := r.db.Where("status = ? AND created_at < ?", models.PaymentStatusPending, cutoff).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&payments).Error
	return payments, err
}

// FinalizeAndActivate transitions a pending payment to its terminal outcome
// and, on success, activates the subscription in the same transaction so
// partial application cannot occur. The status transition is a compare-and-set
// on the current state: when another finalizer already won, RowsAffected is
// zero and the stored terminal row is returned untouched with Applied=false.
func (r *gormRepository) FinalizeAndActivate(reference, outcome string, paidAt *time.Time, window time.Duration) (*FinalizeResult, error) {
	res := &FinalizeResult{}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": outcome}
		if paidAt != nil {
			updates["paid_at"] = paidAt
		}
		cas := tx.Model(&models.Payment{}).
			Where("reference = ? AND status = ?", reference, models.PaymentStatusPending).
			Updates(updates)
		if cas.Error != nil {
			return cas.Error
		}

		var payment models.Payment
		if err := tx.Where("reference = ?", reference).First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownPayment
			}
			return err
		}
		res.Payment = &payment

		if cas.RowsAffected == 0 {
			// Lost the race or repeated call: keep the recorded outcome.
			return nil
		}
		res.Applied = true

		if outcome != models.PaymentStatusSuccess {
			return nil
		}

		sub, err := getOrCreateSubscriptionTx(tx, payment.UserID)
		if err != nil {
			return err
		}

		now := time.Now()
		end := nextValidityEnd(sub, now, window)
		if !(sub.IsActivePaid(now) && sub.EndDate != nil && sub.EndDate.After(now)) {
			sub.StartDate = now
		}

		sub.Plan = payment.Plan
		sub.Status = models.SubscriptionStatusActive
		sub.EndDate = &end
		sub.AutoRenew = true
		sub.AmountMinor = payment.AmountMinor
		sub.Currency = payment.Currency
		if err := tx.Save(sub).Error; err != nil {
			return err
		}
		res.Subscription = sub

		// Keep the denormalized plan on user settings in sync.
		us, err := models.GetOrCreateUserSettings(tx, payment.UserID)
		if err != nil {
			return err
		}
		if us.Plan != payment.Plan {
			us.Plan = payment.Plan
			if err := tx.Save(us).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// nextValidityEnd computes the new validity end for an activation. A renewal
// while an active paid plan still has time left extends from the current end
// rather than resetting it; everything else starts a fresh window from now.
func nextValidityEnd(sub *models.Subscription, now time.Time, window time.Duration) time.Time {
	if sub.IsActivePaid(now) && sub.EndDate != nil && sub.EndDate.After(now) {
		return sub.EndDate.Add(window)
	}
	return now.Add(window)
}

func getOrCreateSubscriptionTx(tx *gorm.DB, userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := tx.Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			sub = models.Subscription{
				UserID:    userID,
				Plan:      string(PlanFree),
				Status:    models.SubscriptionStatusActive,
				StartDate: time.Now(),
				Currency:  models.DefaultCurrency,
			}
			if err := tx.Create(&sub).Error; err != nil {
				return nil, err
			}
			return &sub, nil
		}
		return nil, err
	}
	return &sub, nil
}

// GetOrCreateSubscription lazily initializes the free subscription row so
// callers never see an absent entitlement.
func (r *gormRepository) GetOrCreateSubscription(userID uint) (*models.Subscription, error) {
	return getOrCreateSubscriptionTx(r.db, userID)
}

// CancelSubscription marks the subscription cancelled and turns renewal off.
// The plan and end date stay as they are: a cancelled paid plan keeps its
// remaining validity and is downgraded by the expiry sweep once the end date
// passes. The ledger keeps the payment history untouched.
func (r *gormRepository) CancelSubscription(userID uint) (*models.Subscription, error) {
	var out *models.Subscription
	err := r.db.Transaction(func(tx *gorm.DB) error {
		sub, err := getOrCreateSubscriptionTx(tx, userID)
		if err != nil {
			return err
		}
		sub.Status = models.SubscriptionStatusCancelled
		sub.AutoRenew = false
		if err := tx.Save(sub).Error; err != nil {
			return err
		}
		out = sub
		return nil
	})
	return out, err
}

// ExpireDueSubscriptions downgrades paid subscriptions whose validity end lies
// in the past. Cancelled rows are reaped the same way, which is how a cancel
// runs out its remaining validity. The end date is re-checked inside the
// UPDATE predicate so a concurrent renewal that pushed the end into the future
// wins the race.
func (r *gormRepository) ExpireDueSubscriptions(now time.Time) ([]models.Subscription, error) {
	reapable := []string{models.SubscriptionStatusActive, models.SubscriptionStatusCancelled}
	var due []models.Subscription
	err := r.db.
		Where("status IN ? AND plan <> ? AND end_date IS NOT NULL AND end_date < ?",
			reapable, string(PlanFree), now).
		Find(&due).Error
	if err != nil {
		return nil, err
	}

	expired := make([]models.Subscription, 0, len(due))
	for _, sub := range due {
		res := r.db.Model(&models.Subscription{}).
			Where("id = ? AND status IN ? AND end_date IS NOT NULL AND end_date < ?",
				sub.ID, reapable, now).
			Updates(map[string]interface{}{
				"status":     models.SubscriptionStatusExpired,
				"plan":       string(PlanFree),
				"end_date":   nil,
				"auto_renew": false,
			})
		if res.Error != nil {
			return expired, res.Error
		}
		if res.RowsAffected == 0 {
			// Renewed between the scan and the write.
			continue
		}

		if err := r.db.Model(&models.UserSettings{}).
			Where("user_id = ?", sub.UserID).
			Update("plan", string(PlanFree)).Error; err != nil {
			return expired, err
		}

		sub.Status = models.SubscriptionStatusExpired
		sub.Plan = string(PlanFree)
		sub.EndDate = nil
		sub.AutoRenew = false
		expired = append(expired, sub)
	}
	return expired, nil
}

// CreateWebhookEvent stores an event unconditionally. Used for rejected
// deliveries, which are audited but never enter the dedup keyspace.
func (r *gormRepository) CreateWebhookEvent(event *models.WebhookEvent) error {
	return r.db.Create(event).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// RecordWebhookError stores a processing error while leaving processed_at
// unset, so a redelivery of the same event id is retried rather than treated
// as a duplicate.
func (r *gormRepository) RecordWebhookError(id uint, processingError string) error {
	return r.db.Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Update("processing_error", processingError).Error
}
