package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/database"
)

// processReconcilePaymentJob verifies a stale pending payment against the
// processor and applies the outcome. Returning an error hands the job to the
// queue's retry mechanism; permanent outcomes complete the job.
func (q *Queue) processReconcilePaymentJob(ctx context.Context, job *Job) error {
	payload, err := ReconcilePaymentJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid reconcile payment payload: %w", err)
	}
	if payload.Reference == "" {
		return fmt.Errorf("reconcile payment payload missing reference")
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	svc := newBackgroundBillingService()
	res, err := svc.Reconcile(ctx, payload.Reference)
	switch {
	case err == nil:
		if res.Applied {
			log.Infof("[JobQueue] payment %s reconciled to %s", payload.Reference, res.Outcome)
		}
		return nil
	case errors.Is(err, billing.ErrUnknownPayment):
		// Row disappeared between the scan and this job.
		return nil
	case errors.Is(err, billing.ErrPaymentMismatch):
		// Recorded as failed in the ledger; nothing left to retry.
		log.Warnf("[JobQueue] payment %s failed reconciliation with a mismatch", payload.Reference)
		return nil
	default:
		return err
	}
}

// processSendNotificationJob persists a notification row for the user.
func (q *Queue) processSendNotificationJob(ctx context.Context, job *Job) error {
	_ = ctx
	payload, err := SendNotificationJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid notification payload: %w", err)
	}
	if payload.UserID == 0 {
		return fmt.Errorf("notification payload missing user id")
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return models.CreateNotification(db, payload.UserID, payload.NotificationType, payload.Content, payload.ReferenceID)
}

// queueNotifier dispatches notifications through the job queue instead of
// writing them inline. Used by background billing work so a slow DB write for
// a notification never blocks a sweep.
type queueNotifier struct {
	queue *Queue
}

func (n *queueNotifier) Notify(ctx context.Context, userID uint, notificationType, content string, referenceID uint) error {
	_ = ctx
	payload := SendNotificationJobPayload{
		UserID:           userID,
		NotificationType: notificationType,
		Content:          content,
		ReferenceID:      referenceID,
	}
	_, err := n.queue.EnqueueJob(JobTypeSendNotification, payload.ToMap())
	return err
}

// newBackgroundBillingService builds a billing service whose notifications go
// through the queue.
func newBackgroundBillingService() *billing.Service {
	db := database.GetDB()
	return billing.NewService(
		billing.NewRepository(db),
		billing.NewPaystackClientFromEnv(),
		&queueNotifier{queue: GetManager().GetQueue()},
		billing.CycleFromEnv(),
	)
}
