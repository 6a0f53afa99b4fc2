package billing

import (
	"context"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
)

// dbNotifier records notification-creation calls as rows for the notification
// subsystem to deliver. Delivery channels are not billing's concern.
type dbNotifier struct {
	db *gorm.DB
}

// NewDBNotifier creates the production notifier backed by the notifications table.
func NewDBNotifier(db *gorm.DB) Notifier {
	return &dbNotifier{db: db}
}

func (n *dbNotifier) Notify(ctx context.Context, userID uint, notificationType, content string, referenceID uint) error {
	_ = ctx
	return models.CreateNotification(n.db, userID, notificationType, content, referenceID)
}
