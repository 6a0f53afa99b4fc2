package models

import "time"

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription is the single current entitlement per user. It is lazily
// created as free/active with no end date and mutated only by the billing
// service (successful payment) and the expiry sweeper (lapse).
type Subscription struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;uniqueIndex:ux_subscriptions_user" json:"user_id"`
	Plan        string     `gorm:"type:varchar(50);not null;default:'free';index" json:"plan"`
	Status      string     `gorm:"type:varchar(20);not null;default:'active';index:idx_subscriptions_status_end,priority:1" json:"status"`
	StartDate   time.Time  `gorm:"autoCreateTime" json:"start_date"`
	EndDate     *time.Time `gorm:"type:timestamp;default:null;index:idx_subscriptions_status_end,priority:2" json:"end_date,omitempty"`
	AutoRenew   bool       `gorm:"default:false" json:"auto_renew"`
	AmountMinor int64      `gorm:"not null;default:0" json:"amount_minor"`
	Currency    string     `gorm:"type:varchar(3);not null;default:'NGN'" json:"currency"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActivePaid reports whether the subscription currently entitles a paid plan.
func (s *Subscription) IsActivePaid(now time.Time) bool {
	if s.Status != SubscriptionStatusActive || s.Plan == "" || s.Plan == "free" {
		return false
	}
	return s.EndDate == nil || s.EndDate.After(now)
}
