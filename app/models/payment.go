package models

import "time"

const (
	PaymentStatusPending = "pending"
	PaymentStatusSuccess = "success"
	PaymentStatusFailed  = "failed"
)

const DefaultCurrency = "NGN"

// Payment is one attempt to collect money for a plan. Rows are the immutable
// audit trail of the ledger: a payment leaves "pending" exactly once and is
// never deleted.
type Payment struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"not null;index" json:"user_id"`
	Reference        string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_reference" json:"reference"`
	Plan             string     `gorm:"type:varchar(50);not null" json:"plan"`
	AmountMinor      int64      `gorm:"not null" json:"amount_minor"`
	Currency         string     `gorm:"type:varchar(3);not null;default:'NGN'" json:"currency"`
	Status           string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	AuthorizationURL string     `gorm:"type:varchar(255)" json:"authorization_url,omitempty"`
	AccessCode       string     `gorm:"type:varchar(191)" json:"-"`
	Description      string     `gorm:"type:text" json:"description,omitempty"`
	PaidAt           *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the payment already reached a final outcome.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}
