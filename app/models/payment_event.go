package models

import "time"

const (
	PaymentSourceGateway     = "gateway"
	PaymentSourceManualAdmin = "manual_admin"
)

const (
	PaymentOutcomeApplied          = "applied"
	PaymentOutcomeDuplicateIgnored = "duplicate_ignored"
	PaymentOutcomeRejected         = "rejected"
)

// PaymentEvent is the idempotency ledger entry for a payment confirmation.
// EventID is unique; a redelivered event never produces a second row.
type PaymentEvent struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	EventID      string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_events_event_id" json:"event_id"`
	IdentityID   string     `gorm:"type:varchar(64);not null;index" json:"identity_id"`
	PlanID       string     `gorm:"type:varchar(16);not null;default:''" json:"plan_id"`
	AmountMinor  int64      `gorm:"not null;default:0" json:"amount_minor"`
	Currency     string     `gorm:"type:varchar(8);not null;default:''" json:"currency"`
	Source       string     `gorm:"type:varchar(20);not null;index" json:"source"`
	ActorID      string     `gorm:"type:varchar(64);not null;default:''" json:"actor_id,omitempty"`
	ReferralCode string     `gorm:"type:varchar(64);not null;default:''" json:"referral_code,omitempty"`
	Outcome      string     `gorm:"type:varchar(20);not null;index" json:"outcome"`
	Reason       string     `gorm:"type:varchar(255);not null;default:''" json:"reason,omitempty"`
	ProcessedAt  *time.Time `gorm:"precision:3;default:null" json:"processed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
