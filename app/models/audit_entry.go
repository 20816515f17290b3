package models

import "time"

const (
	AuditActionTrialGranted       = "trial_granted"
	AuditActionInvalidTransition  = "invalid_transition"
	AuditActionPaidActivated      = "paid_activated"
	AuditActionManualActivation   = "manual_activation"
	AuditActionReferralBonus      = "referral_bonus"
	AuditActionExpired            = "expired"
	AuditActionAuthenticityFailed = "authenticity_failed"
	AuditActionDowngradeRefused   = "downgrade_refused"
)

// AuditEntry is an append-only trail of lifecycle decisions.
type AuditEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IdentityID string    `gorm:"type:varchar(64);not null;default:'';index" json:"identity_id"`
	Action     string    `gorm:"type:varchar(32);not null;index" json:"action"`
	Actor      string    `gorm:"type:varchar(64);not null;default:''" json:"actor"`
	Detail     string    `gorm:"type:varchar(512);not null;default:''" json:"detail"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
