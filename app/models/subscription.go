package models

import "time"

const (
	PlanIDFree  = "free"
	PlanIDTrial = "trial"
	PlanIDBasic = "basic"
	PlanIDPro   = "pro"
	PlanIDUltra = "ultra"
)

// Subscription is the single lifecycle row per identity. PlanID and ExpiresAt
// are only changed through the lifecycle manager; Version guards every write.
type Subscription struct {
	ID                       uint       `gorm:"primaryKey" json:"id"`
	IdentityID               string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_subscriptions_identity" json:"identity_id"`
	PlanID                   string     `gorm:"type:varchar(16);not null;default:'free';index" json:"plan_id"`
	ExpiresAt                *time.Time `gorm:"precision:3;default:null;index" json:"expires_at,omitempty"`
	TrialUsed                bool       `gorm:"not null;default:false" json:"trial_used"`
	ReferralBonusDaysAccrued int        `gorm:"not null;default:0" json:"referral_bonus_days_accrued"`
	ReferralBonusDaysApplied int        `gorm:"not null;default:0" json:"referral_bonus_days_applied"`
	Version                  int64      `gorm:"not null;default:0" json:"version"`
	CreatedAt                time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsExpired reports whether a time-bounded plan has run out at now. A plan
// expiring exactly at now is still active.
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.PlanID != PlanIDFree && s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// EffectivePlanID is the plan that governs access at now. Expired rows act as
// free until the sweeper or the next lifecycle write downgrades them.
func (s *Subscription) EffectivePlanID(now time.Time) string {
	if s.PlanID == "" || s.IsExpired(now) {
		return PlanIDFree
	}
	return s.PlanID
}

// PendingReferralDays returns bonus days granted but not yet folded into an expiry.
func (s *Subscription) PendingReferralDays() int {
	if d := s.ReferralBonusDaysAccrued - s.ReferralBonusDaysApplied; d > 0 {
		return d
	}
	return 0
}
