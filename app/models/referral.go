package models

import "time"

// Referral records that ReferrerID was credited for bringing in ReferredID.
// The pair is unique so a referrer is credited at most once per referred identity.
type Referral struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ReferrerID string    `gorm:"type:varchar(64);not null;index:ux_referrals_pair,unique,priority:1" json:"referrer_id"`
	ReferredID string    `gorm:"type:varchar(64);not null;index:ux_referrals_pair,unique,priority:2" json:"referred_id"`
	BonusDays  int       `gorm:"not null;default:0" json:"bonus_days"`
	EventID    string    `gorm:"type:varchar(191);not null;default:''" json:"event_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
