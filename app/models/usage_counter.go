package models

import "time"

// UsageCounter tracks consumption of one feature by one identity within one
// quota period. Rows of past periods are kept for reporting.
type UsageCounter struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IdentityID string    `gorm:"type:varchar(64);not null;index:ux_usage_counters_identity_feature_period,unique,priority:1" json:"identity_id"`
	Feature    string    `gorm:"type:varchar(32);not null;index:ux_usage_counters_identity_feature_period,unique,priority:2" json:"feature"`
	PeriodKey  string    `gorm:"type:varchar(32);not null;index:ux_usage_counters_identity_feature_period,unique,priority:3;index" json:"period_key"`
	Consumed   int64     `gorm:"not null;default:0" json:"consumed"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
