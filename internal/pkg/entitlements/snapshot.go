package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/clock"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
)

type FeatureUsage struct {
	Feature   Feature          `json:"feature"`
	Period    clock.PeriodKind `json:"period"`
	PeriodKey string           `json:"period_key,omitempty"`
	Limit     int64            `json:"limit"`
	Consumed  int64            `json:"consumed"`
	Remaining int64            `json:"remaining"`
	Unlimited bool             `json:"unlimited"`
	ResetsAt  *time.Time       `json:"resets_at,omitempty"`
}

// Snapshot is a read-only view of an identity's entitlements.
type Snapshot struct {
	IdentityID          string         `json:"identity_id"`
	Plan                Plan           `json:"plan"`
	StoredPlan          Plan           `json:"stored_plan"`
	ExpiresAt           *time.Time     `json:"expires_at,omitempty"`
	Expired             bool           `json:"expired"`
	TrialUsed           bool           `json:"trial_used"`
	PendingReferralDays int            `json:"pending_referral_days"`
	Features            []FeatureUsage `json:"features"`
}

// Snapshot reports the effective plan and current-period usage of every
// feature in it. Nothing is created or written.
func (e *Engine) Snapshot(ctx context.Context, identityID string, now time.Time) (*Snapshot, error) {
	if identityID == "" {
		return nil, ErrMissingIdentity
	}
	sub, err := e.store.GetSubscription(ctx, identityID)
	if errors.Is(err, store.ErrNotFound) {
		sub = &models.Subscription{IdentityID: identityID, PlanID: models.PlanIDFree}
	} else if err != nil {
		return nil, err
	}

	plan := e.effectivePlan(sub, now)
	snap := &Snapshot{
		IdentityID:          identityID,
		Plan:                plan.ID,
		StoredPlan:          Plan(sub.PlanID),
		ExpiresAt:           sub.ExpiresAt,
		Expired:             sub.IsExpired(now),
		TrialUsed:           sub.TrialUsed,
		PendingReferralDays: sub.PendingReferralDays(),
	}

	for _, feature := range AllFeatures {
		quota, ok := plan.Quota(feature)
		if !ok {
			continue
		}
		usage := FeatureUsage{Feature: feature, Period: quota.Period, Limit: quota.Limit}
		if quota.Unlimited() {
			usage.Unlimited = true
			snap.Features = append(snap.Features, usage)
			continue
		}
		period, err := e.periods.PeriodFor(quota.Period, now)
		if err != nil {
			return nil, err
		}
		consumed, err := e.store.CounterValue(ctx, identityID, string(feature), period.Key)
		if err != nil {
			return nil, err
		}
		resets := period.End
		usage.PeriodKey = period.Key
		usage.Consumed = consumed
		usage.ResetsAt = &resets
		if consumed < quota.Limit {
			usage.Remaining = quota.Limit - consumed
		}
		snap.Features = append(snap.Features, usage)
	}
	return snap, nil
}
