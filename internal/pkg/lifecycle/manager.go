// Package lifecycle owns every write to a subscription's plan and expiry.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/entitlements"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/metrics"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
)

var (
	ErrNotPaidPlan  = errors.New("plan cannot be activated by payment")
	ErrInvalidBonus = errors.New("referral bonus days must be positive")
)

const systemActor = "system"

type TrialResult string

const (
	TrialGranted     TrialResult = "granted"
	TrialAlreadyUsed TrialResult = "already_used"
	TrialNotEligible TrialResult = "not_eligible"
)

type ActivationResult string

const (
	ActivationActivated        ActivationResult = "activated"
	ActivationRenewed          ActivationResult = "renewed"
	ActivationDowngradeRefused ActivationResult = "downgrade_refused"
)

type ReferralResult string

const (
	BonusExtended ReferralResult = "extended"
	BonusAccrued  ReferralResult = "accrued"
)

// ActivateOptions tunes ActivatePaid.
type ActivateOptions struct {
	// Extend renews an unexpired subscription to the same plan from its
	// current expiry instead of from now.
	Extend bool
	// DurationDays overrides the plan's billing period when positive.
	DurationDays int
	// RefuseDowngrade leaves a higher unexpired paid plan untouched.
	RefuseDowngrade bool
	Actor           string
}

// Manager applies lifecycle transitions with read, validate and
// compare-and-set write inside one transaction, retried on conflicts.
type Manager struct {
	store   store.Store
	catalog *entitlements.Catalog
	retry   store.RetryPolicy
	metrics *metrics.Metrics
	inTx    bool
}

type Option func(*Manager)

func WithRetryPolicy(p store.RetryPolicy) Option { return func(m *Manager) { m.retry = p } }
func WithMetrics(mt *metrics.Metrics) Option     { return func(m *Manager) { m.metrics = mt } }

func NewManager(s store.Store, catalog *entitlements.Catalog, opts ...Option) *Manager {
	m := &Manager{store: s, catalog: catalog, retry: store.DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithStore returns a manager bound to a caller-owned transaction. It neither
// opens its own transaction nor retries; the caller retries the whole unit.
func (m *Manager) WithStore(tx store.Store) *Manager {
	bound := *m
	bound.store = tx
	bound.inTx = true
	return &bound
}

func (m *Manager) run(ctx context.Context, op string, fn func(s store.Store) error) error {
	if m.inTx {
		return fn(m.store)
	}
	return store.Retry(ctx, m.retry, op, func() error {
		return m.store.Transaction(ctx, fn)
	})
}

// GrantTrial starts the one-time trial for a free identity.
func (m *Manager) GrantTrial(ctx context.Context, identityID string, now time.Time) (TrialResult, *models.Subscription, error) {
	now = now.UTC()
	var result TrialResult
	var out *models.Subscription

	err := m.run(ctx, "grant_trial", func(s store.Store) error {
		sub, err := s.GetOrInitSubscription(ctx, identityID)
		if err != nil {
			return err
		}
		out = sub

		if sub.TrialUsed {
			result = TrialAlreadyUsed
			return audit(ctx, s, identityID, models.AuditActionInvalidTransition, identityID, "trial requested again")
		}
		if sub.EffectivePlanID(now) != models.PlanIDFree {
			result = TrialNotEligible
			return audit(ctx, s, identityID, models.AuditActionInvalidTransition, identityID,
				fmt.Sprintf("trial requested while on %s", sub.PlanID))
		}

		exp := now.AddDate(0, 0, m.catalog.TrialDays())
		ch := changeFrom(sub)
		ch.PlanID = string(entitlements.PlanTrial)
		ch.ExpiresAt = &exp
		ch.TrialUsed = true
		updated, err := s.ApplyLifecycleChange(ctx, ch)
		if err != nil {
			return err
		}
		out = updated
		result = TrialGranted
		return audit(ctx, s, identityID, models.AuditActionTrialGranted, identityID,
			fmt.Sprintf("expires=%s", exp.Format(time.RFC3339)))
	})
	if err != nil {
		return "", nil, err
	}

	m.metrics.ObserveTransition("grant_trial", string(result))
	if result == TrialGranted {
		log.Infof("[Lifecycle] Trial granted to %s until %s", identityID, out.ExpiresAt.Format(time.RFC3339))
	} else {
		log.Infof("[Lifecycle] Trial for %s not granted: %s", identityID, result)
	}
	return result, out, nil
}

// ActivatePaid moves identityID onto a paid plan. Renewing the same unexpired
// plan with Extend adds one period to the current expiry; anything else
// starts a fresh period at now. Pending referral days are folded in.
func (m *Manager) ActivatePaid(ctx context.Context, identityID string, plan entitlements.Plan, now time.Time, opts ActivateOptions) (ActivationResult, *models.Subscription, error) {
	now = now.UTC()
	def, ok := m.catalog.Plan(plan)
	if !ok || !plan.IsPaid() {
		return "", nil, fmt.Errorf("%w: %q", ErrNotPaidPlan, plan)
	}
	days := def.BillingPeriodDays
	if opts.DurationDays > 0 {
		days = opts.DurationDays
	}
	actor := opts.Actor
	if actor == "" {
		actor = systemActor
	}

	var result ActivationResult
	var out *models.Subscription
	err := m.run(ctx, "activate_paid", func(s store.Store) error {
		sub, err := s.GetOrInitSubscription(ctx, identityID)
		if err != nil {
			return err
		}
		out = sub
		current := entitlements.Plan(sub.EffectivePlanID(now))

		if opts.RefuseDowngrade && current.IsPaid() && m.catalog.Rank(plan) < m.catalog.Rank(current) {
			result = ActivationDowngradeRefused
			return audit(ctx, s, identityID, models.AuditActionDowngradeRefused, actor,
				fmt.Sprintf("requested=%s current=%s", plan, current))
		}

		base := now
		result = ActivationActivated
		if opts.Extend && current == plan && sub.ExpiresAt != nil {
			base = sub.ExpiresAt.UTC()
			result = ActivationRenewed
		}
		exp := base.AddDate(0, 0, days)

		ch := changeFrom(sub)
		if pending := sub.PendingReferralDays(); pending > 0 {
			exp = exp.AddDate(0, 0, pending)
			ch.ReferralBonusDaysApplied = ch.ReferralBonusDaysAccrued
		}
		ch.PlanID = string(plan)
		ch.ExpiresAt = &exp

		updated, err := s.ApplyLifecycleChange(ctx, ch)
		if err != nil {
			return err
		}
		out = updated
		return audit(ctx, s, identityID, models.AuditActionPaidActivated, actor,
			fmt.Sprintf("plan=%s result=%s expires=%s", plan, result, exp.Format(time.RFC3339)))
	})
	if err != nil {
		return "", nil, err
	}

	m.metrics.ObserveTransition("activate_paid", string(result))
	log.Infof("[Lifecycle] %s for %s on %s (actor %s)", result, identityID, plan, actor)
	return result, out, nil
}

// ApplyReferralBonus credits bonusDays to identityID. An active trial or paid
// plan is extended right away; otherwise the days wait for the next paid activation.
func (m *Manager) ApplyReferralBonus(ctx context.Context, identityID string, bonusDays int, now time.Time) (ReferralResult, *models.Subscription, error) {
	if bonusDays <= 0 {
		return "", nil, ErrInvalidBonus
	}
	now = now.UTC()

	var result ReferralResult
	var out *models.Subscription
	err := m.run(ctx, "referral_bonus", func(s store.Store) error {
		sub, err := s.GetOrInitSubscription(ctx, identityID)
		if err != nil {
			return err
		}

		ch := changeFrom(sub)
		ch.ReferralBonusDaysAccrued += bonusDays
		if sub.EffectivePlanID(now) != models.PlanIDFree && sub.ExpiresAt != nil {
			exp := sub.ExpiresAt.UTC().AddDate(0, 0, bonusDays)
			ch.ExpiresAt = &exp
			ch.ReferralBonusDaysApplied += bonusDays
			result = BonusExtended
		} else {
			downgradeIfExpired(&ch, sub, now)
			result = BonusAccrued
		}

		updated, err := s.ApplyLifecycleChange(ctx, ch)
		if err != nil {
			return err
		}
		out = updated
		return audit(ctx, s, identityID, models.AuditActionReferralBonus, systemActor,
			fmt.Sprintf("days=%d result=%s", bonusDays, result))
	})
	if err != nil {
		return "", nil, err
	}

	m.metrics.ObserveTransition("referral_bonus", string(result))
	log.Infof("[Lifecycle] Referral bonus of %d days for %s: %s", bonusDays, identityID, result)
	return result, out, nil
}

// ExpireIfDue downgrades identityID to free when its expiry has passed.
// It reports whether a downgrade happened; repeated calls are no-ops.
func (m *Manager) ExpireIfDue(ctx context.Context, identityID string, now time.Time) (bool, error) {
	now = now.UTC()
	expired := false
	err := m.run(ctx, "expire", func(s store.Store) error {
		expired = false
		sub, err := s.GetSubscription(ctx, identityID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !sub.IsExpired(now) {
			return nil
		}

		ch := changeFrom(sub)
		downgradeIfExpired(&ch, sub, now)
		if _, err := s.ApplyLifecycleChange(ctx, ch); err != nil {
			return err
		}
		expired = true
		return audit(ctx, s, identityID, models.AuditActionExpired, systemActor,
			fmt.Sprintf("plan=%s expired_at=%s", sub.PlanID, sub.ExpiresAt.UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return false, err
	}
	if expired {
		m.metrics.ObserveTransition("expire", "expired")
		log.Infof("[Lifecycle] Subscription of %s expired, now free", identityID)
	}
	return expired, nil
}

func changeFrom(sub *models.Subscription) store.LifecycleChange {
	return store.LifecycleChange{
		IdentityID:               sub.IdentityID,
		ExpectedVersion:          sub.Version,
		PlanID:                   sub.PlanID,
		ExpiresAt:                sub.ExpiresAt,
		TrialUsed:                sub.TrialUsed,
		ReferralBonusDaysAccrued: sub.ReferralBonusDaysAccrued,
		ReferralBonusDaysApplied: sub.ReferralBonusDaysApplied,
	}
}

func downgradeIfExpired(ch *store.LifecycleChange, sub *models.Subscription, now time.Time) {
	if sub.IsExpired(now) {
		ch.PlanID = models.PlanIDFree
		ch.ExpiresAt = nil
	}
}

func audit(ctx context.Context, s store.Store, identityID, action, actor, detail string) error {
	return s.AppendAudit(ctx, &models.AuditEntry{
		IdentityID: identityID,
		Action:     action,
		Actor:      actor,
		Detail:     detail,
	})
}
