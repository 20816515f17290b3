package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/clock"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/metrics"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
)

var (
	ErrInvalidCost     = errors.New("cost must not be negative")
	ErrMissingIdentity = errors.New("identity_id is required")
)

// DefaultUsageTimeout bounds how long an allowed check waits on usage analytics.
const DefaultUsageTimeout = 50 * time.Millisecond

type DenyReason string

const (
	ReasonNone             DenyReason = ""
	ReasonQuotaExceeded    DenyReason = "quota_exceeded"
	ReasonFeatureNotInPlan DenyReason = "feature_not_in_plan"
)

// Decision is the result of one entitlement check. A denied decision never
// changed any counter.
type Decision struct {
	Allowed   bool       `json:"allowed"`
	Reason    DenyReason `json:"reason,omitempty"`
	Plan      Plan       `json:"plan"`
	Feature   Feature    `json:"feature"`
	Cost      int64      `json:"cost"`
	Unlimited bool       `json:"unlimited"`
	PeriodKey string     `json:"period_key,omitempty"`
	Consumed  int64      `json:"consumed"`
	Limit     int64      `json:"limit"`
	ResetsAt  *time.Time `json:"resets_at,omitempty"`
}

// Remaining is the headroom left in the current period.
func (d Decision) Remaining() int64 {
	if d.Unlimited || d.Limit <= d.Consumed {
		return 0
	}
	return d.Limit - d.Consumed
}

func (d Decision) outcome() string {
	if d.Allowed {
		return "allowed"
	}
	return string(d.Reason)
}

// UsageRecorder receives allowed usage for reporting. Failures never affect decisions.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, feature, day string, cost int64) error
}

// Engine answers "may this identity use this feature now" and debits quota.
type Engine struct {
	store    store.Store
	catalog  *Catalog
	periods  *clock.Calculator
	retry    store.RetryPolicy
	recorder UsageRecorder
	usageTTL time.Duration
	metrics  *metrics.Metrics
}

type Option func(*Engine)

func WithRetryPolicy(p store.RetryPolicy) Option { return func(e *Engine) { e.retry = p } }
func WithUsageRecorder(r UsageRecorder) Option   { return func(e *Engine) { e.recorder = r } }
func WithMetrics(m *metrics.Metrics) Option      { return func(e *Engine) { e.metrics = m } }

// WithUsageTimeout caps each analytics write; non-positive values keep the default.
func WithUsageTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.usageTTL = d
		}
	}
}

func NewEngine(s store.Store, catalog *Catalog, periods *clock.Calculator, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		catalog:  catalog,
		periods:  periods,
		retry:    store.DefaultRetryPolicy(),
		usageTTL: DefaultUsageTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Catalog() *Catalog { return e.catalog }

// CheckAndConsume decides whether identityID may use feature at now and, when
// allowed, debits cost units from the current period. A zero cost counts as one.
func (e *Engine) CheckAndConsume(ctx context.Context, identityID string, feature Feature, cost int64, now time.Time) (Decision, error) {
	if identityID == "" {
		return Decision{}, ErrMissingIdentity
	}
	if cost < 0 {
		return Decision{}, ErrInvalidCost
	}
	if cost == 0 {
		cost = 1
	}
	feature, _ = ParseFeature(string(feature))

	var decision Decision
	err := store.Retry(ctx, e.retry, "check_and_consume", func() error {
		d, err := e.decide(ctx, identityID, feature, cost, now)
		if err != nil {
			return err
		}
		decision = d
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrServiceUnavailable) {
			e.metrics.ObserveEngineError("unavailable")
		} else {
			e.metrics.ObserveEngineError("internal")
		}
		return Decision{}, err
	}

	e.metrics.ObserveDecision(string(feature), string(decision.Plan), decision.outcome())
	if decision.Allowed {
		e.recordUsage(ctx, feature, now, cost)
	}
	return decision, nil
}

// recordUsage never holds an allowed check longer than usageTTL.
func (e *Engine) recordUsage(ctx context.Context, feature Feature, now time.Time, cost int64) {
	if e.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.usageTTL)
	defer cancel()
	if err := e.recorder.RecordUsage(ctx, string(feature), e.periods.Day(now), cost); err != nil {
		log.Warnf("[Engine] usage analytics for %s failed: %v", feature, err)
	}
}

func (e *Engine) decide(ctx context.Context, identityID string, feature Feature, cost int64, now time.Time) (Decision, error) {
	sub, err := e.store.GetOrInitSubscription(ctx, identityID)
	if err != nil {
		return Decision{}, fmt.Errorf("load subscription: %w", err)
	}

	plan := e.effectivePlan(sub, now)
	d := Decision{Plan: plan.ID, Feature: feature, Cost: cost}

	quota, ok := plan.Quota(feature)
	if _, known := ParseFeature(string(feature)); !known || !ok || (!quota.Unlimited() && quota.Limit <= 0) {
		log.Warnf("[Engine] feature %q not in plan %s for %s", feature, plan.ID, identityID)
		d.Reason = ReasonFeatureNotInPlan
		return d, nil
	}
	if quota.Unlimited() {
		d.Allowed = true
		d.Unlimited = true
		return d, nil
	}

	period, err := e.periods.PeriodFor(quota.Period, now)
	if err != nil {
		return Decision{}, err
	}
	res, err := e.store.TryDebit(ctx, identityID, string(feature), period.Key, cost, quota.Limit)
	if err != nil {
		return Decision{}, fmt.Errorf("debit %s: %w", feature, err)
	}

	resets := period.End
	d.PeriodKey = period.Key
	d.Limit = quota.Limit
	d.Consumed = res.Consumed
	d.ResetsAt = &resets
	if res.Allowed() {
		d.Allowed = true
	} else {
		d.Reason = ReasonQuotaExceeded
	}
	return d, nil
}

// effectivePlan resolves the plan governing sub at now. Expired rows are read
// as free without being written back.
func (e *Engine) effectivePlan(sub *models.Subscription, now time.Time) PlanDefinition {
	id := Plan(sub.EffectivePlanID(now))
	if def, ok := e.catalog.Plan(id); ok {
		return def
	}
	log.Warnf("[Engine] subscription %s has unknown plan %q, treating as free", sub.IdentityID, sub.PlanID)
	def, _ := e.catalog.Plan(PlanFree)
	return def
}
