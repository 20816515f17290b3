package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/entitlements"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/env"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/lifecycle"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/metrics"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
)

// Config holds payment processing settings.
type Config struct {
	WebhookSecret     string
	AdminIDs          []string
	RefuseDowngrade   bool
	ReferralBonusDays int
}

// LoadConfig reads payment settings from the environment. OWNER_ID is always an admin.
func LoadConfig() Config {
	admins := env.GetEnvList("ADMIN_IDS")
	if owner := strings.TrimSpace(env.GetEnv("OWNER_ID", "")); owner != "" {
		admins = append(admins, owner)
	}
	return Config{
		WebhookSecret:     env.GetEnv("PAYMENT_WEBHOOK_SECRET", ""),
		AdminIDs:          admins,
		RefuseDowngrade:   env.GetEnvBool("PAYMENT_REFUSE_DOWNGRADE", false),
		ReferralBonusDays: env.GetEnvInt("REFERRAL_BONUS_DAYS", 1),
	}
}

// Service turns payment confirmations into at most one activation per event id.
type Service struct {
	store     store.Store
	catalog   *entitlements.Catalog
	lifecycle *lifecycle.Manager
	cfg       Config
	admins    map[string]struct{}
	retry     store.RetryPolicy
	metrics   *metrics.Metrics
	validate  *validator.Validate
}

type Option func(*Service)

func WithRetryPolicy(p store.RetryPolicy) Option { return func(s *Service) { s.retry = p } }
func WithMetrics(m *metrics.Metrics) Option      { return func(s *Service) { s.metrics = m } }

// NewService creates a payment service. lc must be built over the same store.
func NewService(s store.Store, catalog *entitlements.Catalog, lc *lifecycle.Manager, cfg Config, opts ...Option) *Service {
	svc := &Service{
		store:     s,
		catalog:   catalog,
		lifecycle: lc,
		cfg:       cfg,
		admins:    make(map[string]struct{}, len(cfg.AdminIDs)),
		retry:     store.DefaultRetryPolicy(),
		validate:  validator.New(),
	}
	for _, id := range cfg.AdminIDs {
		svc.admins[strings.TrimSpace(id)] = struct{}{}
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// IsAdmin reports whether actorID may issue manual activations.
func (s *Service) IsAdmin(actorID string) bool {
	_, ok := s.admins[strings.TrimSpace(actorID)]
	return ok && actorID != ""
}

// HandleGatewayEvent verifies and applies a gateway webhook delivery. Events
// failing the signature check are rejected without touching the ledger.
func (s *Service) HandleGatewayEvent(ctx context.Context, payload []byte, signature string, now time.Time) (*Result, error) {
	if !VerifySignature(payload, signature, s.cfg.WebhookSecret) {
		s.rejectUnauthenticated(ctx, models.PaymentSourceGateway, "", "", ReasonInvalidSignature)
		return &Result{Outcome: OutcomeRejected, Reason: ReasonInvalidSignature}, nil
	}

	in, err := parseGatewayPayload(payload)
	if err != nil {
		log.Warnf("[Billing] Gateway payload rejected: %v", err)
		return nil, err
	}
	return s.apply(ctx, in, now)
}

// HandleManualActivation applies an admin-issued activation. The actor must be
// a configured admin or owner.
func (s *Service) HandleManualActivation(ctx context.Context, req ManualActivation, now time.Time) (*Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !s.IsAdmin(req.ActorID) {
		s.rejectUnauthenticated(ctx, models.PaymentSourceManualAdmin, req.IdentityID, req.ActorID, ReasonNotAdmin)
		return &Result{Outcome: OutcomeRejected, Reason: ReasonNotAdmin, EventID: req.EventID, IdentityID: req.IdentityID}, nil
	}

	return s.apply(ctx, paymentInput{
		EventID:              strings.TrimSpace(req.EventID),
		IdentityID:           strings.TrimSpace(req.IdentityID),
		PlanCode:             strings.TrimSpace(req.PlanCode),
		ReferralCode:         strings.TrimSpace(req.ReferralCode),
		Source:               models.PaymentSourceManualAdmin,
		ActorID:              strings.TrimSpace(req.ActorID),
		DurationOverrideDays: req.DurationOverrideDays,
	}, now)
}

// apply records the event and performs its effects in one transaction, so a
// redelivery either sees the committed ledger row or redoes everything.
func (s *Service) apply(ctx context.Context, in paymentInput, now time.Time) (*Result, error) {
	now = now.UTC()
	if in.NotBillable {
		// never claims the ledger key; the capture for this payment id comes later
		s.metrics.ObservePayment(in.Source, string(OutcomeIgnored))
		log.Infof("[Billing] Gateway event %s for %s ignored (%s)", in.EventID, in.IdentityID, in.Event)
		return &Result{Outcome: OutcomeIgnored, Reason: ReasonNotBillable, EventID: in.EventID, IdentityID: in.IdentityID}, nil
	}
	plan, reason := resolvePlan(s.catalog, in.PlanCode, in.AmountMinor)

	var res Result
	err := store.Retry(ctx, s.retry, "payment_event", func() error {
		res = Result{EventID: in.EventID, IdentityID: in.IdentityID, Plan: plan}
		return s.store.Transaction(ctx, func(tx store.Store) error {
			return s.applyInTx(ctx, tx, in, plan, reason, now, &res)
		})
	})
	if err != nil {
		log.Errorf("[Billing] Payment event %s failed: %v", in.EventID, err)
		return nil, err
	}

	s.metrics.ObservePayment(in.Source, string(res.Outcome))
	switch res.Outcome {
	case OutcomeDuplicateIgnored:
		log.Infof("[Billing] Duplicate payment event %s ignored", in.EventID)
	case OutcomeRejected:
		log.Warnf("[Billing] Payment event %s for %s rejected: %s", in.EventID, in.IdentityID, res.Reason)
	default:
		log.Infof("[Billing] Payment event %s applied: %s on %s", in.EventID, in.IdentityID, plan)
	}
	return &res, nil
}

func (s *Service) applyInTx(ctx context.Context, tx store.Store, in paymentInput, plan entitlements.Plan, reason string, now time.Time, res *Result) error {
	ev := &models.PaymentEvent{
		EventID:      in.EventID,
		IdentityID:   in.IdentityID,
		PlanID:       string(plan),
		Currency:     in.Currency,
		Source:       in.Source,
		ActorID:      in.ActorID,
		ReferralCode: in.ReferralCode,
		Outcome:      models.PaymentOutcomeApplied,
		Reason:       reason,
		ProcessedAt:  &now,
	}
	if in.AmountMinor != nil {
		ev.AmountMinor = *in.AmountMinor
	}
	if reason != "" {
		ev.Outcome = models.PaymentOutcomeRejected
	}

	recorded, err := tx.RecordPaymentEvent(ctx, ev)
	if err != nil {
		return err
	}
	if recorded == store.RecordDuplicate {
		res.Outcome = OutcomeDuplicateIgnored
		return nil
	}
	if reason != "" {
		res.Outcome = OutcomeRejected
		res.Reason = reason
		return nil
	}

	lc := s.lifecycle.WithStore(tx)
	activation, sub, err := lc.ActivatePaid(ctx, in.IdentityID, plan, now, lifecycle.ActivateOptions{
		Extend:          true,
		DurationDays:    in.DurationOverrideDays,
		RefuseDowngrade: s.cfg.RefuseDowngrade,
		Actor:           firstNonEmpty(in.ActorID, in.Source),
	})
	if err != nil {
		return err
	}
	res.Activation = activation
	res.Subscription = sub
	if activation == lifecycle.ActivationDowngradeRefused {
		res.Outcome = OutcomeRejected
		res.Reason = ReasonDowngradeRefused
		return tx.UpdatePaymentOutcome(ctx, in.EventID, models.PaymentOutcomeRejected, ReasonDowngradeRefused)
	}
	res.Outcome = OutcomeApplied

	if in.Source == models.PaymentSourceManualAdmin {
		if err := tx.AppendAudit(ctx, &models.AuditEntry{
			IdentityID: in.IdentityID,
			Action:     models.AuditActionManualActivation,
			Actor:      in.ActorID,
			Detail:     fmt.Sprintf("event=%s plan=%s override_days=%d", in.EventID, plan, in.DurationOverrideDays),
		}); err != nil {
			return err
		}
	}

	return s.applyReferral(ctx, tx, lc, in, now, res)
}

func (s *Service) applyReferral(ctx context.Context, tx store.Store, lc *lifecycle.Manager, in paymentInput, now time.Time, res *Result) error {
	referrer := in.ReferralCode
	if referrer == "" || referrer == in.IdentityID || s.cfg.ReferralBonusDays <= 0 {
		return nil
	}
	created, err := tx.RecordReferral(ctx, &models.Referral{
		ReferrerID: referrer,
		ReferredID: in.IdentityID,
		BonusDays:  s.cfg.ReferralBonusDays,
		EventID:    in.EventID,
	})
	if err != nil || !created {
		return err
	}
	result, _, err := lc.ApplyReferralBonus(ctx, referrer, s.cfg.ReferralBonusDays, now)
	if err != nil {
		return err
	}
	res.Referral = result
	return nil
}

func (s *Service) rejectUnauthenticated(ctx context.Context, source, identityID, actorID, reason string) {
	s.metrics.ObservePayment(source, string(OutcomeRejected))
	log.Warnf("[Billing] Authenticity check failed for %s event (identity %q, actor %q): %s", source, identityID, actorID, reason)
	if err := s.store.AppendAudit(ctx, &models.AuditEntry{
		IdentityID: identityID,
		Action:     models.AuditActionAuthenticityFailed,
		Actor:      actorID,
		Detail:     fmt.Sprintf("source=%s reason=%s", source, reason),
	}); err != nil {
		log.Errorf("[Billing] Failed to audit authenticity failure: %v", err)
	}
}

// ReferralGrant credits a referrer for a referred identity outside of a payment.
type ReferralGrant struct {
	ReferrerID string `json:"referrer_id" validate:"required,max=64,nefield=ReferredID"`
	ReferredID string `json:"referred_id" validate:"required,max=64"`
	BonusDays  int    `json:"bonus_days" validate:"gte=0,lte=365"`
	ActorID    string `json:"actor_id" validate:"required,max=64"`
}

// ReferralGrantResult reports the bonus applied, or Duplicate when the pair
// was already credited.
type ReferralGrantResult struct {
	Duplicate    bool                     `json:"duplicate"`
	Result       lifecycle.ReferralResult `json:"result,omitempty"`
	BonusDays    int                      `json:"bonus_days"`
	Subscription *models.Subscription     `json:"subscription,omitempty"`
}

// GrantReferral records the referral pair and applies its bonus once.
func (s *Service) GrantReferral(ctx context.Context, req ReferralGrant, now time.Time) (*ReferralGrantResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !s.IsAdmin(req.ActorID) {
		s.rejectUnauthenticated(ctx, models.PaymentSourceManualAdmin, req.ReferrerID, req.ActorID, ReasonNotAdmin)
		return nil, ErrNotAdmin
	}
	days := req.BonusDays
	if days == 0 {
		days = s.cfg.ReferralBonusDays
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: referral bonus is disabled", lifecycle.ErrInvalidBonus)
	}

	now = now.UTC()
	var res ReferralGrantResult
	err := store.Retry(ctx, s.retry, "referral_grant", func() error {
		res = ReferralGrantResult{BonusDays: days}
		return s.store.Transaction(ctx, func(tx store.Store) error {
			created, err := tx.RecordReferral(ctx, &models.Referral{
				ReferrerID: req.ReferrerID,
				ReferredID: req.ReferredID,
				BonusDays:  days,
			})
			if err != nil {
				return err
			}
			if !created {
				res.Duplicate = true
				return nil
			}
			result, sub, err := s.lifecycle.WithStore(tx).ApplyReferralBonus(ctx, req.ReferrerID, days, now)
			if err != nil {
				return err
			}
			res.Result = result
			res.Subscription = sub
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		log.Infof("[Billing] Referral %s -> %s already credited", req.ReferrerID, req.ReferredID)
	}
	return &res, nil
}
