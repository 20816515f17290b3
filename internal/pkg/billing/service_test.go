package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/entitlements"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/lifecycle"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/metrics"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store/storetest"
)

const testSecret = "whsec_test"

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	store   store.Store
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, mutate ...func(*Config)) fixture {
	t.Helper()
	s := storetest.New(t)
	catalog := entitlements.DefaultCatalog()
	policy := store.RetryPolicy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	lc := lifecycle.NewManager(s, catalog, lifecycle.WithRetryPolicy(policy))
	cfg := Config{
		WebhookSecret:     testSecret,
		AdminIDs:          []string{"owner-1"},
		ReferralBonusDays: 7,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	mt := metrics.NewMetrics(prometheus.NewRegistry())
	return fixture{
		svc:     NewService(s, catalog, lc, cfg, WithRetryPolicy(policy), WithMetrics(mt)),
		store:   s,
		metrics: mt,
	}
}

func signed(t *testing.T, f fixture, body string, at time.Time) *Result {
	t.Helper()
	res, err := f.svc.HandleGatewayEvent(context.Background(), []byte(body), SignPayload([]byte(body), testSecret), at)
	require.NoError(t, err)
	return res
}

func TestGatewayReplayAppliesOnce(t *testing.T) {
	f := newFixture(t)
	body := `{"event_id":"pay_1","identity_id":"u1","plan_code":"pro","amount":24900,"currency":"inr"}`

	res := signed(t, f, body, now)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, lifecycle.ActivationActivated, res.Activation)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, models.PlanIDPro, res.Subscription.PlanID)
	assert.True(t, now.AddDate(0, 0, 90).Equal(*res.Subscription.ExpiresAt))

	res = signed(t, f, body, now.Add(time.Minute))
	assert.Equal(t, OutcomeDuplicateIgnored, res.Outcome)

	sub, err := f.store.GetSubscription(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, now.AddDate(0, 0, 90).Equal(*sub.ExpiresAt))

	ev, err := f.store.GetPaymentEvent(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentOutcomeApplied, ev.Outcome)
	assert.Equal(t, "INR", ev.Currency)
	assert.Equal(t, int64(24900), ev.AmountMinor)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PaymentEventsTotal.WithLabelValues("gateway", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PaymentEventsTotal.WithLabelValues("gateway", "duplicate_ignored")))
}

func TestGatewayRenewalExtendsFromExpiry(t *testing.T) {
	f := newFixture(t)
	signed(t, f, `{"event_id":"pay_1","identity_id":"u1","plan_code":"basic"}`, now)
	res := signed(t, f, `{"event_id":"pay_2","identity_id":"u1","plan_code":"basic"}`, now.AddDate(0, 0, 5))

	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, lifecycle.ActivationRenewed, res.Activation)
	assert.True(t, now.AddDate(0, 0, 60).Equal(*res.Subscription.ExpiresAt))
}

func TestGatewayInvalidSignatureRecordsNothing(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"event_id":"pay_x","identity_id":"u1","plan_code":"pro"}`)

	res, err := f.svc.HandleGatewayEvent(context.Background(), body, SignPayload(body, "wrong"), now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.True(t, res.IsAuthenticityFailure())

	_, err = f.store.GetPaymentEvent(context.Background(), "pay_x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.store.GetSubscription(context.Background(), "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	entries, err := f.store.ListAudit(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionAuthenticityFailed, entries[0].Action)

	// the same event id still applies once signed correctly
	res = signed(t, f, string(body), now)
	assert.Equal(t, OutcomeApplied, res.Outcome)
}

func TestGatewayMalformedPayload(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`not json`, `{"identity_id":"u1"}`, `{"event_id":"p","identity_id":"u1","amount":-5}`} {
		_, err := f.svc.HandleGatewayEvent(context.Background(), []byte(body), SignPayload([]byte(body), testSecret), now)
		assert.ErrorIs(t, err, ErrMalformedPayload, body)
	}
}

func TestGatewayBusinessRejectionIsRecorded(t *testing.T) {
	f := newFixture(t)

	res := signed(t, f, `{"event_id":"pay_u","identity_id":"u1","plan_code":"pro","amount":100}`, now)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, ReasonUnderpaid, res.Reason)

	res = signed(t, f, `{"event_id":"pay_g","identity_id":"u1","plan_code":"gold"}`, now)
	assert.Equal(t, ReasonUnknownPlan, res.Reason)

	ev, err := f.store.GetPaymentEvent(context.Background(), "pay_u")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentOutcomeRejected, ev.Outcome)

	// a redelivery of a rejected event is a duplicate
	res = signed(t, f, `{"event_id":"pay_u","identity_id":"u1","plan_code":"pro","amount":100}`, now)
	assert.Equal(t, OutcomeDuplicateIgnored, res.Outcome)

	sub, err := f.store.GetOrInitSubscription(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanIDFree, sub.PlanID)
}

func TestGatewayNestedEntityPayload(t *testing.T) {
	f := newFixture(t)
	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_rzp","amount":9900,"currency":"INR","notes":{"user_id":12345,"plan":"basic"}}}}}`

	res := signed(t, f, body, now)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "12345", res.IdentityID)
	assert.Equal(t, entitlements.PlanBasic, res.Plan)

	failed := `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_f","amount":9900,"notes":{"user_id":"9","plan":"basic"}}}}}`
	res = signed(t, f, failed, now)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, ReasonNotBillable, res.Reason)
	_, err := f.store.GetPaymentEvent(context.Background(), "pay_f")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGatewayAuthorizedThenCapturedApplies(t *testing.T) {
	f := newFixture(t)
	const entity = `"payload":{"payment":{"entity":{"id":"pay_X","amount":24900,"currency":"INR","notes":{"user_id":"u9","plan":"pro"}}}}`

	res := signed(t, f, `{"event":"payment.authorized",`+entity+`}`, now)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, ReasonNotBillable, res.Reason)

	_, err := f.store.GetPaymentEvent(context.Background(), "pay_X")
	assert.ErrorIs(t, err, store.ErrNotFound)

	res = signed(t, f, `{"event":"payment.captured",`+entity+`}`, now.Add(time.Second))
	assert.Equal(t, OutcomeApplied, res.Outcome)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, models.PlanIDPro, res.Subscription.PlanID)

	// a late authorized redelivery changes nothing
	res = signed(t, f, `{"event":"payment.authorized",`+entity+`}`, now.Add(time.Minute))
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	sub, err := f.store.GetSubscription(context.Background(), "u9")
	require.NoError(t, err)
	assert.Equal(t, models.PlanIDPro, sub.PlanID)
	assert.True(t, now.Add(time.Second).AddDate(0, 0, 90).Equal(*sub.ExpiresAt))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PaymentEventsTotal.WithLabelValues("gateway", "ignored")))
}

func TestGatewayReferralCreditedOncePerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := lifecycle.NewManager(f.store, entitlements.DefaultCatalog()).
		ActivatePaid(ctx, "referrer", entitlements.PlanBasic, now, lifecycle.ActivateOptions{})
	require.NoError(t, err)

	res := signed(t, f, `{"event_id":"pay_1","identity_id":"u1","plan_code":"basic","referral_code":"referrer"}`, now)
	assert.Equal(t, lifecycle.BonusExtended, res.Referral)

	res = signed(t, f, `{"event_id":"pay_2","identity_id":"u1","plan_code":"basic","referral_code":"referrer"}`, now)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Empty(t, res.Referral)

	sub, err := f.store.GetSubscription(ctx, "referrer")
	require.NoError(t, err)
	assert.True(t, now.AddDate(0, 0, 37).Equal(*sub.ExpiresAt))
	assert.Equal(t, 7, sub.ReferralBonusDaysAccrued)

	// self referral is ignored
	res = signed(t, f, `{"event_id":"pay_3","identity_id":"u2","plan_code":"basic","referral_code":"u2"}`, now)
	assert.Empty(t, res.Referral)
}

func TestManualActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.HandleManualActivation(ctx, ManualActivation{
		EventID: "manual_1", IdentityID: "u1", PlanCode: "ultra", DurationOverrideDays: 10, ActorID: "intruder",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, ReasonNotAdmin, res.Reason)
	_, err = f.store.GetPaymentEvent(ctx, "manual_1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	res, err = f.svc.HandleManualActivation(ctx, ManualActivation{
		EventID: "manual_1", IdentityID: "u1", PlanCode: "ultra", DurationOverrideDays: 10, ActorID: "owner-1",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, now.AddDate(0, 0, 10).Equal(*res.Subscription.ExpiresAt))

	ev, err := f.store.GetPaymentEvent(ctx, "manual_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSourceManualAdmin, ev.Source)
	assert.Equal(t, "owner-1", ev.ActorID)

	_, err = f.svc.HandleManualActivation(ctx, ManualActivation{IdentityID: "u1", ActorID: "owner-1"}, now)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDowngradeGuard(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RefuseDowngrade = true })

	signed(t, f, `{"event_id":"pay_ultra","identity_id":"u1","plan_code":"ultra"}`, now)
	res := signed(t, f, `{"event_id":"pay_basic","identity_id":"u1","plan_code":"basic"}`, now.Add(time.Hour))
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, ReasonDowngradeRefused, res.Reason)

	ev, err := f.store.GetPaymentEvent(context.Background(), "pay_basic")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentOutcomeRejected, ev.Outcome)
	assert.Equal(t, ReasonDowngradeRefused, ev.Reason)

	sub, err := f.store.GetSubscription(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanIDUltra, sub.PlanID)
}

func TestConcurrentDeliveriesOfOneEvent(t *testing.T) {
	f := newFixture(t)
	body := `{"event_id":"pay_c","identity_id":"u1","plan_code":"basic"}`
	sig := SignPayload([]byte(body), testSecret)

	results := make(chan Outcome, 5)
	for i := 0; i < 5; i++ {
		go func() {
			res, err := f.svc.HandleGatewayEvent(context.Background(), []byte(body), sig, now)
			if err != nil {
				results <- Outcome(fmt.Sprintf("error: %v", err))
				return
			}
			results <- res.Outcome
		}()
	}
	counts := map[Outcome]int{}
	for i := 0; i < 5; i++ {
		counts[<-results]++
	}
	assert.Equal(t, 1, counts[OutcomeApplied])
	assert.Equal(t, 4, counts[OutcomeDuplicateIgnored])

	sub, err := f.store.GetSubscription(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, now.AddDate(0, 0, 30).Equal(*sub.ExpiresAt))
}

func TestGrantReferralCreditsPairOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.HandleManualActivation(ctx, ManualActivation{
		EventID: "m-ref", IdentityID: "referrer", PlanCode: "basic", ActorID: "owner-1",
	}, now)
	require.NoError(t, err)

	req := ReferralGrant{ReferrerID: "referrer", ReferredID: "friend", ActorID: "owner-1"}
	res, err := f.svc.GrantReferral(ctx, req, now)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, lifecycle.BonusExtended, res.Result)
	assert.Equal(t, 7, res.BonusDays)
	assert.True(t, now.AddDate(0, 0, 37).Equal(*res.Subscription.ExpiresAt))

	res, err = f.svc.GrantReferral(ctx, req, now)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	sub, err := f.store.GetSubscription(ctx, "referrer")
	require.NoError(t, err)
	assert.True(t, now.AddDate(0, 0, 37).Equal(*sub.ExpiresAt))
}

func TestGrantReferralRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GrantReferral(context.Background(), ReferralGrant{
		ReferrerID: "a", ReferredID: "b", ActorID: "stranger",
	}, now)
	assert.ErrorIs(t, err, ErrNotAdmin)

	_, err = f.svc.GrantReferral(context.Background(), ReferralGrant{
		ReferrerID: "a", ReferredID: "a", ActorID: "owner-1",
	}, now)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
