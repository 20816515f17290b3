package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/entitlements"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store/storetest"
)

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	s := storetest.New(t)
	m := NewManager(s, entitlements.DefaultCatalog(), WithRetryPolicy(store.RetryPolicy{
		Attempts:        5,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}))
	return m, s
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func TestGrantTrialOnlyOnce(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	result, sub, err := m.GrantTrial(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, TrialGranted, result)
	assert.Equal(t, models.PlanIDTrial, sub.PlanID)
	assert.True(t, sub.TrialUsed)
	require.NotNil(t, sub.ExpiresAt)
	assert.True(t, now.Add(days(3)).Equal(*sub.ExpiresAt))

	result, again, err := m.GrantTrial(ctx, "u1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, TrialAlreadyUsed, result)
	assert.True(t, sub.ExpiresAt.Equal(*again.ExpiresAt))

	// even after expiry and downgrade the flag stays set
	expired, err := m.ExpireIfDue(ctx, "u1", now.Add(days(4)))
	require.NoError(t, err)
	assert.True(t, expired)
	result, _, err = m.GrantTrial(ctx, "u1", now.Add(days(5)))
	require.NoError(t, err)
	assert.Equal(t, TrialAlreadyUsed, result)

	entries, err := s.ListAudit(ctx, "u1", 10)
	require.NoError(t, err)
	actions := map[string]int{}
	for _, e := range entries {
		actions[e.Action]++
	}
	assert.Equal(t, 1, actions[models.AuditActionTrialGranted])
	assert.Equal(t, 2, actions[models.AuditActionInvalidTransition])
	assert.Equal(t, 1, actions[models.AuditActionExpired])
}

func TestGrantTrialNotEligibleWhilePaid(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, _, err := m.ActivatePaid(ctx, "u1", entitlements.PlanBasic, now, ActivateOptions{Extend: true})
	require.NoError(t, err)

	result, sub, err := m.GrantTrial(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, TrialNotEligible, result)
	assert.Equal(t, models.PlanIDBasic, sub.PlanID)
	assert.False(t, sub.TrialUsed)
}

func TestActivatePaidRenewsAndReplaces(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	result, sub, err := m.ActivatePaid(ctx, "u1", entitlements.PlanPro, now, ActivateOptions{Extend: true})
	require.NoError(t, err)
	assert.Equal(t, ActivationActivated, result)
	first := *sub.ExpiresAt
	assert.True(t, now.Add(days(90)).Equal(first))

	// renewal adds exactly one period on top of the current expiry
	result, sub, err = m.ActivatePaid(ctx, "u1", entitlements.PlanPro, now.Add(days(10)), ActivateOptions{Extend: true})
	require.NoError(t, err)
	assert.Equal(t, ActivationRenewed, result)
	assert.True(t, first.Add(days(90)).Equal(*sub.ExpiresAt))

	// a different plan replaces from now
	later := now.Add(days(20))
	result, sub, err = m.ActivatePaid(ctx, "u1", entitlements.PlanUltra, later, ActivateOptions{Extend: true})
	require.NoError(t, err)
	assert.Equal(t, ActivationActivated, result)
	assert.Equal(t, models.PlanIDUltra, sub.PlanID)
	assert.True(t, later.Add(days(365)).Equal(*sub.ExpiresAt))
}

func TestActivatePaidAfterExpiryStartsFromNow(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, _, err := m.ActivatePaid(ctx, "u1", entitlements.PlanBasic, now, ActivateOptions{Extend: true})
	require.NoError(t, err)

	later := now.Add(days(45))
	result, sub, err := m.ActivatePaid(ctx, "u1", entitlements.PlanBasic, later, ActivateOptions{Extend: true})
	require.NoError(t, err)
	assert.Equal(t, ActivationActivated, result)
	assert.True(t, later.Add(days(30)).Equal(*sub.ExpiresAt))
}

func TestActivatePaidDurationOverrideAndValidation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, sub, err := m.ActivatePaid(ctx, "u1", entitlements.PlanBasic, now, ActivateOptions{DurationDays: 7, Actor: "admin-1"})
	require.NoError(t, err)
	assert.True(t, now.Add(days(7)).Equal(*sub.ExpiresAt))

	_, _, err = m.ActivatePaid(ctx, "u1", entitlements.PlanTrial, now, ActivateOptions{})
	assert.ErrorIs(t, err, ErrNotPaidPlan)
	_, _, err = m.ActivatePaid(ctx, "u1", entitlements.PlanFree, now, ActivateOptions{})
	assert.ErrorIs(t, err, ErrNotPaidPlan)
}

func TestActivatePaidDowngradeGuard(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, _, err := m.ActivatePaid(ctx, "u1", entitlements.PlanUltra, now, ActivateOptions{})
	require.NoError(t, err)

	result, sub, err := m.ActivatePaid(ctx, "u1", entitlements.PlanBasic, now, ActivateOptions{RefuseDowngrade: true})
	require.NoError(t, err)
	assert.Equal(t, ActivationDowngradeRefused, result)
	assert.Equal(t, models.PlanIDUltra, sub.PlanID)

	result, sub, err = m.ActivatePaid(ctx, "u1", entitlements.PlanBasic, now, ActivateOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActivationActivated, result)
	assert.Equal(t, models.PlanIDBasic, sub.PlanID)
}

func TestReferralBonusExtendsActivePlan(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, sub, err := m.ActivatePaid(ctx, "r1", entitlements.PlanBasic, now, ActivateOptions{})
	require.NoError(t, err)
	before := *sub.ExpiresAt

	result, sub, err := m.ApplyReferralBonus(ctx, "r1", 7, now)
	require.NoError(t, err)
	assert.Equal(t, BonusExtended, result)
	assert.True(t, before.Add(days(7)).Equal(*sub.ExpiresAt))
	assert.Equal(t, 7, sub.ReferralBonusDaysAccrued)
	assert.Equal(t, 7, sub.ReferralBonusDaysApplied)
	assert.Zero(t, sub.PendingReferralDays())
}

func TestReferralBonusAccruesOnFreeAndAppliesOnActivation(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	result, sub, err := m.ApplyReferralBonus(ctx, "r1", 7, now)
	require.NoError(t, err)
	assert.Equal(t, BonusAccrued, result)
	assert.Equal(t, models.PlanIDFree, sub.PlanID)
	assert.Nil(t, sub.ExpiresAt)
	assert.Equal(t, 7, sub.PendingReferralDays())

	_, sub, err = m.ActivatePaid(ctx, "r1", entitlements.PlanBasic, now, ActivateOptions{Extend: true})
	require.NoError(t, err)
	assert.True(t, now.Add(days(37)).Equal(*sub.ExpiresAt))
	assert.Zero(t, sub.PendingReferralDays())
	assert.Equal(t, 7, sub.ReferralBonusDaysAccrued)

	_, _, err = m.ApplyReferralBonus(ctx, "r1", 0, now)
	assert.ErrorIs(t, err, ErrInvalidBonus)
}

func TestReferralBonusOnExpiredPlanDowngradesAndAccrues(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, _, err := m.ActivatePaid(ctx, "r1", entitlements.PlanBasic, now, ActivateOptions{})
	require.NoError(t, err)

	result, sub, err := m.ApplyReferralBonus(ctx, "r1", 7, now.Add(days(31)))
	require.NoError(t, err)
	assert.Equal(t, BonusAccrued, result)
	assert.Equal(t, models.PlanIDFree, sub.PlanID)
	assert.Nil(t, sub.ExpiresAt)
}

func TestExpireIfDue(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	expired, err := m.ExpireIfDue(ctx, "unknown", now)
	require.NoError(t, err)
	assert.False(t, expired)

	_, _, err = m.ActivatePaid(ctx, "u1", entitlements.PlanBasic, now, ActivateOptions{})
	require.NoError(t, err)

	expired, err = m.ExpireIfDue(ctx, "u1", now.Add(days(29)))
	require.NoError(t, err)
	assert.False(t, expired)

	expired, err = m.ExpireIfDue(ctx, "u1", now.Add(days(31)))
	require.NoError(t, err)
	assert.True(t, expired)

	sub, err := s.GetSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanIDFree, sub.PlanID)
	assert.Nil(t, sub.ExpiresAt)

	expired, err = m.ExpireIfDue(ctx, "u1", now.Add(days(32)))
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestConcurrentRenewalsAllApply(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	_, _, err := m.ActivatePaid(ctx, "u1", entitlements.PlanBasic, now, ActivateOptions{Extend: true})
	require.NoError(t, err)

	const renewals = 4
	var wg sync.WaitGroup
	for i := 0; i < renewals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := m.ActivatePaid(ctx, "u1", entitlements.PlanBasic, now, ActivateOptions{Extend: true}); err != nil {
				t.Errorf("renewal failed: %v", err)
			}
		}()
	}
	wg.Wait()

	sub, err := s.GetSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, now.Add(days(30*(renewals+1))).Equal(*sub.ExpiresAt))
}

func TestWithStoreRunsInsideCallerTransaction(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)

	err := s.Transaction(ctx, func(tx store.Store) error {
		if _, _, err := m.WithStore(tx).GrantTrial(ctx, "u1", now); err != nil {
			return err
		}
		return store.ErrInvalidState
	})
	require.ErrorIs(t, err, store.ErrInvalidState)

	_, err = s.GetSubscription(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStackedRenewalsPast2038(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t)
	opts := ActivateOptions{Extend: true, DurationDays: 3650, Actor: "admin-1"}

	_, _, err := m.ActivatePaid(ctx, "u1", entitlements.PlanUltra, now, opts)
	require.NoError(t, err)
	result, sub, err := m.ActivatePaid(ctx, "u1", entitlements.PlanUltra, now.Add(days(1)), opts)
	require.NoError(t, err)
	assert.Equal(t, ActivationRenewed, result)

	want := now.Add(days(7300))
	require.True(t, want.After(time.Date(2038, 1, 19, 3, 14, 8, 0, time.UTC)))
	assert.True(t, want.Equal(*sub.ExpiresAt))

	stored, err := s.GetSubscription(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, want.Equal(*stored.ExpiresAt))
	assert.Equal(t, models.PlanIDUltra, stored.EffectivePlanID(want))
}
