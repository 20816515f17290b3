// Package store persists subscriptions, usage counters and the payment ledger.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a compare-and-set write lost against a concurrent writer.
	ErrConflict = errors.New("concurrent modification")
	// ErrInvalidState means a write would break the free plan / expiry invariant.
	ErrInvalidState = errors.New("invalid subscription state")
	// ErrServiceUnavailable is returned once transient failures exhaust retries.
	ErrServiceUnavailable = errors.New("entitlement store unavailable")
)

type DebitOutcome int

const (
	DebitDenied DebitOutcome = iota
	DebitAllowed
)

// DebitResult reports the counter value after the debit attempt.
type DebitResult struct {
	Outcome  DebitOutcome
	Consumed int64
}

func (r DebitResult) Allowed() bool { return r.Outcome == DebitAllowed }

type RecordOutcome int

const (
	RecordInserted RecordOutcome = iota
	RecordDuplicate
)

// LifecycleChange is the full new lifecycle state of one subscription, applied
// only if the stored row still carries ExpectedVersion.
type LifecycleChange struct {
	IdentityID               string
	ExpectedVersion          int64
	PlanID                   string
	ExpiresAt                *time.Time
	TrialUsed                bool
	ReferralBonusDaysAccrued int
	ReferralBonusDaysApplied int
}

// PaymentFilter narrows ledger listings. Zero values match everything.
type PaymentFilter struct {
	IdentityID string
	Source     string
	Outcome    string
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// Store is the transactional persistence used by the engine, the lifecycle
// manager, the payment processor and the sweeper.
type Store interface {
	// Transaction runs fn against a store bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	GetSubscription(ctx context.Context, identityID string) (*models.Subscription, error)
	GetOrInitSubscription(ctx context.Context, identityID string) (*models.Subscription, error)
	ApplyLifecycleChange(ctx context.Context, change LifecycleChange) (*models.Subscription, error)
	ListExpiredSubscriptions(ctx context.Context, now time.Time, afterIdentityID string, limit int) ([]models.Subscription, error)

	GetOrInitCounter(ctx context.Context, identityID, feature, periodKey string) (*models.UsageCounter, error)
	CounterValue(ctx context.Context, identityID, feature, periodKey string) (int64, error)
	TryDebit(ctx context.Context, identityID, feature, periodKey string, amount, limit int64) (DebitResult, error)

	RecordPaymentEvent(ctx context.Context, event *models.PaymentEvent) (RecordOutcome, error)
	UpdatePaymentOutcome(ctx context.Context, eventID, outcome, reason string) error
	GetPaymentEvent(ctx context.Context, eventID string) (*models.PaymentEvent, error)
	ListPaymentEvents(ctx context.Context, filter PaymentFilter) ([]models.PaymentEvent, error)

	RecordReferral(ctx context.Context, referral *models.Referral) (bool, error)

	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
	ListAudit(ctx context.Context, identityID string, limit int) ([]models.AuditEntry, error)
}
