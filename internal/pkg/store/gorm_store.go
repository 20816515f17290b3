package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type gormStore struct {
	db *gorm.DB
}

// New creates a Store backed by GORM.
func New(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// AutoMigrate creates or updates the tables used by the store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Subscription{},
		&models.UsageCounter{},
		&models.PaymentEvent{},
		&models.Referral{},
		&models.AuditEntry{},
	)
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, identityID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("identity_id = ?", identityID).First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *gormStore) GetOrInitSubscription(ctx context.Context, identityID string) (*models.Subscription, error) {
	if identityID == "" {
		return nil, errors.New("identity_id is required")
	}
	db := s.db.WithContext(ctx)
	initial := &models.Subscription{IdentityID: identityID, PlanID: models.PlanIDFree}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_id"}},
		DoNothing: true,
	}).Create(initial).Error; err != nil {
		return nil, translate(err)
	}
	return s.GetSubscription(ctx, identityID)
}

func (s *gormStore) ApplyLifecycleChange(ctx context.Context, change LifecycleChange) (*models.Subscription, error) {
	if change.PlanID == "" {
		return nil, fmt.Errorf("%w: empty plan", ErrInvalidState)
	}
	if (change.PlanID == models.PlanIDFree) != (change.ExpiresAt == nil) {
		return nil, fmt.Errorf("%w: plan %s with expires_at=%v", ErrInvalidState, change.PlanID, change.ExpiresAt)
	}
	if change.ReferralBonusDaysApplied > change.ReferralBonusDaysAccrued {
		return nil, fmt.Errorf("%w: applied referral days exceed accrued", ErrInvalidState)
	}

	var expiresAt any
	if change.ExpiresAt != nil {
		expiresAt = change.ExpiresAt.UTC()
	}
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("identity_id = ? AND version = ?", change.IdentityID, change.ExpectedVersion).
		Updates(map[string]any{
			"plan_id":                     change.PlanID,
			"expires_at":                  expiresAt,
			"trial_used":                  change.TrialUsed,
			"referral_bonus_days_accrued": change.ReferralBonusDaysAccrued,
			"referral_bonus_days_applied": change.ReferralBonusDaysApplied,
			"version":                     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrConflict
	}
	return s.GetSubscription(ctx, change.IdentityID)
}

func (s *gormStore) ListExpiredSubscriptions(ctx context.Context, now time.Time, afterIdentityID string, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("plan_id <> ? AND expires_at IS NOT NULL AND expires_at < ? AND identity_id > ?", models.PlanIDFree, now.UTC(), afterIdentityID).
		Order("identity_id ASC").
		Limit(clampLimit(limit)).
		Find(&subs).Error
	return subs, translate(err)
}

func (s *gormStore) GetOrInitCounter(ctx context.Context, identityID, feature, periodKey string) (*models.UsageCounter, error) {
	db := s.db.WithContext(ctx)
	if err := ensureCounter(db, identityID, feature, periodKey); err != nil {
		return nil, err
	}
	var c models.UsageCounter
	if err := db.Where("identity_id = ? AND feature = ? AND period_key = ?", identityID, feature, periodKey).
		First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *gormStore) CounterValue(ctx context.Context, identityID, feature, periodKey string) (int64, error) {
	var consumed int64
	err := s.db.WithContext(ctx).Model(&models.UsageCounter{}).
		Select("consumed").
		Where("identity_id = ? AND feature = ? AND period_key = ?", identityID, feature, periodKey).
		Limit(1).
		Scan(&consumed).Error
	return consumed, translate(err)
}

// TryDebit adds amount to the counter only if the result stays within limit.
// The check and the increment are a single conditional UPDATE, so concurrent
// debits against the same row serialize in the database and never overshoot.
func (s *gormStore) TryDebit(ctx context.Context, identityID, feature, periodKey string, amount, limit int64) (DebitResult, error) {
	if amount <= 0 {
		return DebitResult{}, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	var result DebitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureCounter(tx, identityID, feature, periodKey); err != nil {
			return err
		}

		res := tx.Model(&models.UsageCounter{}).
			Where("identity_id = ? AND feature = ? AND period_key = ? AND consumed + ? <= ?",
				identityID, feature, periodKey, amount, limit).
			Update("consumed", gorm.Expr("consumed + ?", amount))
		if res.Error != nil {
			return translate(res.Error)
		}

		var c models.UsageCounter
		if err := tx.Where("identity_id = ? AND feature = ? AND period_key = ?", identityID, feature, periodKey).
			First(&c).Error; err != nil {
			return translate(err)
		}

		result.Consumed = c.Consumed
		if res.RowsAffected == 1 {
			result.Outcome = DebitAllowed
		}
		return nil
	})
	return result, err
}

func ensureCounter(db *gorm.DB, identityID, feature, periodKey string) error {
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_id"}, {Name: "feature"}, {Name: "period_key"}},
		DoNothing: true,
	}).Create(&models.UsageCounter{
		IdentityID: identityID,
		Feature:    feature,
		PeriodKey:  periodKey,
	}).Error
	return translate(err)
}

func (s *gormStore) RecordPaymentEvent(ctx context.Context, event *models.PaymentEvent) (RecordOutcome, error) {
	if event.EventID == "" {
		return RecordDuplicate, errors.New("event_id is required")
	}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return RecordDuplicate, translate(tx.Error)
	}
	if tx.RowsAffected == 0 {
		return RecordDuplicate, nil
	}
	return RecordInserted, nil
}

func (s *gormStore) UpdatePaymentOutcome(ctx context.Context, eventID, outcome, reason string) error {
	res := s.db.WithContext(ctx).Model(&models.PaymentEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{"outcome": outcome, "reason": reason})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) GetPaymentEvent(ctx context.Context, eventID string) (*models.PaymentEvent, error) {
	var ev models.PaymentEvent
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&ev).Error; err != nil {
		return nil, translate(err)
	}
	return &ev, nil
}

func (s *gormStore) ListPaymentEvents(ctx context.Context, filter PaymentFilter) ([]models.PaymentEvent, error) {
	q := s.db.WithContext(ctx).Model(&models.PaymentEvent{})
	if filter.IdentityID != "" {
		q = q.Where("identity_id = ?", filter.IdentityID)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Outcome != "" {
		q = q.Where("outcome = ?", filter.Outcome)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		q = q.Where("created_at < ?", filter.Until.UTC())
	}

	var events []models.PaymentEvent
	err := q.Order("id DESC").Limit(clampLimit(filter.Limit)).Find(&events).Error
	return events, translate(err)
}

func (s *gormStore) RecordReferral(ctx context.Context, referral *models.Referral) (bool, error) {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referrer_id"}, {Name: "referred_id"}},
		DoNothing: true,
	}).Create(referral)
	if tx.Error != nil {
		return false, translate(tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

func (s *gormStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	return translate(s.db.WithContext(ctx).Create(entry).Error)
}

func (s *gormStore) ListAudit(ctx context.Context, identityID string, limit int) ([]models.AuditEntry, error) {
	q := s.db.WithContext(ctx).Model(&models.AuditEntry{})
	if identityID != "" {
		q = q.Where("identity_id = ?", identityID)
	}
	var entries []models.AuditEntry
	err := q.Order("id DESC").Limit(clampLimit(limit)).Find(&entries).Error
	return entries, translate(err)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
