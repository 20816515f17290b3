// Package sweeper periodically downgrades subscriptions whose expiry passed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/cache"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/env"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/metrics"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
)

// LockKey guards sweeps across instances.
const LockKey = "sweeper:expiry:lock"

// Config holds sweeper settings.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	LockTTL     time.Duration
}

// LoadConfig reads SWEEP_* settings from the environment.
func LoadConfig() Config {
	cfg := Config{
		Interval:    env.GetEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		BatchSize:   env.GetEnvInt("SWEEP_BATCH_SIZE", 200),
		Concurrency: env.GetEnvInt("SWEEP_CONCURRENCY", 8),
		LockTTL:     env.GetEnvDuration("SWEEP_LOCK_TTL", 0),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.Interval
	}
	return c
}

// Expirer downgrades one identity if its subscription is past expiry.
type Expirer interface {
	ExpireIfDue(ctx context.Context, identityID string, now time.Time) (bool, error)
}

// Result summarizes one sweep run.
type Result struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Scanned    int       `json:"scanned"`
	Expired    int       `json:"expired"`
	Failed     int       `json:"failed"`
	Skipped    bool      `json:"skipped"`
}

// Sweeper runs expiry sweeps on a cron schedule or on demand.
type Sweeper struct {
	store   store.Store
	expirer Expirer
	locker  *cache.Locker
	clock   clockwork.Clock
	cfg     Config
	metrics *metrics.Metrics

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	// runMu keeps a manual run and a scheduled run in this process from overlapping.
	runMu sync.Mutex
}

type Option func(*Sweeper)

// WithLocker enables the cross-instance lock. Without it only local runs are serialized.
func WithLocker(l *cache.Locker) Option { return func(s *Sweeper) { s.locker = l } }
func WithClock(c clockwork.Clock) Option { return func(s *Sweeper) { s.clock = c } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Sweeper) { s.metrics = m } }

func New(s store.Store, expirer Expirer, cfg Config, opts ...Option) *Sweeper {
	sw := &Sweeper{
		store:   s,
		expirer: expirer,
		clock:   clockwork.NewRealClock(),
		cfg:     cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// Start schedules sweeps every configured interval.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc("@every "+s.cfg.Interval.String(), s.runScheduled); err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	c.Start()
	s.cron = c
	s.running = true
	log.Infof("[Sweeper] Started (interval: %s, batch: %d, concurrency: %d)", s.cfg.Interval, s.cfg.BatchSize, s.cfg.Concurrency)
	return nil
}

// Stop halts scheduling and waits for a sweep in progress.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	log.Info("[Sweeper] Stopping...")
	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false
	log.Info("[Sweeper] Stopped")
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LockTTL)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		log.Errorf("[Sweeper] Scheduled sweep failed: %v", err)
	}
}

// RunOnce sweeps every subscription expired at the current time. Failures on
// individual rows are logged and counted; they do not stop the sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res := Result{RunID: uuid.NewString(), StartedAt: s.clock.Now()}

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, LockKey, s.cfg.LockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			res.Skipped = true
			res.FinishedAt = s.clock.Now()
			log.Debugf("[Sweeper] Run %s skipped: another instance is sweeping", res.RunID)
			s.metrics.ObserveSweep("skipped", 0, 0, res.StartedAt, res.FinishedAt)
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("acquire sweep lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				log.Warnf("[Sweeper] Failed to release lock: %v", err)
			}
		}()
	}

	now := s.clock.Now()
	cursor := ""
	for {
		page, err := s.store.ListExpiredSubscriptions(ctx, now, cursor, s.cfg.BatchSize)
		if err != nil {
			res.FinishedAt = s.clock.Now()
			s.metrics.ObserveSweep("failed", res.Expired, res.Failed, res.StartedAt, res.FinishedAt)
			return res, fmt.Errorf("list expired subscriptions: %w", err)
		}
		if len(page) == 0 {
			break
		}
		cursor = page[len(page)-1].IdentityID
		res.Scanned += len(page)

		expired, failed := s.expireBatch(ctx, page, now)
		res.Expired += expired
		res.Failed += failed

		if len(page) < s.cfg.BatchSize {
			break
		}
	}

	res.FinishedAt = s.clock.Now()
	s.metrics.ObserveSweep("completed", res.Expired, res.Failed, res.StartedAt, res.FinishedAt)
	if res.Scanned > 0 {
		log.Infof("[Sweeper] Run %s: scanned %d, expired %d, failed %d", res.RunID, res.Scanned, res.Expired, res.Failed)
	}
	return res, nil
}

func (s *Sweeper) expireBatch(ctx context.Context, page []models.Subscription, now time.Time) (int, int) {
	var expired, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for _, sub := range page {
		identityID := sub.IdentityID
		g.Go(func() error {
			ok, err := s.expirer.ExpireIfDue(ctx, identityID, now)
			if err != nil {
				failed.Add(1)
				log.Errorf("[Sweeper] Failed to expire %s: %v", identityID, err)
				return nil
			}
			if ok {
				expired.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(expired.Load()), int(failed.Load())
}
