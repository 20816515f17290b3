// Package clock maps wall-clock instants to quota periods.
package clock

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/env"
)

type PeriodKind string

const (
	PeriodDay       PeriodKind = "day"
	PeriodMonth     PeriodKind = "month"
	PeriodUnlimited PeriodKind = "unlimited"
)

// ErrNoPeriod is returned for kinds that have no bounded period.
var ErrNoPeriod = errors.New("period kind has no boundaries")

// Period is the half-open interval [Start, End) a quota is counted in.
type Period struct {
	Kind  PeriodKind
	Key   string
	Start time.Time
	End   time.Time
}

// Calculator resolves periods in a fixed quota time zone. It is safe for
// concurrent use.
type Calculator struct {
	loc *time.Location
}

func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc}
}

// NewCalculatorFromEnv reads QUOTA_TIMEZONE (IANA name, default UTC).
func NewCalculatorFromEnv() (*Calculator, error) {
	name := env.GetEnv("QUOTA_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTA_TIMEZONE %q: %w", name, err)
	}
	return NewCalculator(loc), nil
}

func (c *Calculator) Location() *time.Location { return c.loc }

// PeriodFor returns the period of the given kind that contains t.
func (c *Calculator) PeriodFor(kind PeriodKind, t time.Time) (Period, error) {
	local := t.In(c.loc)
	switch kind {
	case PeriodDay:
		start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
		return Period{
			Kind:  kind,
			Key:   "day:" + start.Format("2006-01-02"),
			Start: start,
			End:   start.AddDate(0, 0, 1),
		}, nil
	case PeriodMonth:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, c.loc)
		return Period{
			Kind:  kind,
			Key:   "month:" + start.Format("2006-01"),
			Start: start,
			End:   start.AddDate(0, 1, 0),
		}, nil
	case PeriodUnlimited:
		return Period{}, ErrNoPeriod
	default:
		return Period{}, fmt.Errorf("unknown period kind %q", kind)
	}
}

// Day returns the calendar day of t in the quota zone, as used by analytics keys.
func (c *Calculator) Day(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// Real is the process wall clock.
func Real() clockwork.Clock {
	return clockwork.NewRealClock()
}

func ValidKind(kind PeriodKind) bool {
	switch kind {
	case PeriodDay, PeriodMonth, PeriodUnlimited:
		return true
	}
	return false
}
