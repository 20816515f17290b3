package entitlements

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/clock"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/env"
)

var ErrUnknownPlan = errors.New("unknown plan")

// Quota is the allowance for one feature in one plan.
type Quota struct {
	Limit  int64            `yaml:"limit" json:"limit" validate:"gte=0"`
	Period clock.PeriodKind `yaml:"period" json:"period" validate:"required,oneof=day month unlimited"`
}

func (q Quota) Unlimited() bool { return q.Period == clock.PeriodUnlimited }

// PlanDefinition describes one tier. Prices are in minor currency units.
type PlanDefinition struct {
	ID                Plan              `yaml:"id" json:"id" validate:"required,oneof=free trial basic pro ultra"`
	Code              string            `yaml:"code" json:"code"`
	Name              string            `yaml:"name" json:"name"`
	Rank              int               `yaml:"rank" json:"rank" validate:"gte=0"`
	PriceMinor        int64             `yaml:"price_minor" json:"price_minor" validate:"gte=0"`
	Currency          string            `yaml:"currency" json:"currency"`
	BillingPeriodDays int               `yaml:"billing_period_days" json:"billing_period_days" validate:"gte=0"`
	Quotas            map[Feature]Quota `yaml:"quotas" json:"quotas" validate:"dive"`
}

// Quota returns the allowance for feature, ok=false when the plan lacks it.
func (p PlanDefinition) Quota(feature Feature) (Quota, bool) {
	q, ok := p.Quotas[feature]
	return q, ok
}

type catalogFile struct {
	Plans []PlanDefinition `yaml:"plans" validate:"required,min=1,dive"`
}

// Catalog is the immutable plan table. Build it once and share the pointer.
type Catalog struct {
	plans  map[Plan]PlanDefinition
	byCode map[string]Plan
}

// NewCatalog validates defs and builds a catalog.
func NewCatalog(defs []PlanDefinition) (*Catalog, error) {
	v := validator.New()
	c := &Catalog{
		plans:  make(map[Plan]PlanDefinition, len(defs)),
		byCode: make(map[string]Plan, len(defs)),
	}
	for _, def := range defs {
		if err := v.Struct(def); err != nil {
			return nil, fmt.Errorf("plan %q: %w", def.ID, err)
		}
		if _, dup := c.plans[def.ID]; dup {
			return nil, fmt.Errorf("plan %q defined twice", def.ID)
		}
		quotas := make(map[Feature]Quota, len(def.Quotas))
		for raw, q := range def.Quotas {
			feature, ok := ParseFeature(string(raw))
			if !ok {
				return nil, fmt.Errorf("plan %q: unknown feature %q", def.ID, raw)
			}
			if _, dup := quotas[feature]; dup {
				return nil, fmt.Errorf("plan %q: feature %q defined twice", def.ID, feature)
			}
			if !q.Unlimited() && q.Limit <= 0 {
				return nil, fmt.Errorf("plan %q: feature %q needs a positive limit", def.ID, feature)
			}
			quotas[feature] = q
		}
		def.Quotas = quotas
		if def.ID.IsTimeBounded() && def.BillingPeriodDays <= 0 {
			return nil, fmt.Errorf("plan %q: billing_period_days must be positive", def.ID)
		}
		if def.ID.IsPaid() && def.PriceMinor <= 0 {
			return nil, fmt.Errorf("plan %q: price_minor must be positive", def.ID)
		}
		if def.Code == "" {
			def.Code = string(def.ID)
		}
		def.Code = strings.ToLower(def.Code)
		c.plans[def.ID] = def
		c.byCode[def.Code] = def.ID
	}
	for _, p := range AllPlans {
		if _, ok := c.plans[p]; !ok {
			return nil, fmt.Errorf("plan %q missing from catalog", p)
		}
	}
	return c, nil
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("plan catalog: %w", err)
	}
	return NewCatalog(f.Plans)
}

// LoadCatalogFromEnv loads PLANS_FILE, or the built-in defaults when unset.
func LoadCatalogFromEnv() (*Catalog, error) {
	if path := env.GetEnv("PLANS_FILE", ""); path != "" {
		return LoadCatalog(path)
	}
	return DefaultCatalog(), nil
}

func (c *Catalog) Plan(id Plan) (PlanDefinition, bool) {
	def, ok := c.plans[id]
	return def, ok
}

// ByCode resolves a gateway product code or plan id, case-insensitively.
func (c *Catalog) ByCode(code string) (PlanDefinition, bool) {
	key := strings.ToLower(strings.TrimSpace(code))
	if id, ok := c.byCode[key]; ok {
		return c.plans[id], true
	}
	if p, ok := NormalizePlan(key); ok {
		return c.plans[p], true
	}
	return PlanDefinition{}, false
}

// ByPrice returns the paid plan with exactly this price. Ambiguous prices do not match.
func (c *Catalog) ByPrice(amountMinor int64) (PlanDefinition, bool) {
	var found PlanDefinition
	matches := 0
	for _, def := range c.plans {
		if def.ID.IsPaid() && def.PriceMinor == amountMinor {
			found = def
			matches++
		}
	}
	return found, matches == 1
}

func (c *Catalog) Rank(id Plan) int {
	return c.plans[id].Rank
}

// TrialDays is the trial plan's duration.
func (c *Catalog) TrialDays() int {
	return c.plans[PlanTrial].BillingPeriodDays
}

// Plans returns all definitions in rank order.
func (c *Catalog) Plans() []PlanDefinition {
	out := make([]PlanDefinition, 0, len(c.plans))
	for _, def := range c.plans {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

func daily(limit int64) Quota   { return Quota{Limit: limit, Period: clock.PeriodDay} }
func monthly(limit int64) Quota { return Quota{Limit: limit, Period: clock.PeriodMonth} }

var unlimited = Quota{Period: clock.PeriodUnlimited}

// DefaultPlans is the built-in tier table.
func DefaultPlans() []PlanDefinition {
	return []PlanDefinition{
		{
			ID: PlanFree, Name: "Free", Rank: 0, Currency: "INR",
			Quotas: map[Feature]Quota{
				FeatureAIChat:     daily(10),
				FeatureSummarizer: daily(2),
				FeatureDownloader: daily(5),
				FeatureTranslator: daily(10),
				FeatureToolsBasic: daily(20),
			},
		},
		{
			ID: PlanTrial, Name: "Trial", Rank: 1, Currency: "INR", BillingPeriodDays: 3,
			Quotas: map[Feature]Quota{
				FeatureAIChat:       daily(50),
				FeatureSummarizer:   daily(10),
				FeatureAIImage:      daily(5),
				FeatureDownloader:   daily(20),
				FeatureDownloader4K: daily(2),
				FeatureTranslator:   daily(50),
				FeatureToolsBasic:   unlimited,
			},
		},
		{
			ID: PlanBasic, Name: "Basic", Rank: 2, PriceMinor: 9900, Currency: "INR", BillingPeriodDays: 30,
			Quotas: map[Feature]Quota{
				FeatureAIChat:       daily(100),
				FeatureSummarizer:   daily(20),
				FeatureAIImage:      monthly(30),
				FeatureDownloader:   daily(50),
				FeatureDownloader4K: monthly(10),
				FeatureTranslator:   daily(100),
				FeatureToolsBasic:   unlimited,
			},
		},
		{
			ID: PlanPro, Name: "Pro", Rank: 3, PriceMinor: 24900, Currency: "INR", BillingPeriodDays: 90,
			Quotas: map[Feature]Quota{
				FeatureAIChat:       daily(500),
				FeatureSummarizer:   daily(100),
				FeatureAIImage:      monthly(200),
				FeatureDownloader:   unlimited,
				FeatureDownloader4K: monthly(100),
				FeatureTranslator:   unlimited,
				FeatureToolsBasic:   unlimited,
			},
		},
		{
			ID: PlanUltra, Name: "Ultra", Rank: 4, PriceMinor: 79900, Currency: "INR", BillingPeriodDays: 365,
			Quotas: map[Feature]Quota{
				FeatureAIChat:       unlimited,
				FeatureSummarizer:   unlimited,
				FeatureAIImage:      monthly(1000),
				FeatureDownloader:   unlimited,
				FeatureDownloader4K: unlimited,
				FeatureTranslator:   unlimited,
				FeatureToolsBasic:   unlimited,
			},
		},
	}
}

// DefaultCatalog builds the catalog from DefaultPlans.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultPlans())
	if err != nil {
		panic(err)
	}
	return c
}
