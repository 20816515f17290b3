package entitlements

import (
	"strings"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
)

type Plan string

const (
	PlanFree  Plan = models.PlanIDFree
	PlanTrial Plan = models.PlanIDTrial
	PlanBasic Plan = models.PlanIDBasic
	PlanPro   Plan = models.PlanIDPro
	PlanUltra Plan = models.PlanIDUltra
)

// AllPlans lists plans in ascending rank.
var AllPlans = []Plan{PlanFree, PlanTrial, PlanBasic, PlanPro, PlanUltra}

// NormalizePlan maps loosely formatted input to a known plan. ok is false for
// anything unrecognized.
func NormalizePlan(raw string) (Plan, bool) {
	p := Plan(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllPlans {
		if p == known {
			return p, true
		}
	}
	return PlanFree, false
}

// IsPaid reports whether p can be bought.
func (p Plan) IsPaid() bool {
	switch p {
	case PlanBasic, PlanPro, PlanUltra:
		return true
	default:
		return false
	}
}

// IsTimeBounded reports whether p carries an expiry.
func (p Plan) IsTimeBounded() bool {
	return p != PlanFree
}

type Feature string

const (
	FeatureAIChat       Feature = "ai_chat"
	FeatureSummarizer   Feature = "summarizer"
	FeatureAIImage      Feature = "ai_image"
	FeatureDownloader   Feature = "downloader"
	FeatureDownloader4K Feature = "downloader_4k"
	FeatureTranslator   Feature = "translator"
	FeatureToolsBasic   Feature = "tools_basic"
)

// AllFeatures is the fixed set of gated features.
var AllFeatures = []Feature{
	FeatureAIChat,
	FeatureSummarizer,
	FeatureAIImage,
	FeatureDownloader,
	FeatureDownloader4K,
	FeatureTranslator,
	FeatureToolsBasic,
}

func ParseFeature(raw string) (Feature, bool) {
	f := Feature(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllFeatures {
		if f == known {
			return f, true
		}
	}
	return f, false
}
