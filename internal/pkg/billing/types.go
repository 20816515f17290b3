package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/models"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/entitlements"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/lifecycle"
)

var (
	ErrMalformedPayload = errors.New("malformed payment payload")
	ErrNotAdmin         = errors.New("actor is not an admin")
)

type Outcome string

const (
	OutcomeApplied          Outcome = models.PaymentOutcomeApplied
	OutcomeDuplicateIgnored Outcome = models.PaymentOutcomeDuplicateIgnored
	OutcomeRejected         Outcome = models.PaymentOutcomeRejected
	// OutcomeIgnored acknowledges a gateway notification that carries no
	// billing effect. It never claims a ledger row.
	OutcomeIgnored Outcome = "ignored"
)

const (
	ReasonInvalidSignature = "invalid_signature"
	ReasonNotAdmin         = "not_admin"
	ReasonUnknownPlan      = "unknown_plan"
	ReasonUnderpaid        = "amount_below_price"
	ReasonDowngradeRefused = "downgrade_refused"
	ReasonNotBillable      = "event_not_billable"
)

// Result describes what processing one payment event did.
type Result struct {
	Outcome      Outcome                    `json:"outcome"`
	Reason       string                     `json:"reason,omitempty"`
	EventID      string                     `json:"event_id,omitempty"`
	IdentityID   string                     `json:"identity_id,omitempty"`
	Plan         entitlements.Plan          `json:"plan,omitempty"`
	Activation   lifecycle.ActivationResult `json:"activation,omitempty"`
	Referral     lifecycle.ReferralResult   `json:"referral,omitempty"`
	Subscription *models.Subscription       `json:"subscription,omitempty"`
}

// IsAuthenticityFailure reports a rejection that was never recorded in the ledger.
func (r *Result) IsAuthenticityFailure() bool {
	return r.Outcome == OutcomeRejected && (r.Reason == ReasonInvalidSignature || r.Reason == ReasonNotAdmin)
}

// ManualActivation is an owner/admin-issued activation without a gateway payment.
type ManualActivation struct {
	EventID              string `json:"event_id" validate:"required,max=191"`
	IdentityID           string `json:"identity_id" validate:"required,max=64"`
	PlanCode             string `json:"plan_code" validate:"required"`
	DurationOverrideDays int    `json:"duration_override_days" validate:"gte=0,lte=3650"`
	ActorID              string `json:"actor_id" validate:"required,max=64"`
	ReferralCode         string `json:"referral_code" validate:"max=64"`
}

// paymentInput is the source-neutral shape both entry points reduce to.
type paymentInput struct {
	EventID              string
	IdentityID           string
	PlanCode             string
	AmountMinor          *int64
	Currency             string
	ReferralCode         string
	Source               string
	ActorID              string
	DurationOverrideDays int
	Event                string
	NotBillable          bool
}

// gatewayPayload accepts a flat event body as well as the nested
// payload.payment.entity shape with identity and plan carried in notes.
type gatewayPayload struct {
	EventID      string `json:"event_id"`
	IdentityID   string `json:"identity_id"`
	PlanCode     string `json:"plan_code"`
	Amount       *int64 `json:"amount"`
	Currency     string `json:"currency"`
	ReferralCode string `json:"referral_code"`

	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string         `json:"id"`
				Amount   *int64         `json:"amount"`
				Currency string         `json:"currency"`
				Notes    map[string]any `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func parseGatewayPayload(raw []byte) (paymentInput, error) {
	var p gatewayPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return paymentInput{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	in := paymentInput{
		EventID:      strings.TrimSpace(p.EventID),
		IdentityID:   strings.TrimSpace(p.IdentityID),
		PlanCode:     strings.TrimSpace(p.PlanCode),
		AmountMinor:  p.Amount,
		Currency:     strings.ToUpper(strings.TrimSpace(p.Currency)),
		ReferralCode: strings.TrimSpace(p.ReferralCode),
		Source:       models.PaymentSourceGateway,
	}

	entity := p.Payload.Payment.Entity
	if entity.ID != "" {
		notes := entity.Notes
		in.EventID = firstNonEmpty(in.EventID, entity.ID)
		in.IdentityID = firstNonEmpty(in.IdentityID, noteString(notes, "identity_id"), noteString(notes, "user_id"))
		in.PlanCode = firstNonEmpty(in.PlanCode, noteString(notes, "plan"), noteString(notes, "plan_code"))
		in.ReferralCode = firstNonEmpty(in.ReferralCode, noteString(notes, "referral_code"), noteString(notes, "ref"))
		in.Currency = firstNonEmpty(in.Currency, strings.ToUpper(entity.Currency))
		if in.AmountMinor == nil {
			in.AmountMinor = entity.Amount
		}
	}
	in.Event = strings.TrimSpace(p.Event)
	if in.Event != "" && in.Event != "payment.captured" {
		in.NotBillable = true
	}

	if in.EventID == "" || in.IdentityID == "" {
		return paymentInput{}, fmt.Errorf("%w: event_id and identity_id are required", ErrMalformedPayload)
	}
	if in.AmountMinor != nil && *in.AmountMinor < 0 {
		return paymentInput{}, fmt.Errorf("%w: negative amount", ErrMalformedPayload)
	}
	return in, nil
}

func noteString(notes map[string]any, key string) string {
	switch v := notes[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
