package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/billing"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/usercontext"
)

type activationRequest struct {
	EventID              string `json:"event_id"`
	IdentityID           string `json:"identity_id" validate:"required,max=64"`
	PlanCode             string `json:"plan_code" validate:"required"`
	DurationOverrideDays int    `json:"duration_override_days" validate:"gte=0,lte=3650"`
	ReferralCode         string `json:"referral_code" validate:"max=64"`
}

// HandleAdminActivation applies a manual activation on behalf of the calling admin.
func (ctl *Controller) HandleAdminActivation(c *fiber.Ctx) error {
	var req activationRequest
	if ok, err := ctl.bindJSON(c, &req); !ok {
		return err
	}

	actor := usercontext.GetActorID(c)
	eventID := req.EventID
	if eventID == "" {
		// without a caller-supplied id every request is a distinct activation
		eventID = "manual:" + actor + ":" + req.IdentityID + ":" + strconv.FormatInt(ctl.now().UnixNano(), 10)
	}

	res, err := ctl.deps.Billing.HandleManualActivation(c.UserContext(), billing.ManualActivation{
		EventID:              eventID,
		IdentityID:           req.IdentityID,
		PlanCode:             req.PlanCode,
		DurationOverrideDays: req.DurationOverrideDays,
		ActorID:              actor,
		ReferralCode:         req.ReferralCode,
	}, ctl.now())
	if err != nil {
		return handleError(c, err)
	}
	if res.IsAuthenticityFailure() {
		return errorJSON(c, fiber.StatusForbidden, "forbidden", "Actor is not an admin")
	}
	return c.JSON(res)
}

type referralRequest struct {
	ReferrerID string `json:"referrer_id"`
	ReferredID string `json:"referred_id"`
	BonusDays  int    `json:"bonus_days"`
}

func (ctl *Controller) HandleAdminReferral(c *fiber.Ctx) error {
	var req referralRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	res, err := ctl.deps.Billing.GrantReferral(c.UserContext(), billing.ReferralGrant{
		ReferrerID: req.ReferrerID,
		ReferredID: req.ReferredID,
		BonusDays:  req.BonusDays,
		ActorID:    usercontext.GetActorID(c),
	}, ctl.now())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(res)
}

// HandleAdminGetSubscription returns the stored subscription row as is,
// including rows already past expiry.
func (ctl *Controller) HandleAdminGetSubscription(c *fiber.Ctx) error {
	sub, err := ctl.deps.Store.GetSubscription(c.UserContext(), c.Params("identity"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{
		"subscription": sub,
		"expired":      sub.IsExpired(ctl.now()),
		"effective":    sub.EffectivePlanID(ctl.now()),
	})
}

func paymentFilterFromQuery(c *fiber.Ctx) (store.PaymentFilter, error) {
	filter := store.PaymentFilter{
		IdentityID: c.Query("identity"),
		Source:     c.Query("source"),
		Outcome:    c.Query("outcome"),
		Limit:      c.QueryInt("limit", 50),
	}
	for key, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New(key + " must be RFC3339")
		}
		*dst = &t
	}
	return filter, nil
}

// HandleAdminListPayments lists ledger rows, newest first.
func (ctl *Controller) HandleAdminListPayments(c *fiber.Ctx) error {
	filter, err := paymentFilterFromQuery(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	events, err := ctl.deps.Store.ListPaymentEvents(c.UserContext(), filter)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"payments": events, "count": len(events)})
}

// HandleAdminExportPayments uploads the filtered ledger as CSV to object storage.
func (ctl *Controller) HandleAdminExportPayments(c *fiber.Ctx) error {
	if ctl.deps.Exporter == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "export_disabled", "Ledger export is not configured")
	}
	filter, err := paymentFilterFromQuery(c)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}
	export, err := ctl.deps.Exporter.Export(c.UserContext(), filter, ctl.now())
	if err != nil {
		log.Errorf("[LedgerExport] Export failed: %v", err)
		return handleError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(export)
}

// HandleAdminSweep runs one expiry sweep synchronously.
func (ctl *Controller) HandleAdminSweep(c *fiber.Ctx) error {
	if ctl.deps.Sweeper == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "sweeper_disabled", "Sweeper is not configured")
	}
	res, err := ctl.deps.Sweeper.RunOnce(c.UserContext())
	if err != nil {
		log.Errorf("[Sweeper] Manual sweep by %q failed: %v", usercontext.GetActorID(c), err)
		return handleError(c, err)
	}
	return c.JSON(res)
}

// HandleAdminUsage reports per-feature usage totals for a day (YYYY-MM-DD).
func (ctl *Controller) HandleAdminUsage(c *fiber.Ctx) error {
	if ctl.deps.Usage == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "analytics_disabled", "Usage analytics are not configured")
	}
	day := c.Params("day")
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "day must be YYYY-MM-DD")
	}
	usage, err := ctl.deps.Usage.DailyUsage(c.UserContext(), day)
	if err != nil {
		log.Errorf("[Admin] Usage lookup for %s failed: %v", day, err)
		return errorJSON(c, fiber.StatusServiceUnavailable, "service_unavailable", "Usage analytics unavailable")
	}
	return c.JSON(fiber.Map{"day": day, "features": usage})
}

func (ctl *Controller) HandleAdminAudit(c *fiber.Ctx) error {
	entries, err := ctl.deps.Store.ListAudit(c.UserContext(), c.Query("identity"), c.QueryInt("limit", 100))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"entries": entries, "count": len(entries)})
}
