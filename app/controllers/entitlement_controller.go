package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/entitlements"
)

type checkRequest struct {
	IdentityID string `json:"identity_id" validate:"required,max=64"`
	Feature    string `json:"feature" validate:"required,max=32"`
	Cost       int64  `json:"cost" validate:"gte=0"`
}

// HandleCheckEntitlement decides one feature invocation and debits quota when allowed.
// A denial is still a 200; callers branch on "allowed".
func (ctl *Controller) HandleCheckEntitlement(c *fiber.Ctx) error {
	var req checkRequest
	if ok, err := ctl.bindJSON(c, &req); !ok {
		return err
	}

	decision, err := ctl.deps.Engine.CheckAndConsume(c.UserContext(), req.IdentityID, entitlements.Feature(req.Feature), req.Cost, ctl.now())
	if err != nil {
		log.Errorf("[Engine] Check for %s/%s failed: %v", req.IdentityID, req.Feature, err)
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"allowed":    decision.Allowed,
		"reason":     decision.Reason,
		"plan":       decision.Plan,
		"feature":    decision.Feature,
		"cost":       decision.Cost,
		"unlimited":  decision.Unlimited,
		"consumed":   decision.Consumed,
		"limit":      decision.Limit,
		"remaining":  decision.Remaining(),
		"period_key": decision.PeriodKey,
		"resets_at":  formatTimePtr(decision.ResetsAt),
	})
}

// HandleGetEntitlements returns the read-only usage snapshot for an identity.
func (ctl *Controller) HandleGetEntitlements(c *fiber.Ctx) error {
	snapshot, err := ctl.deps.Engine.Snapshot(c.UserContext(), c.Params("identity"), ctl.now())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(snapshot)
}

type trialRequest struct {
	IdentityID string `json:"identity_id" validate:"required,max=64"`
}

// HandleGrantTrial starts the one-time trial. Ineligible identities get 200
// with the result and unchanged subscription.
func (ctl *Controller) HandleGrantTrial(c *fiber.Ctx) error {
	var req trialRequest
	if ok, err := ctl.bindJSON(c, &req); !ok {
		return err
	}

	result, sub, err := ctl.deps.Lifecycle.GrantTrial(c.UserContext(), req.IdentityID, ctl.now())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(fiber.Map{"result": result, "subscription": sub})
}
