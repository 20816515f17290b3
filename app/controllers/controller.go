package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/billing"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/entitlements"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/ledgerexport"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/lifecycle"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/metrics/counter"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/sweeper"
)

// Deps are the services the HTTP handlers delegate to. Sweeper, Exporter and
// Usage are optional; their endpoints answer 503 when unset.
type Deps struct {
	Store     store.Store
	Engine    *entitlements.Engine
	Lifecycle *lifecycle.Manager
	Billing   *billing.Service
	Sweeper   *sweeper.Sweeper
	Exporter  *ledgerexport.Exporter
	Usage     *counter.Recorder
	Clock     clockwork.Clock
}

type Controller struct {
	deps     Deps
	validate *validator.Validate
}

func NewController(deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Controller{deps: deps, validate: validator.New()}
}

func (ctl *Controller) now() time.Time {
	return ctl.deps.Clock.Now().UTC()
}

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// bindJSON parses and validates the request body into dst. When it reports
// false the 400 response has already been written.
func (ctl *Controller) bindJSON(c *fiber.Ctx, dst interface{}) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	if err := ctl.validate.Struct(dst); err != nil {
		return false, errorJSON(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}
	return true, nil
}

// handleError maps domain errors onto HTTP responses.
func handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrServiceUnavailable):
		return errorJSON(c, fiber.StatusServiceUnavailable, "service_unavailable", "Please retry shortly")
	case errors.Is(err, store.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, entitlements.ErrInvalidCost),
		errors.Is(err, entitlements.ErrMissingIdentity),
		errors.Is(err, entitlements.ErrUnknownPlan),
		errors.Is(err, lifecycle.ErrNotPaidPlan),
		errors.Is(err, lifecycle.ErrInvalidBonus),
		errors.Is(err, billing.ErrMalformedPayload):
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, billing.ErrNotAdmin):
		return errorJSON(c, fiber.StatusForbidden, "forbidden", "Actor is not an admin")
	default:
		return errorJSON(c, fiber.StatusInternalServerError, "internal_server_error", "Unexpected error")
	}
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
