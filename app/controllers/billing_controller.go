package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/billing"
)

const HeaderPaymentSignature = "X-Payment-Signature"

// HandlePaymentWebhook receives gateway payment confirmations. The raw body is
// verified against the signature header before anything is parsed.
func (ctl *Controller) HandlePaymentWebhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	res, err := ctl.deps.Billing.HandleGatewayEvent(c.UserContext(), body, c.Get(HeaderPaymentSignature), ctl.now())
	if err != nil {
		if errors.Is(err, billing.ErrMalformedPayload) {
			return errorJSON(c, fiber.StatusBadRequest, "malformed_payload", err.Error())
		}
		return handleError(c, err)
	}
	if res.IsAuthenticityFailure() {
		return errorJSON(c, fiber.StatusUnauthorized, "invalid_signature", "Signature verification failed")
	}
	return c.JSON(fiber.Map{
		"outcome":  res.Outcome,
		"reason":   res.Reason,
		"event_id": res.EventID,
	})
}
