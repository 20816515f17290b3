package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/controllers"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/constants"
)

// Middlewares attached to individual route groups. Nil entries are skipped.
type Middlewares struct {
	AdminAuth      fiber.Handler
	WebhookLimiter fiber.Handler
}

// RegisterHandlers mounts the v1 API on router.
func RegisterHandlers(router fiber.Router, ctl *controllers.Controller, mw Middlewares) {
	router.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ping": "pong"})
	})

	router.Post("/entitlements/check", ctl.HandleCheckEntitlement)
	router.Get("/entitlements/:identity", ctl.HandleGetEntitlements)
	router.Post("/trials", ctl.HandleGrantTrial)

	webhook := []fiber.Handler{}
	if mw.WebhookLimiter != nil {
		webhook = append(webhook, mw.WebhookLimiter)
	}
	router.Post("/payments/webhook", append(webhook, ctl.HandlePaymentWebhook)...)

	admin := router.Group(constants.AdminRoute)
	if mw.AdminAuth != nil {
		admin.Use(mw.AdminAuth)
	}
	admin.Post("/activations", ctl.HandleAdminActivation)
	admin.Post("/referrals", ctl.HandleAdminReferral)
	admin.Get("/subscriptions/:identity", ctl.HandleAdminGetSubscription)
	admin.Get("/payments", ctl.HandleAdminListPayments)
	admin.Post("/payments/export", ctl.HandleAdminExportPayments)
	admin.Post("/sweep", ctl.HandleAdminSweep)
	admin.Get("/usage/:day", ctl.HandleAdminUsage)
	admin.Get("/audit", ctl.HandleAdminAudit)
}
