package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/akshayverma3685/SmartX-Assistance-Bot/internal/api/v1"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/controllers"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/constants"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/middleware"
)

// ApiConfig configures the /api group.
type ApiConfig struct {
	AdminKeyHash string
	// WebhookRateLimit is deliveries per minute per client IP; zero disables the limiter.
	WebhookRateLimit int
	// LimiterStorage shares limiter counters across instances. Nil keeps them in memory.
	LimiterStorage fiber.Storage
}

type ApiRouter struct {
	ctl *controllers.Controller
	cfg ApiConfig
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "SmartX entitlement API",
		})
	})

	mw := apiv1.Middlewares{
		AdminAuth: middleware.AdminKeyMiddleware(h.cfg.AdminKeyHash),
	}
	if h.cfg.WebhookRateLimit > 0 {
		mw.WebhookLimiter = limiter.New(limiter.Config{
			Max:        h.cfg.WebhookRateLimit,
			Expiration: time.Minute,
			Storage:    h.cfg.LimiterStorage,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many webhook deliveries"})
			},
		})
	}

	// API v1 routes
	v1 := api.Group(constants.APIV1Route)
	apiv1.RegisterHandlers(v1, h.ctl, mw)
}

func NewApiRouter(ctl *controllers.Controller, cfg ApiConfig) *ApiRouter {
	return &ApiRouter{ctl: ctl, cfg: cfg}
}
