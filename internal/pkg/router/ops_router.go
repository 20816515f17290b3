package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/constants"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/metrics"
)

// OpsRouter serves liveness and Prometheus scraping.
type OpsRouter struct {
	registry *prometheus.Registry
}

func (o OpsRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if o.registry != nil {
		app.Get(constants.MetricsRoute, metrics.Handler(o.registry))
	}
}

func NewOpsRouter(registry *prometheus.Registry) *OpsRouter {
	return &OpsRouter{registry: registry}
}
