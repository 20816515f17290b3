package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/app/controllers"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/billing"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/cache"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/clock"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/constants"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/database"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/entitlements"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/env"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/ledgerexport"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/lifecycle"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/metrics"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/metrics/counter"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/router"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/sweeper"
)

// limiter keys live apart from cache (0) and lock keys
const limiterRedisDB = 2

func main() {
	app, sw := NewApplication()
	if err := sw.Start(); err != nil {
		log.Fatalf("[Sweeper] %v", err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down...")
		sw.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Errorf("Shutdown failed: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *sweeper.Sweeper) {
	env.SetupEnvFile()
	if err := database.SetupDatabase(); err != nil {
		panic(err)
	}
	cache.SetupCache()

	catalog, err := entitlements.LoadCatalogFromEnv()
	if err != nil {
		panic(err)
	}
	periods, err := clock.NewCalculatorFromEnv()
	if err != nil {
		panic(err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	s := store.New(database.GetDB())
	redisClient := cache.GetClient()
	usage := counter.NewRecorder(redisClient)

	engine := entitlements.NewEngine(s, catalog, periods,
		entitlements.WithMetrics(m),
		entitlements.WithUsageRecorder(usage),
		entitlements.WithUsageTimeout(env.GetEnvDuration("ANALYTICS_TIMEOUT", entitlements.DefaultUsageTimeout)),
	)
	lc := lifecycle.NewManager(s, catalog, lifecycle.WithMetrics(m))
	payments := billing.NewService(s, catalog, lc, billing.LoadConfig(), billing.WithMetrics(m))
	sw := sweeper.New(s, lc, sweeper.LoadConfig(),
		sweeper.WithLocker(cache.NewLocker(redisClient)),
		sweeper.WithMetrics(m),
	)

	deps := controllers.Deps{
		Store:     s,
		Engine:    engine,
		Lifecycle: lc,
		Billing:   payments,
		Sweeper:   sw,
		Usage:     usage,
		Exporter:  newLedgerExporter(s),
		Clock:     clock.Real(),
	}

	app := fiber.New(fiber.Config{
		AppName:   "smartx-entitlements",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())
	app.Use(metrics.Middleware(m))

	// SWAGGER / OPENAPI
	if _, err := os.Stat(constants.OpenAPIFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: constants.DocsBasePath,
			FilePath: constants.OpenAPIFile,
			Path:     constants.DocsVersion,
		}))
	}

	// ROUTER
	router.InstallRouter(app,
		router.NewOpsRouter(registry),
		router.NewApiRouter(controllers.NewController(deps), router.ApiConfig{
			AdminKeyHash:     env.GetEnv("ADMIN_API_KEY_HASH", ""),
			WebhookRateLimit: env.GetEnvInt("WEBHOOK_RATE_LIMIT", 120),
			LimiterStorage:   cache.NewFiberStorage(limiterRedisDB),
		}),
	)

	return app, sw
}

func newLedgerExporter(s store.Store) *ledgerexport.Exporter {
	cfg, err := ledgerexport.LoadConfig()
	if err != nil {
		log.Warnf("[LedgerExport] Disabled: %v", err)
		return nil
	}
	if !cfg.IsEnabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	uploader, err := ledgerexport.NewS3Uploader(ctx, cfg)
	if err != nil {
		log.Warnf("[LedgerExport] Disabled: %v", err)
		return nil
	}
	return ledgerexport.NewExporter(s, uploader, cfg)
}
