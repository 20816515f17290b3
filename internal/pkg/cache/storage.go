package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/env"
)

// NewFiberStorage returns a fiber.Storage on the configured Redis server,
// using a separate database so middleware keys never mix with cache keys.
func NewFiberStorage(database int) fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if h, p, err := net.SplitHostPort(Addr()); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: database,
		Reset:    false,
	})
}
