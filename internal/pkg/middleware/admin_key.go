package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/usercontext"
)

const (
	HeaderAdminKey   = "X-Admin-Key"
	HeaderAdminActor = "X-Admin-Actor"
)

// AdminKeyMiddleware authenticates admin requests against a bcrypt hash of the
// shared admin key. An empty hash disables the admin API entirely.
func AdminKeyMiddleware(keyHash string) fiber.Handler {
	hash := []byte(strings.TrimSpace(keyHash))
	return func(c *fiber.Ctx) error {
		if len(hash) == 0 {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "admin_disabled", "message": "Admin API is not configured"})
		}

		key := extractAdminKey(c)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing admin key"})
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(key)); err != nil {
			log.Warnf("[Admin] Rejected admin key from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid admin key"})
		}

		actor := strings.TrimSpace(c.Get(HeaderAdminActor))
		c.Locals(usercontext.KeyAdminContext, usercontext.AdminContext{
			ActorID:       actor,
			Authenticated: true,
		})
		c.Locals(usercontext.KeyActorID, actor)

		return c.Next()
	}
}

func extractAdminKey(c *fiber.Ctx) string {
	key := strings.TrimSpace(c.Get(HeaderAdminKey))
	if key != "" {
		return key
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
