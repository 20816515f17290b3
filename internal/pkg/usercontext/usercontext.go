package usercontext

import "github.com/gofiber/fiber/v2"

// AdminContext describes the operator behind an admin API request
type AdminContext struct {
	ActorID       string `json:"actor_id"`
	Authenticated bool   `json:"authenticated"`
}

// GetAdminContext retrieves the admin context from fiber context.
// Returns an unauthenticated context if none is set
func GetAdminContext(c *fiber.Ctx) AdminContext {
	if ctx, ok := c.Locals(KeyAdminContext).(AdminContext); ok {
		return ctx
	}
	return AdminContext{}
}

func IsAuthenticated(c *fiber.Ctx) bool {
	return GetAdminContext(c).Authenticated
}

// GetActorID returns the operator identity, or empty string if not authenticated
func GetActorID(c *fiber.Ctx) string {
	return GetAdminContext(c).ActorID
}
