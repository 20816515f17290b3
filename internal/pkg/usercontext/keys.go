package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyAdminContext = "ADMIN_CONTEXT"
	KeyActorID      = "actor_id"
)
