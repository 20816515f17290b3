package constants

// Static route constants
const (
	HealthRoute  = "/health"
	MetricsRoute = "/metrics"
	APIRoute     = "/api"
	APIV1Route   = "/v1"
	AdminRoute   = "/admin"
	// OpenAPI document served under DocsBasePath + DocsVersion
	DocsBasePath = "/docs/api/"
	DocsVersion  = "v1"
	OpenAPIFile  = "./public/docs/v1/openapi.yml"
)
