package billing

import (
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/entitlements"
)

// resolvePlan picks the purchased plan from the plan code, falling back to an
// exact price match. A non-empty reason means the event must be rejected.
func resolvePlan(catalog *entitlements.Catalog, planCode string, amountMinor *int64) (entitlements.Plan, string) {
	if planCode != "" {
		def, ok := catalog.ByCode(planCode)
		if !ok || !def.ID.IsPaid() {
			return "", ReasonUnknownPlan
		}
		if amountMinor != nil && *amountMinor > 0 && *amountMinor < def.PriceMinor {
			return def.ID, ReasonUnderpaid
		}
		return def.ID, ""
	}
	if amountMinor != nil {
		if def, ok := catalog.ByPrice(*amountMinor); ok {
			return def.ID, ""
		}
	}
	return "", ReasonUnknownPlan
}
