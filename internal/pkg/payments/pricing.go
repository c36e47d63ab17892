package payments

import (
	"math"

	"github.com/nkoenig/assetvault/app/models"
)

// CyclePrice computes the charge for one billing period from the plan's
// monthly base price: a quarter of it per week, the base price per month,
// and twelve months less the yearly discount per year. The result is
// unrounded; rounding happens once, in PriceCents.
func CyclePrice(basePrice float64, billingCycle string, yearlyDiscount float64) float64 {
	switch billingCycle {
	case models.BillingCycleWeekly:
		return basePrice / 4
	case models.BillingCycleYearly:
		return basePrice * 12 * (1 - yearlyDiscount/100)
	default:
		return basePrice
	}
}

// PriceCents converts the cycle price to minor currency units, rounding
// half-up at this final step only.
func PriceCents(basePrice float64, billingCycle string, yearlyDiscount float64) int64 {
	return int64(math.Round(CyclePrice(basePrice, billingCycle, yearlyDiscount) * 100))
}

// ProviderInterval maps a billing cycle to the provider's recurring
// interval name.
func ProviderInterval(billingCycle string) string {
	switch billingCycle {
	case models.BillingCycleWeekly:
		return "week"
	case models.BillingCycleYearly:
		return "year"
	default:
		return "month"
	}
}
