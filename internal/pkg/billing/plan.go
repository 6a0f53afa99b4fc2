package billing

import (
	"strings"
	"time"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanBasic      Plan = "basic"
	PlanPremium    Plan = "premium"
	PlanEnterprise Plan = "enterprise"
)

// DefaultCycle is the validity window granted per successful billing cycle.
const DefaultCycle = 30 * 24 * time.Hour

// planPricesMinor maps paid plans to their price in minor currency units (kobo).
var planPricesMinor = map[Plan]int64{
	PlanBasic:      5000,
	PlanPremium:    15000,
	PlanEnterprise: 50000,
}

func normalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanBasic):
		return PlanBasic
	case string(PlanPremium):
		return PlanPremium
	case string(PlanEnterprise):
		return PlanEnterprise
	default:
		return PlanFree
	}
}

func planRank(plan Plan) int {
	switch plan {
	case PlanEnterprise:
		return 3
	case PlanPremium:
		return 2
	case PlanBasic:
		return 1
	default:
		return 0
	}
}

// PlanPriceMinor returns the price of a paid plan in minor units.
func PlanPriceMinor(plan string) (int64, bool) {
	price, ok := planPricesMinor[normalizePlan(plan)]
	return price, ok
}

// IsPaidPlan reports whether the plan requires payment.
func IsPaidPlan(plan string) bool {
	_, ok := planPricesMinor[normalizePlan(plan)]
	return ok
}
