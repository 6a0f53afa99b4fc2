package billing

import "testing"

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{in: "free", want: PlanFree},
		{in: "basic", want: PlanBasic},
		{in: "premium", want: PlanPremium},
		{in: "ENTERPRISE", want: PlanEnterprise},
		{in: " premium ", want: PlanPremium},
		{in: "invalid", want: PlanFree},
	}

	for _, tt := range tests {
		if got := normalizePlan(tt.in); got != tt.want {
			t.Fatalf("normalizePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanRank(t *testing.T) {
	if planRank(PlanFree) >= planRank(PlanBasic) {
		t.Fatalf("expected basic to outrank free")
	}
	if planRank(PlanBasic) >= planRank(PlanPremium) {
		t.Fatalf("expected premium to outrank basic")
	}
	if planRank(PlanPremium) >= planRank(PlanEnterprise) {
		t.Fatalf("expected enterprise to outrank premium")
	}
}

func TestPlanPriceMinor(t *testing.T) {
	tests := []struct {
		plan  string
		price int64
		ok    bool
	}{
		{plan: "basic", price: 5000, ok: true},
		{plan: "premium", price: 15000, ok: true},
		{plan: "enterprise", price: 50000, ok: true},
		{plan: "free", ok: false},
		{plan: "nonsense", ok: false},
	}

	for _, tt := range tests {
		price, ok := PlanPriceMinor(tt.plan)
		if ok != tt.ok || price != tt.price {
			t.Fatalf("PlanPriceMinor(%q) = (%d, %v), want (%d, %v)", tt.plan, price, ok, tt.price, tt.ok)
		}
	}
}

func TestIsPaidPlan(t *testing.T) {
	for _, plan := range []string{"basic", "premium", "enterprise"} {
		if !IsPaidPlan(plan) {
			t.Fatalf("expected plan %q to be paid", plan)
		}
	}
	if IsPaidPlan("free") {
		t.Fatalf("expected free plan to be unpaid")
	}
}
