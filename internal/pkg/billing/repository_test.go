package billing

import (
	"testing"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
)

func TestNextValidityEnd_FreshActivation(t *testing.T) {
	now := time.Now()
	sub := &models.Subscription{Plan: "free", Status: models.SubscriptionStatusActive}

	end := nextValidityEnd(sub, now, 30*24*time.Hour)
	if want := now.Add(30 * 24 * time.Hour); !end.Equal(want) {
		t.Fatalf("fresh activation end = %v, want %v", end, want)
	}
}

func TestNextValidityEnd_RenewalExtends(t *testing.T) {
	now := time.Now()
	remaining := now.Add(10 * 24 * time.Hour)
	sub := &models.Subscription{
		Plan:    "premium",
		Status:  models.SubscriptionStatusActive,
		EndDate: &remaining,
	}

	// 10 days left + a 30-day cycle stacks to 40 days, not 30.
	end := nextValidityEnd(sub, now, 30*24*time.Hour)
	if want := remaining.Add(30 * 24 * time.Hour); !end.Equal(want) {
		t.Fatalf("renewal end = %v, want %v", end, want)
	}
}

func TestNextValidityEnd_LapsedPlanResets(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	sub := &models.Subscription{
		Plan:    "premium",
		Status:  models.SubscriptionStatusActive,
		EndDate: &past,
	}

	end := nextValidityEnd(sub, now, 30*24*time.Hour)
	if want := now.Add(30 * 24 * time.Hour); !end.Equal(want) {
		t.Fatalf("lapsed-plan end = %v, want %v", end, want)
	}
}

func TestNextValidityEnd_ExpiredStatusResets(t *testing.T) {
	now := time.Now()
	future := now.Add(5 * 24 * time.Hour)
	sub := &models.Subscription{
		Plan:    "premium",
		Status:  models.SubscriptionStatusExpired,
		EndDate: &future,
	}

	end := nextValidityEnd(sub, now, 30*24*time.Hour)
	if want := now.Add(30 * 24 * time.Hour); !end.Equal(want) {
		t.Fatalf("expired-status end = %v, want %v", end, want)
	}
}
