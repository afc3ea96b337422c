package models

import "strings"

// Plan is one subscription tier. Limits mirror the pricing table shipped to
// the clients; the wallet provisioner seeds monthly balances from them.
type Plan struct {
	ID                     string
	Name                   string
	DailyExternalLimit     int
	MonthlyImageLimit      int
	MonthlyVideoAudioLimit int
	ContextWindow          int
}

// FreePlan is the implicit tier for users without an active subscription.
var FreePlan = Plan{
	ID:                     "free",
	Name:                   "Free",
	DailyExternalLimit:     10,
	MonthlyImageLimit:      30,
	MonthlyVideoAudioLimit: 5,
	ContextWindow:          20,
}

var Plans = []Plan{
	{
		ID:                     "basic",
		Name:                   "Basic",
		DailyExternalLimit:     50,
		MonthlyImageLimit:      100,
		MonthlyVideoAudioLimit: 20,
		ContextWindow:          50,
	},
	{
		ID:                     "pro",
		Name:                   "Pro",
		DailyExternalLimit:     200,
		MonthlyImageLimit:      500,
		MonthlyVideoAudioLimit: 100,
		ContextWindow:          100,
	},
	{
		ID:                     "enterprise",
		Name:                   "Enterprise",
		DailyExternalLimit:     2000,
		MonthlyImageLimit:      1500,
		MonthlyVideoAudioLimit: 200,
		ContextWindow:          300,
	},
}

// GetPlanByID resolves a plan id case-insensitively. Unknown ids fall back to
// the free tier so a bad planType in payment metadata degrades instead of
// failing the reconciliation.
func GetPlanByID(planID string) Plan {
	id := strings.ToLower(strings.TrimSpace(planID))
	for _, p := range Plans {
		if p.ID == id {
			return p
		}
	}
	return FreePlan
}
