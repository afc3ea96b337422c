package payment

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/app/models"
)

// Pricing is the per-method price card. USD providers and CNY providers quote
// different currencies; the amount-inferred day heuristics in the webhook path
// depend on these price points staying above their thresholds.
type Pricing struct {
	Currency string
	Monthly  decimal.Decimal
	Yearly   decimal.Decimal
}

var methodPricing = map[string]Pricing{
	models.ProviderStripe: {Currency: "USD", Monthly: decimal.NewFromFloat(9.99), Yearly: decimal.NewFromFloat(99.99)},
	models.ProviderPayPal: {Currency: "USD", Monthly: decimal.NewFromFloat(9.99), Yearly: decimal.NewFromFloat(99.99)},
	models.ProviderAlipay: {Currency: "CNY", Monthly: decimal.NewFromInt(68), Yearly: decimal.NewFromInt(648)},
	models.ProviderWechat: {Currency: "CNY", Monthly: decimal.NewFromInt(68), Yearly: decimal.NewFromInt(648)},
}

// PricingByMethod returns the price card for a payment method.
func PricingByMethod(method string) (Pricing, error) {
	p, ok := methodPricing[method]
	if !ok {
		return Pricing{}, fmt.Errorf("unsupported payment method: %s", method)
	}
	return p, nil
}

// AmountForCycle picks the price for a billing cycle.
func (p Pricing) AmountForCycle(billingCycle string) (decimal.Decimal, error) {
	switch billingCycle {
	case "monthly":
		return p.Monthly, nil
	case "yearly":
		return p.Yearly, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("invalid billing cycle: %s", billingCycle)
	}
}

// DaysByBillingCycle maps a billing cycle to the membership days it buys.
func DaysByBillingCycle(billingCycle string) int {
	if billingCycle == "yearly" {
		return 365
	}
	return 30
}
