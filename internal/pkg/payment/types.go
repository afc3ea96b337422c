package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Data is the canonical tuple every provider payload is normalized into
// before it touches the subscription ledger.
type Data struct {
	SubscriptionID string
	UserID         string
	Amount         decimal.Decimal
	Currency       string
	Days           int
	PayPalOrderID  string
}

// WalletProvisioner is the credit side channel. Both calls are best-effort;
// the reconciliation never fails because of a wallet error.
type WalletProvisioner interface {
	SeedWalletForPlan(ctx context.Context, userID, planID string, forceReset bool) error
	AddAddonCredits(ctx context.Context, userID string, imageCredits, videoAudioCredits int) error
}
