package payment

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/multigpt/paycore/app/models"
)

// provisionWallet dispatches the credit side effect of a successful payment.
// An ADDON payment adds the package's fixed credits on top of the existing
// balances; a subscription payment (explicit productType, or a legacy row
// that only carries planType) reseeds the monthly balances. Failures are
// logged and swallowed: the payment and the subscription extension are
// already durable, and rolling them back over a credit hiccup would be worse
// than a delayed top-up.
func (h *Handler) provisionWallet(ctx context.Context, userID string, pending *models.Payment, provider string) {
	productType := pending.Metadata.ProductType
	productID := pending.Metadata.ProductID
	planType := pending.Metadata.PlanType

	switch {
	case productType == models.ProductTypeAddon && productID != "":
		pkg, ok := models.GetAddonPackageByID(productID)
		if !ok {
			log.Errorf("[Wallet] Unknown addon package %q for user %s", productID, userID)
			return
		}
		if err := h.wallet.AddAddonCredits(ctx, userID, pkg.ImageCredits, pkg.VideoAudioCredits); err != nil {
			log.Errorf("[Wallet] Failed to add addon credits for user %s (package %s): %v", userID, productID, err)
			return
		}
		log.Infof("[Wallet] Addon credits added for user %s: package=%s images=%d video=%d provider=%s",
			userID, productID, pkg.ImageCredits, pkg.VideoAudioCredits, provider)

	case productType == models.ProductTypeSubscription || planType != "":
		plan := planType
		if plan == "" {
			plan = productID
		}
		if plan == "" {
			plan = "pro"
		}
		plan = strings.ToLower(plan)
		if err := h.wallet.SeedWalletForPlan(ctx, userID, plan, true); err != nil {
			log.Errorf("[Wallet] Failed to seed wallet for user %s (plan %s): %v", userID, plan, err)
			return
		}
		log.Infof("[Wallet] Wallet seeded for user %s: plan=%s provider=%s", userID, plan, provider)
	}
}
