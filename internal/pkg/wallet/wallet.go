// Package wallet maintains per-user multimodal credit balances. The
// provisioner is called from the payment reconciliation as a best-effort
// side channel; callers treat failures as non-fatal.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

type Provisioner struct {
	repo paystore.Repository
}

func NewProvisioner(repo paystore.Repository) *Provisioner {
	return &Provisioner{repo: repo}
}

// SeedWalletForPlan resets the monthly balances to the plan's defaults.
// Addon balances are untouched: purchased credits survive plan reseeds.
// With forceReset false an existing wallet on the same plan keeps its
// current month's spend instead of being refilled mid-cycle.
func (p *Provisioner) SeedWalletForPlan(ctx context.Context, userID, planID string, forceReset bool) error {
	if userID == "" {
		return errors.New("wallet: user id is required")
	}
	plan := models.GetPlanByID(planID)

	w, err := p.repo.GetWalletByUser(ctx, userID)
	if errors.Is(err, paystore.ErrNotFound) {
		w = &models.Wallet{UserID: userID}
	} else if err != nil {
		return fmt.Errorf("wallet: load wallet for user %s: %w", userID, err)
	}

	if !forceReset && w.PlanID == plan.ID && !w.PeriodAnchor.IsZero() {
		log.Infof("[Wallet] User %s already seeded for plan %s, skipping", userID, plan.ID)
		return nil
	}

	w.PlanID = plan.ID
	w.MonthlyImageBalance = plan.MonthlyImageLimit
	w.MonthlyVideoBalance = plan.MonthlyVideoAudioLimit
	w.PeriodAnchor = time.Now()

	if err := p.repo.SaveWallet(ctx, w); err != nil {
		return fmt.Errorf("wallet: seed wallet for user %s: %w", userID, err)
	}
	log.Infof("[Wallet] Seeded user %s for plan %s (images=%d video=%d)",
		userID, plan.ID, w.MonthlyImageBalance, w.MonthlyVideoBalance)
	return nil
}

// AddAddonCredits adds purchased one-time credits on top of the existing
// balances. Addon credits accumulate and are never reset by a plan reseed.
func (p *Provisioner) AddAddonCredits(ctx context.Context, userID string, imageCredits, videoAudioCredits int) error {
	if userID == "" {
		return errors.New("wallet: user id is required")
	}
	if imageCredits < 0 || videoAudioCredits < 0 {
		return fmt.Errorf("wallet: negative addon credits (%d/%d)", imageCredits, videoAudioCredits)
	}

	w, err := p.repo.GetWalletByUser(ctx, userID)
	if errors.Is(err, paystore.ErrNotFound) {
		// Addon bought without an active subscription: start from the free
		// tier so the monthly balances are not left at zero.
		w = &models.Wallet{
			UserID:              userID,
			PlanID:              models.FreePlan.ID,
			MonthlyImageBalance: models.FreePlan.MonthlyImageLimit,
			MonthlyVideoBalance: models.FreePlan.MonthlyVideoAudioLimit,
			PeriodAnchor:        time.Now(),
		}
	} else if err != nil {
		return fmt.Errorf("wallet: load wallet for user %s: %w", userID, err)
	}

	w.AddonImageBalance += imageCredits
	w.AddonVideoBalance += videoAudioCredits

	if err := p.repo.SaveWallet(ctx, w); err != nil {
		return fmt.Errorf("wallet: add addon credits for user %s: %w", userID, err)
	}
	log.Infof("[Wallet] Added addon credits for user %s (+%d images, +%d video)", userID, imageCredits, videoAudioCredits)
	return nil
}
