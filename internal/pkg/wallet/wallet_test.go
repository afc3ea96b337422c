package wallet

import (
	"context"
	"testing"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

func TestSeedWalletForPlanCreatesWallet(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	p := NewProvisioner(repo)
	ctx := context.Background()

	if err := p.SeedWalletForPlan(ctx, "user-1", "pro", false); err != nil {
		t.Fatal(err)
	}

	w, err := repo.GetWalletByUser(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if w.PlanID != "pro" {
		t.Errorf("plan = %q, want pro", w.PlanID)
	}
	if w.MonthlyImageBalance != 500 || w.MonthlyVideoBalance != 100 {
		t.Errorf("monthly balances = %d/%d, want 500/100", w.MonthlyImageBalance, w.MonthlyVideoBalance)
	}
	if w.PeriodAnchor.IsZero() {
		t.Error("period anchor not set")
	}
}

func TestSeedWalletForPlanSamePlanSkipsWithoutForce(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	p := NewProvisioner(repo)
	ctx := context.Background()

	if err := p.SeedWalletForPlan(ctx, "user-1", "basic", true); err != nil {
		t.Fatal(err)
	}

	// Burn some of the month's credits.
	w, _ := repo.GetWalletByUser(ctx, "user-1")
	w.MonthlyImageBalance = 3
	if err := repo.SaveWallet(ctx, w); err != nil {
		t.Fatal(err)
	}

	if err := p.SeedWalletForPlan(ctx, "user-1", "basic", false); err != nil {
		t.Fatal(err)
	}
	w, _ = repo.GetWalletByUser(ctx, "user-1")
	if w.MonthlyImageBalance != 3 {
		t.Errorf("mid-cycle reseed refilled the balance: %d", w.MonthlyImageBalance)
	}
}

func TestSeedWalletForPlanForceResetPreservesAddons(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	p := NewProvisioner(repo)
	ctx := context.Background()

	if err := p.AddAddonCredits(ctx, "user-1", 150, 30); err != nil {
		t.Fatal(err)
	}
	if err := p.SeedWalletForPlan(ctx, "user-1", "enterprise", true); err != nil {
		t.Fatal(err)
	}

	w, err := repo.GetWalletByUser(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if w.MonthlyImageBalance != 1500 || w.MonthlyVideoBalance != 200 {
		t.Errorf("monthly balances = %d/%d, want 1500/200", w.MonthlyImageBalance, w.MonthlyVideoBalance)
	}
	if w.AddonImageBalance != 150 || w.AddonVideoBalance != 30 {
		t.Errorf("reseed touched addon balances: %d/%d", w.AddonImageBalance, w.AddonVideoBalance)
	}
}

func TestSeedWalletForPlanUnknownPlanFallsBackToFree(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	p := NewProvisioner(repo)
	ctx := context.Background()

	if err := p.SeedWalletForPlan(ctx, "user-1", "platinum", true); err != nil {
		t.Fatal(err)
	}
	w, _ := repo.GetWalletByUser(ctx, "user-1")
	if w.PlanID != models.FreePlan.ID {
		t.Errorf("plan = %q, want %q", w.PlanID, models.FreePlan.ID)
	}
	if w.MonthlyImageBalance != models.FreePlan.MonthlyImageLimit {
		t.Errorf("image balance = %d, want %d", w.MonthlyImageBalance, models.FreePlan.MonthlyImageLimit)
	}
}

func TestAddAddonCreditsBootstrapsFromFreeTier(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	p := NewProvisioner(repo)
	ctx := context.Background()

	if err := p.AddAddonCredits(ctx, "user-1", 50, 10); err != nil {
		t.Fatal(err)
	}

	w, err := repo.GetWalletByUser(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if w.PlanID != models.FreePlan.ID {
		t.Errorf("plan = %q, want free tier", w.PlanID)
	}
	if w.AddonImageBalance != 50 || w.AddonVideoBalance != 10 {
		t.Errorf("addon balances = %d/%d, want 50/10", w.AddonImageBalance, w.AddonVideoBalance)
	}
	if w.MonthlyImageBalance != models.FreePlan.MonthlyImageLimit {
		t.Errorf("monthly image balance = %d, want free-tier default", w.MonthlyImageBalance)
	}
}

func TestAddAddonCreditsAccumulate(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	p := NewProvisioner(repo)
	ctx := context.Background()

	if err := p.AddAddonCredits(ctx, "user-1", 50, 10); err != nil {
		t.Fatal(err)
	}
	if err := p.AddAddonCredits(ctx, "user-1", 400, 80); err != nil {
		t.Fatal(err)
	}

	w, _ := repo.GetWalletByUser(ctx, "user-1")
	if w.AddonImageBalance != 450 || w.AddonVideoBalance != 90 {
		t.Errorf("addon balances = %d/%d, want 450/90", w.AddonImageBalance, w.AddonVideoBalance)
	}
}

func TestAddAddonCreditsRejectsNegative(t *testing.T) {
	p := NewProvisioner(paystore.NewMemoryRepository())

	if err := p.AddAddonCredits(context.Background(), "user-1", -1, 0); err == nil {
		t.Error("negative credits accepted")
	}
}

func TestProvisionerRequiresUserID(t *testing.T) {
	p := NewProvisioner(paystore.NewMemoryRepository())

	if err := p.SeedWalletForPlan(context.Background(), "", "pro", true); err == nil {
		t.Error("empty user id accepted by SeedWalletForPlan")
	}
	if err := p.AddAddonCredits(context.Background(), "", 1, 1); err == nil {
		t.Error("empty user id accepted by AddAddonCredits")
	}
}
