package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

type fakeConfirmer struct {
	conf Confirmation
	err  error
}

func (f *fakeConfirmer) ConfirmPayment(context.Context, ConfirmRequest, string) (Confirmation, error) {
	return f.conf, f.err
}

func stripeCheckoutPayload(sessionID, subscriptionID, userID string, amountCents float64, days string) Payload {
	return Payload{
		"id":   "evt_" + sessionID,
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":           sessionID,
				"subscription": subscriptionID,
				"amount_total": amountCents,
				"currency":     "usd",
				"metadata": map[string]interface{}{
					"userId": userID,
					"days":   days,
				},
			},
		},
	}
}

func insertPendingStripePayment(t *testing.T, repo *paystore.MemoryRepository, userID, sessionID string, days int) {
	t.Helper()
	err := repo.InsertPayment(context.Background(), &models.Payment{
		UserID:        userID,
		Amount:        decimal.NewFromFloat(9.99),
		Currency:      "USD",
		Status:        models.PaymentStatusPending,
		PaymentMethod: models.ProviderStripe,
		TransactionID: sessionID,
		Metadata:      models.PaymentMetadata{Days: days, PaymentType: "onetime", BillingCycle: "monthly"},
	})
	if err != nil {
		t.Fatal(err)
	}
}

// assertSingleExtension verifies exactly one 30-day window exists regardless
// of which path (webhook or confirm) won the race.
func assertSingleExtension(t *testing.T, repo *paystore.MemoryRepository, days int) {
	t.Helper()
	subs := repo.Subscriptions()
	if len(subs) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(subs))
	}
	want := time.Now().AddDate(0, 0, days)
	got := subs[0].CurrentPeriodEnd
	if got.Before(want.Add(-time.Minute)) || got.After(want.Add(time.Minute)) {
		t.Errorf("period end = %s, want ~now+%dd (double extension?)", got, days)
	}
}

func TestStripeConfirmThenWebhookExtendsOnce(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	handler := NewHandler(repo, &walletRecorder{})
	reconciler := NewReconciler(repo, &fakeConfirmer{conf: Confirmation{
		TransactionID: "sub_1",
		Amount:        decimal.NewFromFloat(9.99),
		Currency:      "USD",
		Days:          30,
	}})
	ctx := context.Background()

	insertPendingStripePayment(t, repo, "user-1", "cs_1", 30)

	result, err := reconciler.Confirm(ctx, "user-1", ConfirmRequest{Kind: models.ProviderStripe, SessionID: "cs_1"})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if !result.Success {
		t.Fatal("confirm not successful")
	}
	// Stripe extension rides on the webhook; confirm must not create a window.
	if n := len(repo.Subscriptions()); n != 0 {
		t.Fatalf("confirm extended the subscription itself (%d rows)", n)
	}

	if !handler.ProcessWebhook(ctx, models.ProviderStripe, "checkout.session.completed",
		stripeCheckoutPayload("cs_1", "sub_1", "user-1", 999, "30")) {
		t.Fatal("webhook processing failed")
	}

	assertSingleExtension(t, repo, 30)

	completed := 0
	for _, p := range repo.Payments() {
		if p.Status == models.PaymentStatusCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("completed payments = %d, want 1", completed)
	}
}

func TestStripeWebhookThenConfirmExtendsOnce(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	handler := NewHandler(repo, &walletRecorder{})
	reconciler := NewReconciler(repo, &fakeConfirmer{conf: Confirmation{
		TransactionID: "sub_1",
		Amount:        decimal.NewFromFloat(9.99),
		Currency:      "USD",
		Days:          30,
	}})
	ctx := context.Background()

	insertPendingStripePayment(t, repo, "user-1", "cs_1", 30)

	if !handler.ProcessWebhook(ctx, models.ProviderStripe, "checkout.session.completed",
		stripeCheckoutPayload("cs_1", "sub_1", "user-1", 999, "30")) {
		t.Fatal("webhook processing failed")
	}
	endAfterWebhook := repo.Subscriptions()[0].CurrentPeriodEnd

	result, err := reconciler.Confirm(ctx, "user-1", ConfirmRequest{Kind: models.ProviderStripe, SessionID: "cs_1"})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if !result.Success {
		t.Fatal("confirm not successful")
	}

	subs := repo.Subscriptions()
	if len(subs) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(subs))
	}
	if !subs[0].CurrentPeriodEnd.Equal(endAfterWebhook) {
		t.Errorf("confirm moved the period end: %s vs %s", subs[0].CurrentPeriodEnd, endAfterWebhook)
	}
}

func TestAlipayConfirmThenWebhookExtendsOnce(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	handler := NewHandler(repo, &walletRecorder{})
	reconciler := NewReconciler(repo, &fakeConfirmer{conf: Confirmation{
		TransactionID: "ALI42",
		Amount:        decimal.NewFromInt(68),
		Currency:      "CNY",
		Days:          30,
	}})
	ctx := context.Background()

	if err := repo.InsertPayment(ctx, &models.Payment{
		UserID:        "user-1",
		Amount:        decimal.NewFromInt(68),
		Currency:      "CNY",
		Status:        models.PaymentStatusPending,
		PaymentMethod: models.ProviderAlipay,
		TransactionID: "ALI42",
		OutTradeNo:    "ALI42",
		Metadata:      models.PaymentMetadata{Days: 30},
	}); err != nil {
		t.Fatal(err)
	}

	// Alipay confirm is the primary extension path.
	result, err := reconciler.Confirm(ctx, "user-1", ConfirmRequest{Kind: models.ProviderAlipay, OutTradeNo: "ALI42"})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if !result.Success {
		t.Fatal("confirm not successful")
	}
	assertSingleExtension(t, repo, 30)

	if !handler.ProcessWebhook(ctx, models.ProviderAlipay, "TRADE_SUCCESS", Payload{
		"out_trade_no":    "ALI42",
		"passback_params": "user-1",
		"total_amount":    "68.00",
	}) {
		t.Fatal("webhook processing failed")
	}

	// The webhook sees the confirm's correlation stamp and skips the period
	// change.
	assertSingleExtension(t, repo, 30)
}

func TestConfirmIdempotentPerTransaction(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	reconciler := NewReconciler(repo, &fakeConfirmer{conf: Confirmation{
		TransactionID: "ALI9",
		Amount:        decimal.NewFromInt(68),
		Currency:      "CNY",
		Days:          30,
	}})
	ctx := context.Background()

	req := ConfirmRequest{Kind: models.ProviderAlipay, OutTradeNo: "ALI9"}
	for i := 0; i < 3; i++ {
		result, err := reconciler.Confirm(ctx, "user-1", req)
		if err != nil {
			t.Fatalf("confirm %d failed: %v", i, err)
		}
		if !result.Success {
			t.Fatalf("confirm %d not successful", i)
		}
	}

	assertSingleExtension(t, repo, 30)

	completed := 0
	for _, p := range repo.Payments() {
		if p.Status == models.PaymentStatusCompleted && p.TransactionID == "ALI9" {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("completed payments = %d, want 1", completed)
	}
}

func TestConfirmRejectsForeignPendingPayment(t *testing.T) {
	repo := paystore.NewMemoryRepository()
	reconciler := NewReconciler(repo, &fakeConfirmer{conf: Confirmation{
		TransactionID: "ALI7",
		Amount:        decimal.NewFromInt(68),
		Currency:      "CNY",
		Days:          30,
	}})
	ctx := context.Background()

	if err := repo.InsertPayment(ctx, &models.Payment{
		UserID:        "someone-else",
		Amount:        decimal.NewFromInt(68),
		Currency:      "CNY",
		Status:        models.PaymentStatusPending,
		PaymentMethod: models.ProviderAlipay,
		TransactionID: "ALI7",
		OutTradeNo:    "ALI7",
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := reconciler.Confirm(ctx, "user-1", ConfirmRequest{Kind: models.ProviderAlipay, OutTradeNo: "ALI7"}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	// The foreign pending row stays untouched; a fresh completed row is
	// created for the confirming user.
	for _, p := range repo.Payments() {
		if p.UserID == "someone-else" && p.Status != models.PaymentStatusPending {
			t.Error("foreign pending payment was modified")
		}
	}
}
