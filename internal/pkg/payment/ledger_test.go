package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/app/models"
)

func TestUpdateSubscriptionStatusExtendsActivePeriod(t *testing.T) {
	h, repo, _ := newTestHandler()
	ctx := context.Background()

	end := time.Now().AddDate(0, 0, 10)
	repo.InsertSubscription(ctx, &models.Subscription{
		UserID:             "user-1",
		PlanID:             "pro",
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: time.Now().AddDate(0, 0, -20),
		CurrentPeriodEnd:   end,
	})

	ok := h.UpdateSubscriptionStatus(ctx, LedgerUpdate{
		UserID:         "user-1",
		SubscriptionID: "sub_new",
		Status:         models.SubscriptionStatusActive,
		Provider:       models.ProviderStripe,
		Days:           30,
	})
	if !ok {
		t.Fatal("UpdateSubscriptionStatus failed")
	}

	subs := repo.Subscriptions()
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}
	want := end.AddDate(0, 0, 30)
	if !subs[0].CurrentPeriodEnd.Equal(want) {
		t.Errorf("period end = %s, want %s", subs[0].CurrentPeriodEnd, want)
	}
	if subs[0].TransactionID != "sub_new" {
		t.Errorf("transaction id = %q, want sub_new", subs[0].TransactionID)
	}
	if subs[0].ProviderSubscriptionID != "sub_new" {
		t.Errorf("provider subscription id = %q, want sub_new", subs[0].ProviderSubscriptionID)
	}
}

func TestUpdateSubscriptionStatusRestartsExpiredPeriod(t *testing.T) {
	h, repo, _ := newTestHandler()
	ctx := context.Background()

	repo.InsertSubscription(ctx, &models.Subscription{
		UserID:             "user-1",
		PlanID:             "pro",
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: time.Now().AddDate(0, 0, -60),
		CurrentPeriodEnd:   time.Now().AddDate(0, 0, -30),
	})

	before := time.Now()
	if !h.UpdateSubscriptionStatus(ctx, LedgerUpdate{
		UserID:         "user-1",
		SubscriptionID: "sub_new",
		Status:         models.SubscriptionStatusActive,
		Provider:       models.ProviderStripe,
		Days:           30,
	}) {
		t.Fatal("UpdateSubscriptionStatus failed")
	}

	sub := repo.Subscriptions()[0]
	min := before.AddDate(0, 0, 30)
	max := time.Now().AddDate(0, 0, 30)
	if sub.CurrentPeriodEnd.Before(min) || sub.CurrentPeriodEnd.After(max) {
		t.Errorf("period end = %s, want ~now+30d", sub.CurrentPeriodEnd)
	}
}

func TestUpdateSubscriptionStatusNeverShrinksPeriod(t *testing.T) {
	h, repo, _ := newTestHandler()
	ctx := context.Background()

	end := time.Now().AddDate(0, 0, 5)
	repo.InsertSubscription(ctx, &models.Subscription{
		UserID:             "user-1",
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodEnd:   end,
		CurrentPeriodStart: time.Now(),
	})

	for i := 0; i < 3; i++ {
		if !h.UpdateSubscriptionStatus(ctx, LedgerUpdate{
			UserID:         "user-1",
			SubscriptionID: "sub_x",
			Status:         models.SubscriptionStatusActive,
			Provider:       models.ProviderStripe,
			Days:           30,
		}) {
			t.Fatal("UpdateSubscriptionStatus failed")
		}
		got := repo.Subscriptions()[0].CurrentPeriodEnd
		if got.Before(end) {
			t.Fatalf("period end moved backwards: %s < %s", got, end)
		}
		end = got
	}
}

func TestUpdateSubscriptionStatusDefaultsDays(t *testing.T) {
	h, repo, _ := newTestHandler()
	ctx := context.Background()

	if !h.UpdateSubscriptionStatus(ctx, LedgerUpdate{
		UserID:         "user-1",
		SubscriptionID: "sub_1",
		Status:         models.SubscriptionStatusActive,
		Provider:       models.ProviderStripe,
	}) {
		t.Fatal("UpdateSubscriptionStatus failed")
	}

	sub := repo.Subscriptions()[0]
	want := time.Now().AddDate(0, 0, 30)
	if sub.CurrentPeriodEnd.Before(want.Add(-time.Minute)) || sub.CurrentPeriodEnd.After(want.Add(time.Minute)) {
		t.Errorf("period end = %s, want ~now+30d", sub.CurrentPeriodEnd)
	}
	if sub.PlanID != "pro" {
		t.Errorf("plan id = %q, want pro", sub.PlanID)
	}
}

func TestCancelKeepsPeriodEnd(t *testing.T) {
	h, repo, _ := newTestHandler()
	ctx := context.Background()

	end := time.Now().AddDate(0, 0, 15)
	repo.InsertSubscription(ctx, &models.Subscription{
		UserID:             "user-1",
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodEnd:   end,
		CurrentPeriodStart: time.Now(),
	})

	if !h.UpdateSubscriptionStatus(ctx, LedgerUpdate{
		UserID:         "user-1",
		SubscriptionID: "sub_1",
		Status:         models.SubscriptionStatusCancelled,
		Provider:       models.ProviderPayPal,
		Days:           30,
	}) {
		t.Fatal("UpdateSubscriptionStatus failed")
	}

	sub := repo.Subscriptions()[0]
	if sub.Status != models.SubscriptionStatusCancelled {
		t.Errorf("status = %q, want cancelled", sub.Status)
	}
	// Cancellation never touches the paid-for window.
	if !sub.CurrentPeriodEnd.Equal(end) {
		t.Errorf("period end changed on cancel: %s, want %s", sub.CurrentPeriodEnd, end)
	}
}

func TestCancelWithoutActiveSubscriptionIsNoop(t *testing.T) {
	h, repo, _ := newTestHandler()

	if !h.UpdateSubscriptionStatus(context.Background(), LedgerUpdate{
		UserID:         "user-1",
		SubscriptionID: "sub_1",
		Status:         models.SubscriptionStatusCancelled,
		Provider:       models.ProviderPayPal,
	}) {
		t.Fatal("cancel without subscription should succeed as a no-op")
	}
	if len(repo.Subscriptions()) != 0 {
		t.Error("cancel created a subscription row")
	}
}

func TestProcessWebhookIdempotent(t *testing.T) {
	h, repo, _ := newTestHandler()
	ctx := context.Background()

	payload := Payload{
		"out_trade_no":    "ALI100",
		"trade_status":    "TRADE_SUCCESS",
		"passback_params": "user-1",
		"total_amount":    "68.00",
	}

	if !h.ProcessWebhook(ctx, models.ProviderAlipay, "TRADE_SUCCESS", payload) {
		t.Fatal("first delivery failed")
	}
	if !h.ProcessWebhook(ctx, models.ProviderAlipay, "TRADE_SUCCESS", payload) {
		t.Fatal("redelivery should be acknowledged")
	}

	completed := 0
	for _, p := range repo.Payments() {
		if p.Status == models.PaymentStatusCompleted && p.TransactionID == "ALI100" {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("completed payments = %d, want 1", completed)
	}
	if n := len(repo.Subscriptions()); n != 1 {
		t.Errorf("subscriptions = %d, want 1", n)
	}
}

func TestDuplicateAlipayWebhookExtendsOnce(t *testing.T) {
	// Same transaction delivered twice with different payload ordering (so a
	// naive body hash would treat them as distinct events). One extension, one
	// completed payment.
	h, repo, _ := newTestHandler()
	ctx := context.Background()

	repo.InsertPayment(ctx, &models.Payment{
		UserID:        "user-1",
		Amount:        decimal.NewFromFloat(9.00),
		Currency:      "CNY",
		Status:        models.PaymentStatusPending,
		PaymentMethod: models.ProviderAlipay,
		TransactionID: "T1",
		OutTradeNo:    "T1",
	})

	first := Payload{
		"out_trade_no":    "T1",
		"trade_no":        "A1",
		"passback_params": "user-1",
		"total_amount":    "9.00",
	}
	second := Payload{
		"total_amount":    "9.00",
		"passback_params": "user-1",
		"trade_no":        "A1",
		"out_trade_no":    "T1",
		"notify_id":       "n-2",
	}

	if !h.ProcessWebhook(ctx, models.ProviderAlipay, "TRADE_SUCCESS", first) {
		t.Fatal("first delivery failed")
	}
	endAfterFirst := repo.Subscriptions()[0].CurrentPeriodEnd

	if !h.ProcessWebhook(ctx, models.ProviderAlipay, "TRADE_SUCCESS", second) {
		t.Fatal("second delivery should be acknowledged")
	}

	subs := repo.Subscriptions()
	if len(subs) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(subs))
	}
	if !subs[0].CurrentPeriodEnd.Equal(endAfterFirst) {
		t.Errorf("duplicate delivery extended again: %s vs %s", subs[0].CurrentPeriodEnd, endAfterFirst)
	}

	completed := 0
	for _, p := range repo.Payments() {
		if p.TransactionID == "T1" && p.Status == models.PaymentStatusCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("completed payments = %d, want 1", completed)
	}

	// No metadata days on the pending row: the alipay default applies.
	want := time.Now().AddDate(0, 0, 30)
	if endAfterFirst.Before(want.Add(-time.Minute)) || endAfterFirst.After(want.Add(time.Minute)) {
		t.Errorf("period end = %s, want ~now+30d", endAfterFirst)
	}
}

func TestUnknownProviderAcknowledged(t *testing.T) {
	h, _, _ := newTestHandler()

	if !h.ProcessWebhook(context.Background(), "braintree", "something", Payload{"id": "x"}) {
		t.Error("unknown provider should be acknowledged, not retried")
	}
}

func TestSubscriptionCancelledResolvesUserFromLedger(t *testing.T) {
	h, repo, _ := newTestHandler()
	ctx := context.Background()

	repo.InsertSubscription(ctx, &models.Subscription{
		UserID:                 "user-4",
		Status:                 models.SubscriptionStatusActive,
		Provider:               models.ProviderPayPal,
		ProviderSubscriptionID: "I-XYZ",
		CurrentPeriodStart:     time.Now(),
		CurrentPeriodEnd:       time.Now().AddDate(0, 0, 20),
	})

	ok := h.ProcessWebhook(ctx, models.ProviderPayPal, "BILLING.SUBSCRIPTION.CANCELLED", Payload{
		"id":       "WH-9",
		"resource": map[string]interface{}{"id": "I-XYZ"},
	})
	if !ok {
		t.Fatal("cancel event failed")
	}
	if got := repo.Subscriptions()[0].Status; got != models.SubscriptionStatusCancelled {
		t.Errorf("status = %q, want cancelled", got)
	}
}
