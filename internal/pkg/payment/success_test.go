package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

type walletRecorder struct {
	seededPlans []string
	forceResets []bool
	addonImage  int
	addonVideo  int
}

func (w *walletRecorder) SeedWalletForPlan(_ context.Context, _ string, planID string, forceReset bool) error {
	w.seededPlans = append(w.seededPlans, planID)
	w.forceResets = append(w.forceResets, forceReset)
	return nil
}

func (w *walletRecorder) AddAddonCredits(_ context.Context, _ string, imageCredits, videoAudioCredits int) error {
	w.addonImage += imageCredits
	w.addonVideo += videoAudioCredits
	return nil
}

func newTestHandler() (*Handler, *paystore.MemoryRepository, *walletRecorder) {
	repo := paystore.NewMemoryRepository()
	wallet := &walletRecorder{}
	return NewHandler(repo, wallet), repo, wallet
}

func TestExtractPayPalPaymentDataBranchOrder(t *testing.T) {
	h, _, _ := newTestHandler()
	ctx := context.Background()

	// purchase_units wins even when captures carry a conflicting custom_id.
	data, ok := h.extractPayPalPaymentData(ctx, Payload{
		"id": "ORDER-1",
		"purchase_units": []interface{}{
			map[string]interface{}{
				"custom_id": "user-from-unit",
				"amount":    map[string]interface{}{"value": "9.99", "currency_code": "USD"},
			},
		},
		"captures": []interface{}{
			map[string]interface{}{
				"custom_id": "user-from-capture",
				"amount":    map[string]interface{}{"value": "1.00", "currency_code": "EUR"},
			},
		},
	})
	if !ok {
		t.Fatal("extraction failed")
	}
	if data.UserID != "user-from-unit" {
		t.Errorf("UserID = %q, want user-from-unit", data.UserID)
	}
	if !data.Amount.Equal(decimal.NewFromFloat(9.99)) {
		t.Errorf("Amount = %s, want 9.99", data.Amount)
	}
	if data.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", data.Currency)
	}
}

func TestExtractPayPalPaymentDataReferenceIDFallback(t *testing.T) {
	h, _, _ := newTestHandler()

	data, ok := h.extractPayPalPaymentData(context.Background(), Payload{
		"id": "ORDER-2",
		"purchase_units": []interface{}{
			map[string]interface{}{
				"reference_id": "user-ref",
				"amount":       map[string]interface{}{"value": "99.99", "currency_code": "USD"},
			},
		},
	})
	if !ok {
		t.Fatal("extraction failed")
	}
	if data.UserID != "user-ref" {
		t.Errorf("UserID = %q, want user-ref", data.UserID)
	}
}

func TestExtractPayPalPaymentDataBillingAgreement(t *testing.T) {
	h, repo, _ := newTestHandler()
	ctx := context.Background()

	// Renewal payload: no custom_id anywhere, user resolved from an earlier
	// payment row keyed on the billing agreement id.
	repo.InsertPayment(ctx, &models.Payment{
		UserID:        "user-7",
		Amount:        decimal.NewFromFloat(9.99),
		Currency:      "USD",
		Status:        models.PaymentStatusCompleted,
		PaymentMethod: models.ProviderPayPal,
		TransactionID: "I-AGREEMENT",
	})

	data, ok := h.extractPayPalPaymentData(ctx, Payload{
		"billing_agreement_id": "I-AGREEMENT",
		"id":                   "SALE-1",
		"amount":               map[string]interface{}{"total": "9.99", "currency": "USD"},
	})
	if !ok {
		t.Fatal("extraction failed")
	}
	if data.UserID != "user-7" {
		t.Errorf("UserID = %q, want user-7", data.UserID)
	}
	if data.SubscriptionID != "I-AGREEMENT" {
		t.Errorf("SubscriptionID = %q, want I-AGREEMENT", data.SubscriptionID)
	}
}

func TestExtractPayPalOrderID(t *testing.T) {
	if got := extractPayPalOrderID(Payload{
		"supplementary_data": map[string]interface{}{
			"related_ids": map[string]interface{}{"order_id": "5O190127TN364715T"},
		},
	}); got != "5O190127TN364715T" {
		t.Errorf("supplementary_data order id = %q", got)
	}

	if got := extractPayPalOrderID(Payload{
		"links": []interface{}{
			map[string]interface{}{"rel": "self", "href": "https://api.paypal.com/v2/payments/captures/3C679366HH908993F"},
			map[string]interface{}{"rel": "up", "href": "https://api.paypal.com/v2/checkout/orders/5O190127TN364715T"},
		},
	}); got != "5O190127TN364715T" {
		t.Errorf("up-link order id = %q", got)
	}

	if got := extractPayPalOrderID(Payload{"id": "CAP-1"}); got != "" {
		t.Errorf("expected empty order id, got %q", got)
	}
}

func TestDaysForPayment(t *testing.T) {
	h, _, _ := newTestHandler()

	usd := func(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

	tests := []struct {
		name        string
		payment     *models.Payment
		provider    string
		amount      decimal.Decimal
		currency    string
		defaultDays int
		want        int
	}{
		{
			name:     "metadata days win",
			payment:  &models.Payment{Metadata: models.PaymentMetadata{Days: 365}},
			provider: models.ProviderPayPal,
			amount:   usd(9.99), currency: "USD",
			want: 365,
		},
		{
			name:     "paypal yearly inferred from amount",
			provider: models.ProviderPayPal,
			amount:   usd(99.99), currency: "USD",
			want: 365,
		},
		{
			name:     "paypal monthly inferred from amount",
			provider: models.ProviderPayPal,
			amount:   usd(29), currency: "USD",
			want: 30,
		},
		{
			name:     "paypal small amount uses caller default",
			provider: models.ProviderPayPal,
			amount:   usd(1), currency: "USD",
			defaultDays: 7,
			want:        7,
		},
		{
			name:     "paypal non-USD skips inference",
			provider: models.ProviderPayPal,
			amount:   usd(99.99), currency: "EUR",
			want: 30,
		},
		{
			name:     "alipay without metadata falls back to 30",
			provider: models.ProviderAlipay,
			amount:   usd(648), currency: "CNY",
			want: 30,
		},
		{
			name:     "no signal at all",
			provider: models.ProviderStripe,
			amount:   usd(0), currency: "USD",
			want: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.daysForPayment(tt.payment, tt.provider, tt.amount, tt.currency, tt.defaultDays)
			if got != tt.want {
				t.Errorf("daysForPayment() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExtractWechatAttachString(t *testing.T) {
	h, _, _ := newTestHandler()

	data, ok := h.extractPaymentData(context.Background(), models.ProviderWechat, Payload{
		"out_trade_no": "WX123",
		"attach":       `{"userId":"user-9"}`,
		"amount":       map[string]interface{}{"total": float64(6800)},
	})
	if !ok {
		t.Fatal("extraction failed")
	}
	if data.UserID != "user-9" {
		t.Errorf("UserID = %q, want user-9", data.UserID)
	}
	if !data.Amount.Equal(decimal.NewFromInt(68)) {
		t.Errorf("Amount = %s, want 68", data.Amount)
	}
}
