package payment

import (
	"testing"

	"github.com/multigpt/paycore/app/models"
)

func TestDeriveEventIDFallbackChains(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		payload  Payload
		want     string
	}{
		{
			name:     "paypal transmission id wins over event id",
			provider: models.ProviderPayPal,
			payload: Payload{
				TransmissionIDKey: "tx-123",
				"id":              "WH-1",
				"resource":        map[string]interface{}{"id": "CAP-1"},
			},
			want: "paypal_tx-123",
		},
		{
			name:     "paypal event id when no transmission id",
			provider: models.ProviderPayPal,
			payload: Payload{
				"id":       "WH-1",
				"resource": map[string]interface{}{"id": "CAP-1"},
			},
			want: "paypal_WH-1",
		},
		{
			name:     "paypal resource id as last resort",
			provider: models.ProviderPayPal,
			payload: Payload{
				"resource": map[string]interface{}{"id": "CAP-1"},
			},
			want: "paypal_CAP-1",
		},
		{
			name:     "stripe event id",
			provider: models.ProviderStripe,
			payload:  Payload{"id": "evt_1", "data": map[string]interface{}{"object": map[string]interface{}{"id": "cs_1"}}},
			want:     "stripe_evt_1",
		},
		{
			name:     "stripe object id when envelope id missing",
			provider: models.ProviderStripe,
			payload:  Payload{"data": map[string]interface{}{"object": map[string]interface{}{"id": "cs_1"}}},
			want:     "stripe_cs_1",
		},
		{
			name:     "alipay out_trade_no",
			provider: models.ProviderAlipay,
			payload:  Payload{"out_trade_no": "ALI1", "trade_no": "2024T1"},
			want:     "alipay_ALI1",
		},
		{
			name:     "alipay trade_no fallback",
			provider: models.ProviderAlipay,
			payload:  Payload{"trade_no": "2024T1"},
			want:     "alipay_2024T1",
		},
		{
			name:     "wechat out_trade_no",
			provider: models.ProviderWechat,
			payload:  Payload{"out_trade_no": "WX1", "transaction_id": "420000"},
			want:     "wechat_WX1",
		},
		{
			name:     "wechat transaction_id fallback",
			provider: models.ProviderWechat,
			payload:  Payload{"transaction_id": "420000"},
			want:     "wechat_420000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveEventID(tt.provider, tt.payload)
			if got != tt.want {
				t.Errorf("DeriveEventID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveEventIDDeterministicJSONFallback(t *testing.T) {
	payload := Payload{
		"b": "2",
		"a": "1",
		"c": map[string]interface{}{"z": "last", "a": "first"},
	}

	first := DeriveEventID(models.ProviderStripe, payload)
	for i := 0; i < 10; i++ {
		if got := DeriveEventID(models.ProviderStripe, payload); got != first {
			t.Fatalf("event id not deterministic: %q vs %q", got, first)
		}
	}
}

func TestDeriveEventIDTransmissionIDIgnoresBodyChanges(t *testing.T) {
	// PayPal redeliveries reuse the transmission id while the resource body
	// may vary; both deliveries must map to the same idempotency key.
	first := DeriveEventID(models.ProviderPayPal, Payload{
		TransmissionIDKey: "tx-abc",
		"resource":        map[string]interface{}{"id": "CAP-1", "update_time": "2026-01-01T00:00:00Z"},
	})
	second := DeriveEventID(models.ProviderPayPal, Payload{
		TransmissionIDKey: "tx-abc",
		"resource":        map[string]interface{}{"id": "CAP-1", "update_time": "2026-01-01T00:05:00Z", "extra": "field"},
	})
	if first != second {
		t.Errorf("redelivery changed the event id: %q vs %q", first, second)
	}
}
