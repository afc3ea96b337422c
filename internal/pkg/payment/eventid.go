package payment

import "github.com/multigpt/paycore/app/models"

// TransmissionIDKey is injected into PayPal payloads at the HTTP boundary
// from the Paypal-Transmission-Id header. It is the most reliable dedup key
// PayPal offers because redeliveries of one event reuse it while the payload
// body may vary in completeness.
const TransmissionIDKey = "_paypal_transmission_id"

// DeriveEventID builds the idempotency key for a webhook delivery. The
// per-provider fallback chains are ordered from most to least reliable and
// must stay in this order: providers redeliver events with varying payload
// completeness, and a different chain order would assign two ids to one
// event.
func DeriveEventID(provider string, payload Payload) string {
	var key string

	switch provider {
	case models.ProviderPayPal:
		if tid := payload.str(TransmissionIDKey); tid != "" {
			key = tid
		} else if id := payload.str("id"); id != "" {
			key = id
		} else if resource := payload.object("resource"); resource != nil && resource.str("id") != "" {
			key = resource.str("id")
		}
	case models.ProviderStripe:
		if id := payload.str("id"); id != "" {
			key = id
		} else if data := payload.object("data"); data != nil {
			if obj := data.object("object"); obj != nil {
				key = obj.str("id")
			}
		}
	case models.ProviderAlipay:
		if no := payload.str("out_trade_no"); no != "" {
			key = no
		} else {
			key = payload.str("trade_no")
		}
	case models.ProviderWechat:
		if no := payload.str("out_trade_no"); no != "" {
			key = no
		} else {
			key = payload.str("transaction_id")
		}
	}

	if key == "" {
		key = payload.canonical()
	}
	return provider + "_" + key
}
