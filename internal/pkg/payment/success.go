package payment

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

var paypalOrderIDPattern = regexp.MustCompile(`/orders/([A-Z0-9]+)`)

// handlePaymentSuccess is the shared success path behind every provider's
// "money arrived" event: normalize the payload, locate the pending payment,
// resolve the membership days, extend the ledger, then provision credits.
func (h *Handler) handlePaymentSuccess(ctx context.Context, provider string, data Payload) bool {
	paymentData, ok := h.extractPaymentData(ctx, provider, data)
	if !ok {
		return false
	}

	pending := h.findPendingPayment(ctx, provider, paymentData)
	days := h.daysForPayment(pending, provider, paymentData.Amount, paymentData.Currency, paymentData.Days)

	update := LedgerUpdate{
		UserID:         paymentData.UserID,
		SubscriptionID: paymentData.SubscriptionID,
		Status:         models.SubscriptionStatusActive,
		Provider:       provider,
		Days:           days,
		PayPalOrderID:  paymentData.PayPalOrderID,
	}
	if paymentData.Amount.IsPositive() {
		update.Amount = paymentData.Amount
		update.Currency = paymentData.Currency
	}

	if !h.UpdateSubscriptionStatus(ctx, update) {
		return false
	}

	log.Infof("[Payment] Success processed: provider=%s user=%s subscription=%s amount=%s %s days=%d",
		provider, paymentData.UserID, paymentData.SubscriptionID, paymentData.Amount, paymentData.Currency, days)

	if pending != nil {
		h.provisionWallet(ctx, paymentData.UserID, pending, provider)
	}
	return true
}

// extractPaymentData normalizes a provider payload into the canonical tuple.
// A missing user or subscription id aborts the event (it stays unprocessed
// and the provider redelivers).
func (h *Handler) extractPaymentData(ctx context.Context, provider string, data Payload) (Data, bool) {
	var d Data

	switch provider {
	case models.ProviderPayPal:
		return h.extractPayPalPaymentData(ctx, data)

	case models.ProviderStripe:
		d.SubscriptionID = data.str("subscription")
		if d.SubscriptionID == "" {
			d.SubscriptionID = data.str("id")
		}
		if meta := data.object("metadata"); meta != nil {
			d.UserID = meta.str("userId")
		}
		if d.UserID == "" {
			d.UserID = data.str("customer")
		}
		d.Amount = decimal.NewFromFloat(data.float("amount_total")).Div(decimal.NewFromInt(100))
		d.Currency = strings.ToUpper(data.str("currency"))
		if d.Currency == "" {
			d.Currency = "USD"
		}

	case models.ProviderAlipay:
		d.SubscriptionID = data.str("out_trade_no")
		d.UserID = data.str("passback_params")
		d.Amount = decimal.NewFromFloat(data.float("total_amount"))
		d.Currency = "CNY"

	case models.ProviderWechat:
		d.SubscriptionID = data.str("out_trade_no")
		// attach travels as an opaque string through WeChat; some writers stamp
		// it as a JSON object, older ones as serialized JSON.
		attach := data.object("attach")
		if attach == nil {
			if raw := data.str("attach"); raw != "" {
				attach, _ = ParsePayload([]byte(raw))
			}
		}
		if attach != nil {
			d.UserID = attach.str("userId")
		}
		if amount := data.object("amount"); amount != nil {
			d.Amount = decimal.NewFromFloat(amount.float("total")).Div(decimal.NewFromInt(100))
		}
		d.Currency = "CNY"
	}

	if d.UserID == "" || d.SubscriptionID == "" {
		log.Errorf("[Payment] Missing userId or subscriptionId for %s payment (subscription=%q user=%q)",
			provider, d.SubscriptionID, d.UserID)
		return Data{}, false
	}
	return d, true
}

// extractPayPalPaymentData handles the three payload shapes PayPal delivers
// for one capture plus the subscription-renewal shape that carries no user
// reference at all. Branch order matters: purchase_units beats captures
// beats the bare custom_id.
func (h *Handler) extractPayPalPaymentData(ctx context.Context, data Payload) (Data, bool) {
	d := Data{Currency: "USD"}

	d.SubscriptionID = data.str("billing_agreement_id")
	if d.SubscriptionID == "" {
		d.SubscriptionID = data.str("id")
	}
	d.PayPalOrderID = extractPayPalOrderID(data)

	if units := data.slice("purchase_units"); len(units) > 0 {
		unit := units[0]
		d.UserID = unit.str("custom_id")
		if d.UserID == "" {
			d.UserID = unit.str("reference_id")
		}
		if amount := unit.object("amount"); amount != nil {
			d.Amount = decimal.NewFromFloat(amount.float("value"))
			if cc := amount.str("currency_code"); cc != "" {
				d.Currency = cc
			}
		}
	} else if captures := data.slice("captures"); len(captures) > 0 {
		capture := captures[0]
		d.UserID = capture.str("custom_id")
		if d.UserID == "" {
			d.UserID = data.str("custom_id")
		}
		if amount := capture.object("amount"); amount != nil {
			d.Amount = decimal.NewFromFloat(amount.float("value"))
			if cc := amount.str("currency_code"); cc != "" {
				d.Currency = cc
			}
		}
	} else if customID := data.str("custom_id"); customID != "" {
		d.UserID = customID
		if amount := data.object("amount"); amount != nil {
			if v := amount.float("value"); v != 0 {
				d.Amount = decimal.NewFromFloat(v)
			} else {
				d.Amount = decimal.NewFromFloat(amount.float("total"))
			}
			if cc := amount.str("currency_code"); cc != "" {
				d.Currency = cc
			} else if c := amount.str("currency"); c != "" {
				d.Currency = c
			}
		}
	} else {
		// Renewal payloads reference nothing but the subscription id; look
		// the user up from earlier stored rows.
		user, found := h.findUserBySubscriptionID(ctx, d.SubscriptionID)
		if found {
			d.UserID = user.UserID
		}
		if amount := data.object("amount"); amount != nil {
			d.Amount = decimal.NewFromFloat(amount.float("total"))
			if c := amount.str("currency"); c != "" {
				d.Currency = c
			}
		} else if billing := data.object("billing_info"); billing != nil {
			if last := billing.object("last_payment"); last != nil {
				if amount := last.object("amount"); amount != nil {
					d.Amount = decimal.NewFromFloat(amount.float("value"))
					if cc := amount.str("currency_code"); cc != "" {
						d.Currency = cc
					}
				}
			}
		}
	}

	if d.UserID == "" || d.SubscriptionID == "" {
		log.Errorf("[Payment] Missing userId or subscriptionId for PayPal payment (subscription=%q order=%q)",
			d.SubscriptionID, d.PayPalOrderID)
		return Data{}, false
	}
	return d, true
}

// extractPayPalOrderID digs the checkout order id out of either the
// supplementary data or the "up" HATEOAS link.
func extractPayPalOrderID(data Payload) string {
	if supp := data.object("supplementary_data"); supp != nil {
		if related := supp.object("related_ids"); related != nil {
			if id := related.str("order_id"); id != "" {
				return id
			}
		}
	}
	for _, link := range data.slice("links") {
		if link.str("rel") != "up" {
			continue
		}
		href := link.str("href")
		if !strings.Contains(href, "/orders/") && !strings.Contains(href, "/checkouts/") {
			continue
		}
		if m := paypalOrderIDPattern.FindStringSubmatch(href); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

// findPendingPayment locates the pending row created at payment-initiation
// time, trying the provider-specific correlation keys in priority order.
func (h *Handler) findPendingPayment(ctx context.Context, provider string, d Data) *models.Payment {
	if p, err := h.repo.FindLatestPaymentByTransactionID(ctx, d.SubscriptionID); err == nil {
		return p
	} else if !errors.Is(err, paystore.ErrNotFound) {
		log.Errorf("[Payment] Failed to read payment record for %s: %v", d.SubscriptionID, err)
		return nil
	}

	if provider == models.ProviderPayPal && d.PayPalOrderID != "" {
		if p, err := h.repo.FindLatestPaymentByTransactionID(ctx, d.PayPalOrderID); err == nil {
			return p
		}
	}

	if provider == models.ProviderPayPal && d.UserID != "" && d.Amount.IsPositive() {
		since := time.Now().Add(-reconcileWindow)
		if p, err := h.repo.FindPendingPaymentByUserAmount(ctx, d.UserID, d.Amount, provider, since); err == nil {
			return p
		}
	}

	if provider == models.ProviderAlipay && d.UserID != "" {
		if p, err := h.repo.FindPendingPaymentByOutTradeNo(ctx, d.SubscriptionID, d.UserID); err == nil {
			return p
		}
	}

	log.Warnf("[Payment] No payment record found for %s transaction %s (user %s)", provider, d.SubscriptionID, d.UserID)
	return nil
}

// daysForPayment resolves the membership days for a successful payment.
// Metadata stamped at creation time is authoritative; the amount-based
// inference below is a documented workaround for payments whose metadata
// never made it into the pending row.
func (h *Handler) daysForPayment(payment *models.Payment, provider string, amount decimal.Decimal, currency string, defaultDays int) int {
	if payment != nil && payment.Metadata.Days > 0 {
		log.Infof("[Payment] Days %d taken from %s payment metadata", payment.Metadata.Days, provider)
		return payment.Metadata.Days
	}

	log.Warnf("[Payment] Days missing from %s payment metadata, inferring (amount=%s %s)", provider, amount, currency)

	if provider == models.ProviderAlipay {
		log.Errorf("[Payment] CRITICAL: Alipay payment metadata missing days field (amount=%s, hasPayment=%t)",
			amount, payment != nil)
		return 30
	}

	if provider == models.ProviderPayPal && currency == "USD" {
		if amount.GreaterThanOrEqual(decimal.NewFromInt(99)) {
			return 365
		}
		if amount.GreaterThanOrEqual(decimal.NewFromInt(9)) {
			return 30
		}
	}

	if defaultDays > 0 {
		return defaultDays
	}
	return 30
}
