package payment

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

// handleStripeCheckoutCompleted processes checkout.session.completed. The
// session metadata carries everything stamped at creation time, so this is
// the one Stripe path that does not need a stored pending row to resolve
// user or days. One-time checkouts have no subscription object; the session
// id itself becomes the correlation key.
func (h *Handler) handleStripeCheckoutCompleted(ctx context.Context, session Payload) bool {
	meta := session.object("metadata")
	if meta == nil {
		meta = Payload{}
	}

	userID := meta.str("userId")
	if userID == "" {
		log.Errorf("[Webhook] Missing userId in Stripe checkout session %s", session.str("id"))
		return false
	}

	days := 0
	if raw := meta.str("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			days = parsed
		}
	}

	amount := decimal.NewFromFloat(session.float("amount_total")).Div(decimal.NewFromInt(100))
	currency := strings.ToUpper(session.str("currency"))
	if currency == "" {
		currency = "USD"
	}

	subscriptionID := session.str("subscription")
	if meta.str("paymentType") == "onetime" {
		subscriptionID = session.str("id")
	} else if subscriptionID == "" {
		log.Errorf("[Webhook] No subscription ID in Stripe checkout session %s", session.str("id"))
		return false
	}

	pending := h.findPendingPayment(ctx, models.ProviderStripe, Data{
		SubscriptionID: session.str("id"),
		UserID:         userID,
		Amount:         amount,
	})
	finalDays := days
	if finalDays <= 0 {
		finalDays = h.daysForPayment(pending, models.ProviderStripe, amount, currency, 0)
	}

	update := LedgerUpdate{
		UserID:         userID,
		SubscriptionID: subscriptionID,
		Status:         models.SubscriptionStatusActive,
		Provider:       models.ProviderStripe,
		Days:           finalDays,
	}
	if amount.IsPositive() {
		update.Amount = amount
		update.Currency = currency
	}
	if !h.UpdateSubscriptionStatus(ctx, update) {
		return false
	}

	log.Infof("[Webhook] Stripe checkout %s processed for user %s (%s %s, %d days)",
		session.str("id"), userID, amount, currency, finalDays)

	if pending != nil {
		h.provisionWallet(ctx, userID, pending, models.ProviderStripe)
	}
	return true
}

// handleStripeSubscriptionUpdated mirrors provider-side status flips into the
// ledger. Anything not active maps to suspended; the period is untouched.
func (h *Handler) handleStripeSubscriptionUpdated(ctx context.Context, subscription Payload) bool {
	subscriptionID := subscription.str("id")
	status := models.SubscriptionStatusSuspended
	if subscription.str("status") == "active" {
		status = models.SubscriptionStatusActive
	}

	user, found := h.findUserBySubscriptionID(ctx, subscriptionID)
	if !found {
		log.Errorf("[Webhook] User not found for updated Stripe subscription %s", subscriptionID)
		return false
	}

	if status == models.SubscriptionStatusActive {
		// Status-only refresh; no payment arrived, so no period extension.
		log.Infof("[Webhook] Stripe subscription %s still active for user %s", subscriptionID, user.UserID)
		return true
	}

	return h.UpdateSubscriptionStatus(ctx, LedgerUpdate{
		UserID:         user.UserID,
		SubscriptionID: subscriptionID,
		Status:         status,
		Provider:       models.ProviderStripe,
	})
}

// handleStripeInvoicePaymentSucceeded records the renewal payment row for an
// invoice. The subscription extension itself rides on checkout/session
// events; this keeps the payment history complete.
func (h *Handler) handleStripeInvoicePaymentSucceeded(ctx context.Context, invoice Payload) bool {
	subscriptionID := invoice.str("subscription")
	if subscriptionID == "" {
		log.Infof("[Webhook] Stripe invoice %s without subscription, skipping", invoice.str("id"))
		return true
	}

	user, found := h.findUserBySubscriptionID(ctx, subscriptionID)
	if !found {
		log.Errorf("[Webhook] User not found for Stripe invoice %s (subscription %s)", invoice.str("id"), subscriptionID)
		return false
	}

	subscriptionDBID := user.SubscriptionDBID
	if subscriptionDBID == "" {
		sub, err := h.repo.FindSubscriptionByProviderSubscriptionID(ctx, subscriptionID)
		if err != nil {
			log.Errorf("[Webhook] Subscription not found for Stripe invoice %s: %v", invoice.str("id"), err)
			return false
		}
		subscriptionDBID = sub.ID
	}

	invoiceID := invoice.str("id")
	if existing, err := h.repo.FindLatestPaymentByTransactionID(ctx, invoiceID); err == nil {
		log.Infof("[Webhook] Payment record already exists for invoice %s (%s), skipping", invoiceID, existing.Status)
		return true
	} else if !errors.Is(err, paystore.ErrNotFound) {
		log.Errorf("[Webhook] Failed to check payment records for invoice %s: %v", invoiceID, err)
		return false
	}

	amount := decimal.NewFromFloat(invoice.float("amount_paid")).Div(decimal.NewFromInt(100))
	currency := strings.ToUpper(invoice.str("currency"))
	if currency == "" {
		currency = "USD"
	}

	payment := &models.Payment{
		UserID:         user.UserID,
		SubscriptionID: subscriptionDBID,
		Amount:         amount,
		Currency:       currency,
		Status:         models.PaymentStatusCompleted,
		PaymentMethod:  models.ProviderStripe,
		TransactionID:  invoiceID,
	}
	if err := h.repo.InsertPayment(ctx, payment); err != nil {
		log.Errorf("[Webhook] Failed to record Stripe invoice payment %s: %v", invoiceID, err)
		return false
	}

	log.Infof("[Webhook] Recorded Stripe invoice payment %s for user %s (%s %s)", invoiceID, user.UserID, amount, currency)
	return true
}

// handleStripeInvoicePaymentFailed only logs today. The subscription stays
// untouched until Stripe escalates to customer.subscription.updated/deleted.
func (h *Handler) handleStripeInvoicePaymentFailed(ctx context.Context, invoice Payload) bool {
	subscriptionID := invoice.str("subscription")
	if subscriptionID == "" {
		log.Infof("[Webhook] Stripe failed invoice %s without subscription, skipping", invoice.str("id"))
		return true
	}

	user, found := h.findUserBySubscriptionID(ctx, subscriptionID)
	if !found {
		log.Errorf("[Webhook] User not found for failed Stripe invoice %s (subscription %s)", invoice.str("id"), subscriptionID)
		return false
	}

	amount := decimal.NewFromFloat(invoice.float("amount_due")).Div(decimal.NewFromInt(100))
	log.Warnf("[Webhook] Stripe invoice payment failed for user %s: invoice=%s amount=%s %s attempts=%v",
		user.UserID, invoice.str("id"), amount, strings.ToUpper(invoice.str("currency")), invoice.float("attempt_count"))
	return true
}
