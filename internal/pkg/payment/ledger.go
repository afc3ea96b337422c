package payment

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

// paypalRecentWindow bounds the last-resort user lookup from recent pending
// PayPal payments.
const paypalRecentWindow = 5 * time.Minute

// reconcileWindow bounds the user+amount pending-payment match in the
// payment reconciliation chain.
const reconcileWindow = 15 * time.Minute

// LedgerUpdate carries one subscription state change into the ledger. Amount
// and Currency are optional; when both are set the matching payment record is
// also reconciled to completed.
type LedgerUpdate struct {
	UserID         string
	SubscriptionID string
	Status         string
	Provider       string
	Amount         decimal.Decimal
	Currency       string
	Days           int
	PayPalOrderID  string
}

// SubscriptionUser is the result of resolving a provider subscription id back
// to a local user.
type SubscriptionUser struct {
	UserID           string
	SubscriptionDBID string
}

// UpdateSubscriptionStatus is the single write path into the subscription
// ledger. The lookup is by user, not by subscription id: a user has at most
// one active plan regardless of which provider subscription id renewed it.
// Returns false on any lookup or write error; wallet provisioning never runs
// after a false return.
func (h *Handler) UpdateSubscriptionStatus(ctx context.Context, update LedgerUpdate) bool {
	now := time.Now()
	days := update.Days
	if days <= 0 {
		days = 30
	}

	existing, err := h.repo.FindActiveSubscriptionByUser(ctx, update.UserID)
	if err != nil && !errors.Is(err, paystore.ErrNotFound) {
		log.Errorf("[Ledger] Failed to check existing subscription for user %s: %v", update.UserID, err)
		return false
	}

	var subscriptionDBID string

	switch {
	case existing != nil:
		if update.Status == models.SubscriptionStatusActive {
			if alreadyAppliedByConfirm(existing, update) {
				log.Infof("[Ledger] Transaction %s already extended subscription %s via confirm, skipping period change",
					update.SubscriptionID, existing.ID)
			} else {
				// Extend from the current end while it is still in the
				// future, otherwise restart from now. The end never moves
				// backwards.
				if existing.CurrentPeriodEnd.After(now) {
					existing.CurrentPeriodEnd = existing.CurrentPeriodEnd.AddDate(0, 0, days)
				} else {
					existing.CurrentPeriodEnd = now.AddDate(0, 0, days)
				}
				existing.TransactionID = update.SubscriptionID
			}
			existing.ProviderSubscriptionID = update.SubscriptionID
			existing.Provider = update.Provider
		}
		existing.Status = update.Status
		if err := h.repo.UpdateSubscription(ctx, existing); err != nil {
			log.Errorf("[Ledger] Failed to update subscription %s: %v", existing.ID, err)
			return false
		}
		subscriptionDBID = existing.ID
		log.Infof("[Ledger] Subscription %s for user %s set to %s (period end %s)",
			existing.ID, update.UserID, update.Status, existing.CurrentPeriodEnd.Format(time.RFC3339))

	case update.Status == models.SubscriptionStatusActive:
		sub := &models.Subscription{
			UserID:                 update.UserID,
			PlanID:                 "pro",
			Status:                 models.SubscriptionStatusActive,
			Provider:               update.Provider,
			ProviderSubscriptionID: update.SubscriptionID,
			TransactionID:          update.SubscriptionID,
			CurrentPeriodStart:     now,
			CurrentPeriodEnd:       now.AddDate(0, 0, days),
		}
		if err := h.repo.InsertSubscription(ctx, sub); err != nil {
			log.Errorf("[Ledger] Failed to create subscription for user %s: %v", update.UserID, err)
			return false
		}
		subscriptionDBID = sub.ID
		log.Infof("[Ledger] Created subscription %s for user %s (period end %s)",
			sub.ID, update.UserID, sub.CurrentPeriodEnd.Format(time.RFC3339))

	default:
		// Cancel/suspend for a user without an active row: nothing to do.
		log.Warnf("[Ledger] No active subscription for user %s to set %s", update.UserID, update.Status)
	}

	if update.Amount.IsPositive() && update.Currency != "" {
		if err := h.reconcilePayment(ctx, update, subscriptionDBID, now); err != nil {
			log.Errorf("[Ledger] Payment reconciliation failed for %s: %v", update.SubscriptionID, err)
			return false
		}
	}

	return true
}

// alreadyAppliedByConfirm detects that the synchronous confirm path has
// applied this exact payment to the ledger before the webhook arrived. Only
// Alipay and WeChat qualify: their correlation key (out_trade_no) is freshly
// minted per payment, so an equal TransactionID can only mean the same
// payment. Stripe and PayPal reuse subscription ids across renewals and must
// never be gated this way.
func alreadyAppliedByConfirm(existing *models.Subscription, update LedgerUpdate) bool {
	if update.Provider != models.ProviderAlipay && update.Provider != models.ProviderWechat {
		return false
	}
	return existing.TransactionID != "" && existing.TransactionID == update.SubscriptionID
}

// reconcilePayment flips the matching payment record to completed, or inserts
// a fresh completed record when no pending row exists. The fallback chain
// order decides which duplicate-prevention case wins a race and must not be
// reordered.
func (h *Handler) reconcilePayment(ctx context.Context, update LedgerUpdate, subscriptionDBID string, now time.Time) error {
	transactionID := update.SubscriptionID

	// An already-completed record means another path won the race; no-op.
	if _, err := h.repo.FindCompletedPaymentByTransactionID(ctx, transactionID); err == nil {
		log.Infof("[Ledger] Payment for %s already completed, skipping", transactionID)
		return nil
	} else if !errors.Is(err, paystore.ErrNotFound) {
		return err
	}

	pending := h.findReconcilablePayment(ctx, update, transactionID, now)
	if pending != nil {
		if pending.IsCompleted() {
			log.Infof("[Ledger] Payment %s already completed, skipping", pending.ID)
			return nil
		}
		if err := h.repo.CompletePayment(ctx, pending.ID, paystore.PaymentCompletion{
			SubscriptionID: subscriptionDBID,
		}); err != nil {
			return err
		}
		log.Infof("[Ledger] Payment %s completed for transaction %s", pending.ID, transactionID)
		return nil
	}

	// Webhook arrived with no pending row; record the completion directly.
	payment := &models.Payment{
		UserID:         update.UserID,
		SubscriptionID: subscriptionDBID,
		Amount:         update.Amount,
		Currency:       update.Currency,
		Status:         models.PaymentStatusCompleted,
		PaymentMethod:  update.Provider,
		TransactionID:  transactionID,
	}
	if err := h.repo.InsertPayment(ctx, payment); err != nil {
		return err
	}
	log.Infof("[Ledger] Recorded completed payment %s for transaction %s", payment.ID, transactionID)
	return nil
}

func (h *Handler) findReconcilablePayment(ctx context.Context, update LedgerUpdate, transactionID string, now time.Time) *models.Payment {
	if p, err := h.repo.FindPendingPaymentByTransactionID(ctx, transactionID); err == nil {
		return p
	}

	if update.Provider == models.ProviderPayPal && update.PayPalOrderID != "" {
		if p, err := h.repo.FindLatestPaymentByTransactionID(ctx, update.PayPalOrderID); err == nil {
			return p
		}
	}

	if update.Provider == models.ProviderPayPal && update.UserID != "" && update.Amount.IsPositive() {
		since := now.Add(-reconcileWindow)
		if p, err := h.repo.FindPendingPaymentByUserAmount(ctx, update.UserID, update.Amount, update.Provider, since); err == nil {
			return p
		}
	}

	if update.Provider == models.ProviderAlipay && update.UserID != "" {
		if p, err := h.repo.FindPendingPaymentByOutTradeNo(ctx, transactionID, update.UserID); err == nil {
			return p
		}
	}

	return nil
}

// findUserBySubscriptionID resolves a provider subscription id to the local
// user via stored payments, then the subscription ledger, then as a last
// resort the most recent pending PayPal payment.
func (h *Handler) findUserBySubscriptionID(ctx context.Context, subscriptionID string) (SubscriptionUser, bool) {
	if subscriptionID == "" {
		return SubscriptionUser{}, false
	}

	if p, err := h.repo.FindLatestPaymentByTransactionID(ctx, subscriptionID); err == nil {
		return SubscriptionUser{UserID: p.UserID}, true
	}

	if sub, err := h.repo.FindSubscriptionByProviderSubscriptionID(ctx, subscriptionID); err == nil {
		return SubscriptionUser{UserID: sub.UserID, SubscriptionDBID: sub.ID}, true
	}

	since := time.Now().Add(-paypalRecentWindow)
	if p, err := h.repo.FindRecentPendingPaymentByMethod(ctx, models.ProviderPayPal, since); err == nil {
		log.Warnf("[Ledger] No exact match for subscription %s, using recent pending PayPal payment %s (user %s)",
			subscriptionID, p.TransactionID, p.UserID)
		return SubscriptionUser{UserID: p.UserID}, true
	}

	return SubscriptionUser{}, false
}
