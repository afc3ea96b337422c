package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/app/models"
	"github.com/multigpt/paycore/internal/pkg/paystore"
)

// ConfirmRequest is the correlation parameter set from the browser's return
// redirect. Exactly one provider's shape is populated per request; Kind is
// resolved once at the HTTP boundary so the core never sniffs parameters.
type ConfirmRequest struct {
	Kind       string // provider name
	SessionID  string // stripe
	Token      string // paypal order token
	OutTradeNo string // alipay
	TradeNo    string // alipay provider-side trade number
}

// PendingKey is the correlation value the pending payment row was created
// under, in the priority order the create path stamps them.
func (r ConfirmRequest) PendingKey() string {
	switch {
	case r.SessionID != "":
		return r.SessionID
	case r.Token != "":
		return r.Token
	default:
		return r.OutTradeNo
	}
}

// Confirmation is the provider's answer to "did this payment really succeed",
// normalized across gateways.
type Confirmation struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Days          int
}

// Confirmer performs the provider-side order lookup for the confirm path.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, req ConfirmRequest, userID string) (Confirmation, error)
}

// ConfirmError carries an HTTP-mappable status for confirm failures.
type ConfirmError struct {
	Status  int
	Message string
}

func (e *ConfirmError) Error() string { return e.Message }

func NewConfirmError(status int, format string, args ...interface{}) *ConfirmError {
	return &ConfirmError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// ConfirmResult is the response body of the confirm endpoint.
type ConfirmResult struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message,omitempty"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	DaysAdded     int             `json:"daysAdded"`
}

// Reconciler is the synchronous confirm path. It races the async webhook for
// the same transaction by construction; every step re-checks durable state
// before acting instead of assuming an ordering.
type Reconciler struct {
	repo      paystore.Repository
	confirmer Confirmer
}

func NewReconciler(repo paystore.Repository, confirmer Confirmer) *Reconciler {
	return &Reconciler{repo: repo, confirmer: confirmer}
}

// Confirm verifies the payment with the provider, reconciles the payment
// record, and extends the membership where this path is the primary one.
// Stripe and PayPal extensions are deferred to the webhook, which is their
// authoritative path; Alipay and WeChat have no reliable webhook guarantee
// for every flow, so confirm extends directly.
func (r *Reconciler) Confirm(ctx context.Context, userID string, req ConfirmRequest) (ConfirmResult, error) {
	conf, err := r.confirmer.ConfirmPayment(ctx, req, userID)
	if err != nil {
		return ConfirmResult{}, err
	}

	log.Infof("[Confirm] Payment verified: provider=%s user=%s transaction=%s amount=%s %s days=%d",
		req.Kind, userID, conf.TransactionID, conf.Amount, conf.Currency, conf.Days)

	deferred := req.Kind == models.ProviderStripe || req.Kind == models.ProviderPayPal

	// Another path may already have completed this transaction.
	if _, err := r.repo.FindCompletedPaymentByTransactionID(ctx, conf.TransactionID); err == nil {
		log.Infof("[Confirm] Payment %s already processed for user %s", conf.TransactionID, userID)
		if !deferred && conf.Days > 0 {
			if !r.ExtendMembership(ctx, userID, conf.Days, conf.TransactionID, req.Kind) {
				log.Warnf("[Confirm] Failed to ensure membership extension for processed payment %s", conf.TransactionID)
			}
		}
		return ConfirmResult{
			Success:       true,
			Message:       "Payment already processed",
			TransactionID: conf.TransactionID,
			Amount:        conf.Amount,
			Currency:      conf.Currency,
			DaysAdded:     conf.Days,
		}, nil
	} else if !errors.Is(err, paystore.ErrNotFound) {
		log.Errorf("[Confirm] Failed to check completed payment %s: %v", conf.TransactionID, err)
	}

	r.completePendingPayment(ctx, userID, req, &conf)

	if !deferred {
		if !r.ExtendMembership(ctx, userID, conf.Days, conf.TransactionID, req.Kind) {
			return ConfirmResult{}, NewConfirmError(500, "payment confirmed but failed to extend membership")
		}
	} else {
		log.Infof("[Confirm] Deferring %s membership extension for %s to webhook", req.Kind, conf.TransactionID)
	}

	log.Infof("[Confirm] Payment confirmed: user=%s transaction=%s amount=%s %s days=%d",
		userID, conf.TransactionID, conf.Amount, conf.Currency, conf.Days)

	return ConfirmResult{
		Success:       true,
		TransactionID: conf.TransactionID,
		Amount:        conf.Amount,
		Currency:      conf.Currency,
		DaysAdded:     conf.Days,
	}, nil
}

// completePendingPayment flips the pending row created at payment-initiation
// time to completed, or records a fresh completed row when the pending row
// never made it. Failures here are logged but do not abort the confirm: the
// extension is the user-visible part.
func (r *Reconciler) completePendingPayment(ctx context.Context, userID string, req ConfirmRequest, conf *Confirmation) {
	pendingKey := req.PendingKey()

	pending, err := r.repo.FindPendingPaymentByTransactionID(ctx, pendingKey)
	if err != nil && !errors.Is(err, paystore.ErrNotFound) {
		log.Errorf("[Confirm] Failed to find pending payment %s: %v", pendingKey, err)
	}
	if pending != nil && pending.UserID != userID {
		log.Warnf("[Confirm] Pending payment %s belongs to user %s, not %s, ignoring", pendingKey, pending.UserID, userID)
		pending = nil
	}

	if pending != nil {
		// The provider may omit the amount for some flows; trust the row
		// stamped at creation time.
		if conf.Amount.IsZero() && pending.Amount.IsPositive() {
			conf.Amount = pending.Amount
			log.Infof("[Confirm] Using amount %s from pending payment %s", conf.Amount, pending.ID)
		}
		if conf.Currency == "" && pending.Currency != "" {
			conf.Currency = pending.Currency
		}
		if conf.Days == 0 && pending.Metadata.Days > 0 {
			conf.Days = pending.Metadata.Days
		}

		patch := paystore.PaymentCompletion{
			TransactionID: conf.TransactionID,
			Currency:      conf.Currency,
		}
		if conf.Amount.IsPositive() {
			amount := conf.Amount
			patch.Amount = &amount
		}
		if err := r.repo.CompletePayment(ctx, pending.ID, patch); err != nil {
			log.Errorf("[Confirm] Failed to complete payment %s: %v", pending.ID, err)
		}
		return
	}

	log.Warnf("[Confirm] No pending payment for %s (user %s), creating completed record", pendingKey, userID)
	if !conf.Amount.IsPositive() {
		log.Errorf("[Confirm] Cannot create payment with non-positive amount for %s", conf.TransactionID)
		return
	}

	billingCycle := "monthly"
	if conf.Days == 365 {
		billingCycle = "yearly"
	}
	payment := &models.Payment{
		UserID:        userID,
		Amount:        conf.Amount,
		Currency:      conf.Currency,
		Status:        models.PaymentStatusCompleted,
		PaymentMethod: req.Kind,
		TransactionID: conf.TransactionID,
		Metadata: models.PaymentMetadata{
			Days:         conf.Days,
			PaymentType:  "onetime",
			BillingCycle: billingCycle,
		},
	}
	if req.Kind == models.ProviderAlipay || req.Kind == models.ProviderWechat {
		payment.OutTradeNo = req.OutTradeNo
	}
	if err := r.repo.InsertPayment(ctx, payment); err != nil {
		log.Errorf("[Confirm] Failed to create payment record for %s: %v", conf.TransactionID, err)
	}
}

// ExtendMembership applies one payment's days to the user's subscription.
// Idempotent per transaction: a subscription already correlated with this
// transaction id means another call (or the webhook) applied it first.
func (r *Reconciler) ExtendMembership(ctx context.Context, userID string, days int, transactionID, provider string) bool {
	if days <= 0 {
		days = 30
	}

	if sub, err := r.repo.FindSubscriptionByCorrelationID(ctx, transactionID); err == nil {
		log.Infof("[Confirm] Subscription %s already correlated with transaction %s, skipping extension", sub.ID, transactionID)
		return true
	} else if !errors.Is(err, paystore.ErrNotFound) {
		log.Warnf("[Confirm] Correlation check failed for %s, extending anyway: %v", transactionID, err)
	}

	now := time.Now()
	existing, err := r.repo.FindActiveSubscriptionByUser(ctx, userID)
	if err != nil && !errors.Is(err, paystore.ErrNotFound) {
		log.Errorf("[Confirm] Failed to look up subscription for user %s: %v", userID, err)
		return false
	}

	if existing != nil {
		if existing.CurrentPeriodEnd.After(now) {
			existing.CurrentPeriodEnd = existing.CurrentPeriodEnd.AddDate(0, 0, days)
		} else {
			existing.CurrentPeriodEnd = now.AddDate(0, 0, days)
		}
		existing.TransactionID = transactionID
		if provider != "" {
			existing.Provider = provider
		}
		if err := r.repo.UpdateSubscription(ctx, existing); err != nil {
			log.Errorf("[Confirm] Failed to extend subscription %s: %v", existing.ID, err)
			return false
		}
		log.Infof("[Confirm] Extended subscription %s for user %s to %s (+%d days)",
			existing.ID, userID, existing.CurrentPeriodEnd.Format(time.RFC3339), days)
		return true
	}

	sub := &models.Subscription{
		UserID:             userID,
		PlanID:             "pro",
		Status:             models.SubscriptionStatusActive,
		Provider:           provider,
		TransactionID:      transactionID,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, days),
	}
	if err := r.repo.InsertSubscription(ctx, sub); err != nil {
		log.Errorf("[Confirm] Failed to create subscription for user %s: %v", userID, err)
		return false
	}
	log.Infof("[Confirm] Created subscription %s for user %s (%d days)", sub.ID, userID, days)
	return true
}
