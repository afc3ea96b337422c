package paystore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/app/models"
)

// ErrNotFound is returned by all point lookups when no record matches. Both
// backing stores translate their native miss errors to it so callers never
// import gorm or mongo error values.
var ErrNotFound = errors.New("paystore: record not found")

// PaymentCompletion is the field-level patch applied when a payment record
// transitions to completed. Zero-valued fields are left untouched.
type PaymentCompletion struct {
	SubscriptionID string
	TransactionID  string
	Amount         *decimal.Decimal
	Currency       string
}

// Repository is the single storage abstraction behind the reconciliation
// core. One implementation is selected at startup by deployment region (MySQL
// internationally, a document store in China); business logic never branches
// on region. Only point lookups, first-match-by-recency queries, inserts and
// field updates are required — no store-specific features.
type Repository interface {
	// Webhook event idempotency ledger.
	GetWebhookEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	UpsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
	MarkWebhookEventProcessed(ctx context.Context, eventID string, processedAt time.Time) error

	// Payment records. Find* return the most recent match or ErrNotFound.
	FindCompletedPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	FindLatestPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	FindPendingPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	FindPendingPaymentByUserAmount(ctx context.Context, userID string, amount decimal.Decimal, method string, since time.Time) (*models.Payment, error)
	FindPendingPaymentByOutTradeNo(ctx context.Context, outTradeNo, userID string) (*models.Payment, error)
	FindRecentPendingPaymentByMethod(ctx context.Context, method string, since time.Time) (*models.Payment, error)
	InsertPayment(ctx context.Context, payment *models.Payment) error
	CompletePayment(ctx context.Context, paymentID string, patch PaymentCompletion) error

	// Subscription ledger.
	FindActiveSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error)
	FindSubscriptionByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	FindSubscriptionByCorrelationID(ctx context.Context, correlationID string) (*models.Subscription, error)
	InsertSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error

	// Wallet balances.
	GetWalletByUser(ctx context.Context, userID string) (*models.Wallet, error)
	SaveWallet(ctx context.Context, wallet *models.Wallet) error
}
