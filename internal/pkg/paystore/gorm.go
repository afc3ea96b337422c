package paystore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/multigpt/paycore/app/models"
)

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates the SQL-backed repository used in the
// international deployment.
func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func translateGormErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *gormRepository) GetWebhookEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		return nil, translateGormErr(err)
	}
	return &event, nil
}

func (r *gormRepository) UpsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider",
			"event_type",
			"event_data",
			"processed",
			"updated_at",
		}),
	}).Create(event).Error
}

func (r *gormRepository) MarkWebhookEventProcessed(ctx context.Context, eventID string, processedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": &processedAt,
		}).Error
}

func (r *gormRepository) findPayment(ctx context.Context, query *gorm.DB) (*models.Payment, error) {
	var payment models.Payment
	err := query.WithContext(ctx).Order("created_at DESC").First(&payment).Error
	if err != nil {
		return nil, translateGormErr(err)
	}
	return &payment, nil
}

func (r *gormRepository) FindCompletedPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.findPayment(ctx, r.db.Where("transaction_id = ? AND status = ?", transactionID, models.PaymentStatusCompleted))
}

func (r *gormRepository) FindLatestPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.findPayment(ctx, r.db.Where("transaction_id = ?", transactionID))
}

func (r *gormRepository) FindPendingPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.findPayment(ctx, r.db.Where("transaction_id = ? AND status = ?", transactionID, models.PaymentStatusPending))
}

func (r *gormRepository) FindPendingPaymentByUserAmount(ctx context.Context, userID string, amount decimal.Decimal, method string, since time.Time) (*models.Payment, error) {
	return r.findPayment(ctx, r.db.Where(
		"user_id = ? AND amount = ? AND payment_method = ? AND status = ? AND created_at >= ?",
		userID, amount, method, models.PaymentStatusPending, since,
	))
}

func (r *gormRepository) FindPendingPaymentByOutTradeNo(ctx context.Context, outTradeNo, userID string) (*models.Payment, error) {
	return r.findPayment(ctx, r.db.Where(
		"out_trade_no = ? AND user_id = ? AND status = ?",
		outTradeNo, userID, models.PaymentStatusPending,
	))
}

func (r *gormRepository) FindRecentPendingPaymentByMethod(ctx context.Context, method string, since time.Time) (*models.Payment, error) {
	return r.findPayment(ctx, r.db.Where(
		"payment_method = ? AND status = ? AND created_at >= ?",
		method, models.PaymentStatusPending, since,
	))
}

func (r *gormRepository) InsertPayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *gormRepository) CompletePayment(ctx context.Context, paymentID string, patch PaymentCompletion) error {
	updates := map[string]interface{}{
		"status":     models.PaymentStatusCompleted,
		"updated_at": time.Now(),
	}
	if patch.SubscriptionID != "" {
		updates["subscription_id"] = patch.SubscriptionID
	}
	if patch.TransactionID != "" {
		updates["transaction_id"] = patch.TransactionID
	}
	if patch.Amount != nil {
		updates["amount"] = *patch.Amount
	}
	if patch.Currency != "" {
		updates["currency"] = patch.Currency
	}
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(updates).Error
}

func (r *gormRepository) findSubscription(ctx context.Context, query *gorm.DB) (*models.Subscription, error) {
	var sub models.Subscription
	err := query.WithContext(ctx).Order("created_at DESC").First(&sub).Error
	if err != nil {
		return nil, translateGormErr(err)
	}
	return &sub, nil
}

func (r *gormRepository) FindActiveSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	return r.findSubscription(ctx, r.db.Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive))
}

func (r *gormRepository) FindSubscriptionByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return r.findSubscription(ctx, r.db.Where("provider_subscription_id = ?", providerSubscriptionID))
}

func (r *gormRepository) FindSubscriptionByCorrelationID(ctx context.Context, correlationID string) (*models.Subscription, error) {
	return r.findSubscription(ctx, r.db.Where(
		"transaction_id = ? OR provider_subscription_id = ?",
		correlationID, correlationID,
	))
}

func (r *gormRepository) InsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *gormRepository) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *gormRepository) GetWalletByUser(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		return nil, translateGormErr(err)
	}
	return &wallet, nil
}

func (r *gormRepository) SaveWallet(ctx context.Context, wallet *models.Wallet) error {
	if wallet.ID == "" {
		wallet.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan_id",
			"monthly_image_balance",
			"monthly_video_balance",
			"addon_image_balance",
			"addon_video_balance",
			"period_anchor",
			"updated_at",
		}),
	}).Create(wallet).Error
}
