package paystore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/multigpt/paycore/app/models"
)

const (
	collWebhookEvents = "webhook_events"
	collPayments      = "payments"
	collSubscriptions = "subscriptions"
	collWallets       = "wallets"
)

type mongoRepository struct {
	db *mongo.Database
}

// NewMongoRepository creates the document-store repository used in the China
// deployment. Documents are mapped by hand: amounts travel as decimal strings
// because the decimal type has no native BSON codec.
func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{db: db}
}

func translateMongoErr(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func latestFirst() *options.FindOneOptions {
	return options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
}

func (r *mongoRepository) GetWebhookEvent(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var doc bson.M
	err := r.db.Collection(collWebhookEvents).FindOne(ctx, bson.M{"_id": eventID}).Decode(&doc)
	if err != nil {
		return nil, translateMongoErr(err)
	}
	return webhookEventFromDoc(doc), nil
}

func (r *mongoRepository) UpsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	now := time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	doc := bson.M{
		"_id":        event.EventID,
		"provider":   event.Provider,
		"event_type": event.EventType,
		"event_data": event.EventData,
		"processed":  event.Processed,
		"created_at": event.CreatedAt,
		"updated_at": event.UpdatedAt,
	}
	if event.ProcessedAt != nil {
		doc["processed_at"] = *event.ProcessedAt
	}
	_, err := r.db.Collection(collWebhookEvents).ReplaceOne(
		ctx,
		bson.M{"_id": event.EventID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *mongoRepository) MarkWebhookEventProcessed(ctx context.Context, eventID string, processedAt time.Time) error {
	_, err := r.db.Collection(collWebhookEvents).UpdateOne(
		ctx,
		bson.M{"_id": eventID},
		bson.M{"$set": bson.M{
			"processed":    true,
			"processed_at": processedAt,
			"updated_at":   time.Now(),
		}},
	)
	return err
}

func (r *mongoRepository) findPayment(ctx context.Context, filter bson.M) (*models.Payment, error) {
	var doc bson.M
	err := r.db.Collection(collPayments).FindOne(ctx, filter, latestFirst()).Decode(&doc)
	if err != nil {
		return nil, translateMongoErr(err)
	}
	return paymentFromDoc(doc)
}

func (r *mongoRepository) FindCompletedPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.findPayment(ctx, bson.M{"transaction_id": transactionID, "status": models.PaymentStatusCompleted})
}

func (r *mongoRepository) FindLatestPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.findPayment(ctx, bson.M{"transaction_id": transactionID})
}

func (r *mongoRepository) FindPendingPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.findPayment(ctx, bson.M{"transaction_id": transactionID, "status": models.PaymentStatusPending})
}

func (r *mongoRepository) FindPendingPaymentByUserAmount(ctx context.Context, userID string, amount decimal.Decimal, method string, since time.Time) (*models.Payment, error) {
	return r.findPayment(ctx, bson.M{
		"user_id":        userID,
		"amount":         amount.String(),
		"payment_method": method,
		"status":         models.PaymentStatusPending,
		"created_at":     bson.M{"$gte": since},
	})
}

func (r *mongoRepository) FindPendingPaymentByOutTradeNo(ctx context.Context, outTradeNo, userID string) (*models.Payment, error) {
	return r.findPayment(ctx, bson.M{
		"out_trade_no": outTradeNo,
		"user_id":      userID,
		"status":       models.PaymentStatusPending,
	})
}

func (r *mongoRepository) FindRecentPendingPaymentByMethod(ctx context.Context, method string, since time.Time) (*models.Payment, error) {
	return r.findPayment(ctx, bson.M{
		"payment_method": method,
		"status":         models.PaymentStatusPending,
		"created_at":     bson.M{"$gte": since},
	})
}

func (r *mongoRepository) InsertPayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	_, err := r.db.Collection(collPayments).InsertOne(ctx, paymentToDoc(payment))
	return err
}

func (r *mongoRepository) CompletePayment(ctx context.Context, paymentID string, patch PaymentCompletion) error {
	set := bson.M{
		"status":     models.PaymentStatusCompleted,
		"updated_at": time.Now(),
	}
	if patch.SubscriptionID != "" {
		set["subscription_id"] = patch.SubscriptionID
	}
	if patch.TransactionID != "" {
		set["transaction_id"] = patch.TransactionID
	}
	if patch.Amount != nil {
		set["amount"] = patch.Amount.String()
	}
	if patch.Currency != "" {
		set["currency"] = patch.Currency
	}
	_, err := r.db.Collection(collPayments).UpdateOne(ctx, bson.M{"_id": paymentID}, bson.M{"$set": set})
	return err
}

func (r *mongoRepository) findSubscription(ctx context.Context, filter bson.M) (*models.Subscription, error) {
	var doc bson.M
	err := r.db.Collection(collSubscriptions).FindOne(ctx, filter, latestFirst()).Decode(&doc)
	if err != nil {
		return nil, translateMongoErr(err)
	}
	return subscriptionFromDoc(doc), nil
}

func (r *mongoRepository) FindActiveSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	return r.findSubscription(ctx, bson.M{"user_id": userID, "status": models.SubscriptionStatusActive})
}

func (r *mongoRepository) FindSubscriptionByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return r.findSubscription(ctx, bson.M{"provider_subscription_id": providerSubscriptionID})
}

func (r *mongoRepository) FindSubscriptionByCorrelationID(ctx context.Context, correlationID string) (*models.Subscription, error) {
	return r.findSubscription(ctx, bson.M{"$or": bson.A{
		bson.M{"transaction_id": correlationID},
		bson.M{"provider_subscription_id": correlationID},
	}})
}

func (r *mongoRepository) InsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	_, err := r.db.Collection(collSubscriptions).InsertOne(ctx, subscriptionToDoc(sub))
	return err
}

func (r *mongoRepository) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	sub.UpdatedAt = time.Now()
	_, err := r.db.Collection(collSubscriptions).ReplaceOne(
		ctx,
		bson.M{"_id": sub.ID},
		subscriptionToDoc(sub),
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *mongoRepository) GetWalletByUser(ctx context.Context, userID string) (*models.Wallet, error) {
	var doc bson.M
	err := r.db.Collection(collWallets).FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err != nil {
		return nil, translateMongoErr(err)
	}
	return walletFromDoc(doc), nil
}

func (r *mongoRepository) SaveWallet(ctx context.Context, wallet *models.Wallet) error {
	if wallet.ID == "" {
		wallet.ID = uuid.NewString()
	}
	now := time.Now()
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = now
	}
	wallet.UpdatedAt = now
	_, err := r.db.Collection(collWallets).ReplaceOne(
		ctx,
		bson.M{"user_id": wallet.UserID},
		walletToDoc(wallet),
		options.Replace().SetUpsert(true),
	)
	return err
}

// --- document mapping ---

func docString(doc bson.M, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func docBool(doc bson.M, key string) bool {
	if v, ok := doc[key].(bool); ok {
		return v
	}
	return false
}

func docInt(doc bson.M, key string) int {
	switch v := doc[key].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func docTime(doc bson.M, key string) time.Time {
	switch v := doc[key].(type) {
	case time.Time:
		return v
	}
	if dt, ok := doc[key].(interface{ Time() time.Time }); ok {
		return dt.Time()
	}
	return time.Time{}
}

func webhookEventFromDoc(doc bson.M) *models.WebhookEvent {
	event := &models.WebhookEvent{
		EventID:   docString(doc, "_id"),
		Provider:  docString(doc, "provider"),
		EventType: docString(doc, "event_type"),
		EventData: docString(doc, "event_data"),
		Processed: docBool(doc, "processed"),
		CreatedAt: docTime(doc, "created_at"),
		UpdatedAt: docTime(doc, "updated_at"),
	}
	if t := docTime(doc, "processed_at"); !t.IsZero() {
		event.ProcessedAt = &t
	}
	return event
}

func paymentToDoc(p *models.Payment) bson.M {
	doc := bson.M{
		"_id":            p.ID,
		"user_id":        p.UserID,
		"amount":         p.Amount.String(),
		"currency":       p.Currency,
		"status":         p.Status,
		"payment_method": p.PaymentMethod,
		"transaction_id": p.TransactionID,
		"created_at":     p.CreatedAt,
		"updated_at":     p.UpdatedAt,
	}
	if p.SubscriptionID != "" {
		doc["subscription_id"] = p.SubscriptionID
	}
	if p.OutTradeNo != "" {
		doc["out_trade_no"] = p.OutTradeNo
	}
	if !p.Metadata.IsZero() {
		doc["metadata"] = bson.M{
			"days":          p.Metadata.Days,
			"billing_cycle": p.Metadata.BillingCycle,
			"plan_type":     p.Metadata.PlanType,
			"product_type":  p.Metadata.ProductType,
			"product_id":    p.Metadata.ProductID,
			"payment_type":  p.Metadata.PaymentType,
		}
	}
	return doc
}

func paymentFromDoc(doc bson.M) (*models.Payment, error) {
	amount, err := decimal.NewFromString(docString(doc, "amount"))
	if err != nil {
		return nil, err
	}
	p := &models.Payment{
		ID:             docString(doc, "_id"),
		UserID:         docString(doc, "user_id"),
		SubscriptionID: docString(doc, "subscription_id"),
		Amount:         amount,
		Currency:       docString(doc, "currency"),
		Status:         docString(doc, "status"),
		PaymentMethod:  docString(doc, "payment_method"),
		TransactionID:  docString(doc, "transaction_id"),
		OutTradeNo:     docString(doc, "out_trade_no"),
		CreatedAt:      docTime(doc, "created_at"),
		UpdatedAt:      docTime(doc, "updated_at"),
	}
	if meta, ok := doc["metadata"].(bson.M); ok {
		p.Metadata = models.PaymentMetadata{
			Days:         docInt(meta, "days"),
			BillingCycle: docString(meta, "billing_cycle"),
			PlanType:     docString(meta, "plan_type"),
			ProductType:  docString(meta, "product_type"),
			ProductID:    docString(meta, "product_id"),
			PaymentType:  docString(meta, "payment_type"),
		}
	}
	return p, nil
}

func subscriptionToDoc(s *models.Subscription) bson.M {
	return bson.M{
		"_id":                      s.ID,
		"user_id":                  s.UserID,
		"plan_id":                  s.PlanID,
		"status":                   s.Status,
		"provider":                 s.Provider,
		"provider_subscription_id": s.ProviderSubscriptionID,
		"transaction_id":           s.TransactionID,
		"current_period_start":     s.CurrentPeriodStart,
		"current_period_end":       s.CurrentPeriodEnd,
		"cancel_at_period_end":     s.CancelAtPeriodEnd,
		"created_at":               s.CreatedAt,
		"updated_at":               s.UpdatedAt,
	}
}

func subscriptionFromDoc(doc bson.M) *models.Subscription {
	return &models.Subscription{
		ID:                     docString(doc, "_id"),
		UserID:                 docString(doc, "user_id"),
		PlanID:                 docString(doc, "plan_id"),
		Status:                 docString(doc, "status"),
		Provider:               docString(doc, "provider"),
		ProviderSubscriptionID: docString(doc, "provider_subscription_id"),
		TransactionID:          docString(doc, "transaction_id"),
		CurrentPeriodStart:     docTime(doc, "current_period_start"),
		CurrentPeriodEnd:       docTime(doc, "current_period_end"),
		CancelAtPeriodEnd:      docBool(doc, "cancel_at_period_end"),
		CreatedAt:              docTime(doc, "created_at"),
		UpdatedAt:              docTime(doc, "updated_at"),
	}
}

func walletToDoc(w *models.Wallet) bson.M {
	return bson.M{
		"_id":                   w.ID,
		"user_id":               w.UserID,
		"plan_id":               w.PlanID,
		"monthly_image_balance": w.MonthlyImageBalance,
		"monthly_video_balance": w.MonthlyVideoBalance,
		"addon_image_balance":   w.AddonImageBalance,
		"addon_video_balance":   w.AddonVideoBalance,
		"period_anchor":         w.PeriodAnchor,
		"created_at":            w.CreatedAt,
		"updated_at":            w.UpdatedAt,
	}
}

func walletFromDoc(doc bson.M) *models.Wallet {
	return &models.Wallet{
		ID:                  docString(doc, "_id"),
		UserID:              docString(doc, "user_id"),
		PlanID:              docString(doc, "plan_id"),
		MonthlyImageBalance: docInt(doc, "monthly_image_balance"),
		MonthlyVideoBalance: docInt(doc, "monthly_video_balance"),
		AddonImageBalance:   docInt(doc, "addon_image_balance"),
		AddonVideoBalance:   docInt(doc, "addon_video_balance"),
		PeriodAnchor:        docTime(doc, "period_anchor"),
		CreatedAt:           docTime(doc, "created_at"),
		UpdatedAt:           docTime(doc, "updated_at"),
	}
}
