package paystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/multigpt/paycore/app/models"
)

// MemoryRepository is an in-memory Repository for tests. It mimics the
// recency ordering of the real stores so fallback-chain tests behave the same
// against all three backends.
type MemoryRepository struct {
	mu            sync.Mutex
	events        map[string]*models.WebhookEvent
	payments      []*models.Payment
	subscriptions []*models.Subscription
	wallets       map[string]*models.Wallet
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events:  make(map[string]*models.WebhookEvent),
		wallets: make(map[string]*models.Wallet),
	}
}

func (r *MemoryRepository) GetWebhookEvent(_ context.Context, eventID string) (*models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *event
	return &cp, nil
}

func (r *MemoryRepository) UpsertWebhookEvent(_ context.Context, event *models.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	cp := *event
	r.events[event.EventID] = &cp
	return nil
}

func (r *MemoryRepository) MarkWebhookEventProcessed(_ context.Context, eventID string, processedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event, ok := r.events[eventID]; ok {
		event.Processed = true
		t := processedAt
		event.ProcessedAt = &t
		event.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemoryRepository) findPayment(match func(*models.Payment) bool) (*models.Payment, error) {
	candidates := make([]*models.Payment, 0, len(r.payments))
	for _, p := range r.payments {
		if match(p) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (r *MemoryRepository) FindCompletedPaymentByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findPayment(func(p *models.Payment) bool {
		return p.TransactionID == transactionID && p.Status == models.PaymentStatusCompleted
	})
}

func (r *MemoryRepository) FindLatestPaymentByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findPayment(func(p *models.Payment) bool {
		return p.TransactionID == transactionID
	})
}

func (r *MemoryRepository) FindPendingPaymentByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findPayment(func(p *models.Payment) bool {
		return p.TransactionID == transactionID && p.Status == models.PaymentStatusPending
	})
}

func (r *MemoryRepository) FindPendingPaymentByUserAmount(_ context.Context, userID string, amount decimal.Decimal, method string, since time.Time) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findPayment(func(p *models.Payment) bool {
		return p.UserID == userID &&
			p.Amount.Equal(amount) &&
			p.PaymentMethod == method &&
			p.Status == models.PaymentStatusPending &&
			!p.CreatedAt.Before(since)
	})
}

func (r *MemoryRepository) FindPendingPaymentByOutTradeNo(_ context.Context, outTradeNo, userID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findPayment(func(p *models.Payment) bool {
		return p.OutTradeNo == outTradeNo && p.UserID == userID && p.Status == models.PaymentStatusPending
	})
}

func (r *MemoryRepository) FindRecentPendingPaymentByMethod(_ context.Context, method string, since time.Time) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findPayment(func(p *models.Payment) bool {
		return p.PaymentMethod == method && p.Status == models.PaymentStatusPending && !p.CreatedAt.Before(since)
	})
}

func (r *MemoryRepository) InsertPayment(_ context.Context, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	cp := *payment
	r.payments = append(r.payments, &cp)
	return nil
}

func (r *MemoryRepository) CompletePayment(_ context.Context, paymentID string, patch PaymentCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.ID != paymentID {
			continue
		}
		p.Status = models.PaymentStatusCompleted
		if patch.SubscriptionID != "" {
			p.SubscriptionID = patch.SubscriptionID
		}
		if patch.TransactionID != "" {
			p.TransactionID = patch.TransactionID
		}
		if patch.Amount != nil {
			p.Amount = *patch.Amount
		}
		if patch.Currency != "" {
			p.Currency = patch.Currency
		}
		p.UpdatedAt = time.Now()
		return nil
	}
	return ErrNotFound
}

func (r *MemoryRepository) findSubscription(match func(*models.Subscription) bool) (*models.Subscription, error) {
	candidates := make([]*models.Subscription, 0, len(r.subscriptions))
	for _, s := range r.subscriptions {
		if match(s) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (r *MemoryRepository) FindActiveSubscriptionByUser(_ context.Context, userID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findSubscription(func(s *models.Subscription) bool {
		return s.UserID == userID && s.Status == models.SubscriptionStatusActive
	})
}

func (r *MemoryRepository) FindSubscriptionByProviderSubscriptionID(_ context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findSubscription(func(s *models.Subscription) bool {
		return s.ProviderSubscriptionID == providerSubscriptionID
	})
}

func (r *MemoryRepository) FindSubscriptionByCorrelationID(_ context.Context, correlationID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findSubscription(func(s *models.Subscription) bool {
		return s.TransactionID == correlationID || s.ProviderSubscriptionID == correlationID
	})
}

func (r *MemoryRepository) InsertSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	cp := *sub
	r.subscriptions = append(r.subscriptions, &cp)
	return nil
}

func (r *MemoryRepository) UpdateSubscription(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subscriptions {
		if s.ID == sub.ID {
			sub.UpdatedAt = time.Now()
			cp := *sub
			r.subscriptions[i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) GetWalletByUser(_ context.Context, userID string) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallet, ok := r.wallets[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wallet
	return &cp, nil
}

func (r *MemoryRepository) SaveWallet(_ context.Context, wallet *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wallet.ID == "" {
		wallet.ID = uuid.NewString()
	}
	now := time.Now()
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = now
	}
	wallet.UpdatedAt = now
	cp := *wallet
	r.wallets[wallet.UserID] = &cp
	return nil
}

// Payments returns a snapshot of all payment rows, for test assertions.
func (r *MemoryRepository) Payments() []models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Payment, 0, len(r.payments))
	for _, p := range r.payments {
		out = append(out, *p)
	}
	return out
}

// Subscriptions returns a snapshot of all subscription rows, for test assertions.
func (r *MemoryRepository) Subscriptions() []models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Subscription, 0, len(r.subscriptions))
	for _, s := range r.subscriptions {
		out = append(out, *s)
	}
	return out
}
