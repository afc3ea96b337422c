package models

import "time"

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusSuspended = "suspended"
)

// Subscription is one user's membership window. A user has at most one active
// row at a time regardless of which provider subscription id last renewed it;
// the ledger enforces this by lookup-then-update, not by a unique constraint.
type Subscription struct {
	ID                     string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID                 string    `gorm:"type:varchar(64);not null;index:idx_subscriptions_user_status,priority:1" json:"user_id"`
	PlanID                 string    `gorm:"type:varchar(50);not null;default:'pro'" json:"plan_id"`
	Status                 string    `gorm:"type:varchar(20);not null;default:'active';index:idx_subscriptions_user_status,priority:2" json:"status"`
	Provider               string    `gorm:"type:varchar(20);index" json:"provider"`
	ProviderSubscriptionID string    `gorm:"type:varchar(191);index" json:"provider_subscription_id"`
	TransactionID          string    `gorm:"type:varchar(191);index" json:"transaction_id"`
	CurrentPeriodStart     time.Time `gorm:"type:timestamp" json:"current_period_start"`
	CurrentPeriodEnd       time.Time `gorm:"type:timestamp;index" json:"current_period_end"`
	CancelAtPeriodEnd      bool      `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsCurrent reports whether the period end is still in the future.
func (s *Subscription) IsCurrent(now time.Time) bool {
	return s.CurrentPeriodEnd.After(now)
}
