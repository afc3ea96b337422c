package models

import "time"

// Wallet carries a user's multimodal credit balances. Monthly balances are
// reseeded to the plan defaults on every successful subscription payment;
// addon balances only ever accumulate and never expire.
type Wallet struct {
	ID                  string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID              string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	PlanID              string    `gorm:"type:varchar(50);not null;default:'free'" json:"plan_id"`
	MonthlyImageBalance int       `gorm:"not null;default:0" json:"monthly_image_balance"`
	MonthlyVideoBalance int       `gorm:"not null;default:0" json:"monthly_video_balance"`
	AddonImageBalance   int       `gorm:"not null;default:0" json:"addon_image_balance"`
	AddonVideoBalance   int       `gorm:"not null;default:0" json:"addon_video_balance"`
	PeriodAnchor        time.Time `gorm:"type:timestamp" json:"period_anchor"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TotalImageBalance is what quota checks actually spend against.
func (w *Wallet) TotalImageBalance() int {
	return w.MonthlyImageBalance + w.AddonImageBalance
}

func (w *Wallet) TotalVideoBalance() int {
	return w.MonthlyVideoBalance + w.AddonVideoBalance
}
