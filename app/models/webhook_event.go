package models

import "time"

// WebhookEvent is the idempotency record for one provider delivery. EventID is
// the derived key (provider-prefixed, see payment.DeriveEventID); a redelivery
// of the same event maps to the same row. Processed flips to true only after
// all downstream effects succeeded, so a crash mid-processing leaves the event
// retryable rather than silently swallowed.
type WebhookEvent struct {
	EventID     string     `gorm:"type:varchar(191);primaryKey" json:"event_id"`
	Provider    string     `gorm:"type:varchar(20);not null;index" json:"provider"`
	EventType   string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	EventData   string     `gorm:"type:longtext;not null" json:"event_data"`
	Processed   bool       `gorm:"default:false;index" json:"processed"`
	ProcessedAt *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
