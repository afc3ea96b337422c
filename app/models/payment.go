package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
	ProviderAlipay = "alipay"
	ProviderWechat = "wechat"
)

const (
	ProductTypeSubscription = "SUBSCRIPTION"
	ProductTypeAddon        = "ADDON"
)

// PaymentMetadata is the opaque bag stamped onto a payment at creation time.
// Providers echo none of it back, so the reconciliation paths read it from the
// stored pending row. Days may arrive as a JSON string from older writers.
type PaymentMetadata struct {
	Days         int    `json:"days,omitempty" bson:"days,omitempty"`
	BillingCycle string `json:"billingCycle,omitempty" bson:"billing_cycle,omitempty"`
	PlanType     string `json:"planType,omitempty" bson:"plan_type,omitempty"`
	ProductType  string `json:"productType,omitempty" bson:"product_type,omitempty"`
	ProductID    string `json:"productId,omitempty" bson:"product_id,omitempty"`
	PaymentType  string `json:"paymentType,omitempty" bson:"payment_type,omitempty"`
}

func (m *PaymentMetadata) UnmarshalJSON(b []byte) error {
	aux := struct {
		Days         json.Number `json:"days"`
		BillingCycle string      `json:"billingCycle"`
		PlanType     string      `json:"planType"`
		ProductType  string      `json:"productType"`
		ProductID    string      `json:"productId"`
		PaymentType  string      `json:"paymentType"`
	}{}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.Days != "" {
		d, err := aux.Days.Int64()
		if err != nil {
			return fmt.Errorf("metadata days %q is not numeric: %w", aux.Days, err)
		}
		m.Days = int(d)
	}
	m.BillingCycle = aux.BillingCycle
	m.PlanType = aux.PlanType
	m.ProductType = aux.ProductType
	m.ProductID = aux.ProductID
	m.PaymentType = aux.PaymentType
	return nil
}

// Value / Scan store the metadata as a JSON column in the SQL backend.
func (m PaymentMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *PaymentMetadata) Scan(src interface{}) error {
	if src == nil {
		*m = PaymentMetadata{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		if len(v) == 0 {
			*m = PaymentMetadata{}
			return nil
		}
		return json.Unmarshal(v, m)
	case string:
		if v == "" {
			*m = PaymentMetadata{}
			return nil
		}
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("unsupported payment metadata column type")
	}
}

// IsZero reports whether no metadata was recorded at creation time.
func (m PaymentMetadata) IsZero() bool {
	return m == PaymentMetadata{}
}

// Payment is one attempted payment. It is created as pending at
// payment-initiation time and flipped to completed exactly once by whichever
// reconciliation path (webhook or confirm) observes success first.
type Payment struct {
	ID             string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         string          `gorm:"type:varchar(64);not null;index" json:"user_id"`
	SubscriptionID string          `gorm:"type:varchar(64);index" json:"subscription_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency       string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status         string          `gorm:"type:varchar(20);not null;default:'pending';index:idx_payments_tx_status,priority:2;index" json:"status"`
	PaymentMethod  string          `gorm:"type:varchar(20);not null;index" json:"payment_method"`
	TransactionID  string          `gorm:"type:varchar(191);not null;index:idx_payments_tx_status,priority:1" json:"transaction_id"`
	OutTradeNo     string          `gorm:"type:varchar(64);index" json:"out_trade_no,omitempty"`
	Metadata       PaymentMetadata `gorm:"type:json" json:"metadata"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}
