package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FeePayment records a processed payment-provider webhook delivery for a fee
// event. The unique indexes on the provider IDs make webhook handling
// idempotent under retries.
type FeePayment struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PaymentIntentID string         `gorm:"column:payment_intent_id;uniqueIndex;not null" json:"payment_intent_id"`
	ProviderEventID string         `gorm:"column:provider_event_id;uniqueIndex;not null" json:"provider_event_id"`
	FeeEventID      uuid.UUID      `gorm:"column:fee_event_id;type:uuid;not null" json:"fee_event_id"`
	SellerID        uuid.UUID      `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	AmountPaidCents int            `gorm:"column:amount_paid_cents;not null" json:"amount_paid_cents"`
	Currency        string         `gorm:"column:currency;not null" json:"currency"`
	Status          string         `gorm:"column:status;not null" json:"status"`
	RawPayload      datatypes.JSON `gorm:"column:raw_payload;type:jsonb;not null" json:"raw_payload"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (FeePayment) TableName() string {
	return "FeePayments"
}

func (p *FeePayment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
