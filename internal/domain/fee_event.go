package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Fee event kinds.
const (
	FeeKindSuccessFee          = "success-fee"
	FeeKindBoosterCharge       = "booster-charge"
	FeeKindBoosterUpgradeDelta = "booster-upgrade-delta"
	FeeKindRefund              = "refund"
)

// FeeDueTerm is how long a seller has to pay a fee event.
const FeeDueTerm = 14 * 24 * time.Hour

// FeeEvent is one append-only entry of the seller fee ledger. Refunds are new
// negative-amount events linked via RefundOf, never mutations of the original.
type FeeEvent struct {
	EventID   uuid.UUID  `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	ListingID uuid.UUID  `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	SellerID  uuid.UUID  `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	Kind      string     `gorm:"column:kind;type:varchar(30);not null" json:"kind"`
	Amount    float64    `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	DueAt     time.Time  `gorm:"column:due_at;not null" json:"due_at"`
	PaidAt    *time.Time `gorm:"column:paid_at" json:"paid_at"`
	RefundOf  *uuid.UUID `gorm:"column:refund_of;type:uuid" json:"refund_of"`
	Reason    string     `gorm:"column:reason" json:"reason"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (FeeEvent) TableName() string {
	return "FeeEvents"
}

// BeforeCreate sets event_id and the 14-day due date.
func (e *FeeEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	if e.DueAt.IsZero() {
		base := e.CreatedAt
		if base.IsZero() {
			base = time.Now()
		}
		e.DueAt = base.Add(FeeDueTerm)
	}
	return nil
}
