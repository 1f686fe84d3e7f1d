package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bid is one accepted bid on an auction listing. Bids are append-only: once
// recorded they are never edited or withdrawn. BidID is a ULID so bids sort
// by creation time; Seq is the per-listing acceptance order.
type Bid struct {
	BidID     string    `gorm:"column:bid_id;type:varchar(26);primaryKey" json:"bid_id"`
	ListingID uuid.UUID `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	BidderID  uuid.UUID `gorm:"column:bidder_id;type:uuid;not null" json:"bidder_id"`
	Amount    float64   `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Seq       int       `gorm:"column:seq;not null" json:"seq"`
	PlacedAt  time.Time `gorm:"column:placed_at;not null" json:"placed_at"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (Bid) TableName() string {
	return "Bids"
}
