package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Listing event types.
const (
	ListingEventCreated        = "CREATED"
	ListingEventUpdated        = "UPDATED"
	ListingEventPublished      = "PUBLISHED"
	ListingEventBidPlaced      = "BID_PLACED"
	ListingEventExtended       = "EXTENDED"
	ListingEventSold           = "SOLD"
	ListingEventExpired        = "EXPIRED"
	ListingEventReactivated    = "REACTIVATED"
	ListingEventCancelled      = "CANCELLED"
	ListingEventBoosterChanged = "BOOSTER_CHANGED"
)

// ListingEvent is the audit trail of a listing's lifecycle.
type ListingEvent struct {
	EventID   uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	ListingID uuid.UUID      `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	EventType string         `gorm:"column:event_type;type:varchar(30);not null" json:"event_type"`
	EventData datatypes.JSON `gorm:"column:event_data;type:jsonb" json:"event_data"`
	ActorID   *uuid.UUID     `gorm:"column:actor_id;type:uuid" json:"actor_id"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (ListingEvent) TableName() string {
	return "ListingEvents"
}

func (e *ListingEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
