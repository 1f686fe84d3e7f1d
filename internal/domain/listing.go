package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Listing lifecycle states.
const (
	ListingStatusDraft       = "draft"
	ListingStatusActive      = "active"
	ListingStatusSold        = "sold"
	ListingStatusExpired     = "expired"
	ListingStatusReactivated = "reactivated"
	ListingStatusCancelled   = "cancelled"
)

// BoosterNone is the sentinel code for a listing without an active booster.
const BoosterNone = "none"

// MaxAuctionReactivations caps automatic re-publishing of bidless auctions.
const MaxAuctionReactivations = 3

// Listing is a sellable unit: fixed-price or auction, single or multi-unit.
// Category attributes and image references are opaque to the engine.
type Listing struct {
	ListingID   uuid.UUID      `gorm:"column:listing_id;type:uuid;primaryKey" json:"listing_id"`
	SellerID    uuid.UUID      `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description"`
	Category    string         `gorm:"column:category;not null" json:"category"`
	Attributes  datatypes.JSON `gorm:"column:attributes;type:jsonb" json:"attributes"`
	ImageURLs   datatypes.JSON `gorm:"column:image_urls;type:jsonb" json:"image_urls"`

	Price            float64    `gorm:"column:price;type:decimal(18,2);not null" json:"price"`
	BuyNowPrice      *float64   `gorm:"column:buy_now_price;type:decimal(18,2)" json:"buy_now_price"`
	IsAuction        bool       `gorm:"column:is_auction;not null" json:"is_auction"`
	AuctionEnd       *time.Time `gorm:"column:auction_end" json:"auction_end"`
	OriginalDuration int64      `gorm:"column:original_duration" json:"original_duration"` // seconds; used to recompute auction_end on reactivation
	Quantity         int        `gorm:"column:quantity;not null;default:1" json:"quantity"`
	UnitsSold        int        `gorm:"column:units_sold;not null;default:0" json:"units_sold"`

	// Supply flags: at most one may be true at a time.
	Fullset      bool `gorm:"column:fullset;not null;default:false" json:"fullset"`
	OnlyBox      bool `gorm:"column:only_box;not null;default:false" json:"only_box"`
	OnlyPapers   bool `gorm:"column:only_papers;not null;default:false" json:"only_papers"`
	OnlyAllLinks bool `gorm:"column:only_all_links;not null;default:false" json:"only_all_links"`

	ActiveBooster      string     `gorm:"column:active_booster;type:varchar(40);not null;default:'none'" json:"active_booster"`
	BoosterActivatedAt *time.Time `gorm:"column:booster_activated_at" json:"booster_activated_at"`

	Status            string `gorm:"column:status;type:varchar(20);not null;default:'draft';index" json:"status"`
	ReactivationCount int    `gorm:"column:reactivation_count;not null;default:0" json:"reactivation_count"`
	PriceLocked       bool   `gorm:"column:price_locked;not null;default:false" json:"price_locked"`

	AdditionalInfo string `gorm:"column:additional_info" json:"additional_info"`

	// Version is the optimistic-concurrency token; every listing write inside
	// a critical section bumps it.
	Version int `gorm:"column:version;not null;default:0" json:"version"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Listing) TableName() string {
	return "Listings"
}

// BeforeCreate sets listing_id if not already set (DBs without default uuid).
func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ListingID == uuid.Nil {
		l.ListingID = uuid.New()
	}
	if l.ActiveBooster == "" {
		l.ActiveBooster = BoosterNone
	}
	return nil
}

// SupplyFlagCount returns how many of the mutually-exclusive supply flags are set.
func (l *Listing) SupplyFlagCount() int {
	n := 0
	for _, f := range []bool{l.Fullset, l.OnlyBox, l.OnlyPapers, l.OnlyAllLinks} {
		if f {
			n++
		}
	}
	return n
}

// UnitsRemaining returns the unsold unit count.
func (l *Listing) UnitsRemaining() int {
	if r := l.Quantity - l.UnitsSold; r > 0 {
		return r
	}
	return 0
}
