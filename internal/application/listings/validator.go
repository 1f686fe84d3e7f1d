package listings

import (
	"encoding/json"
	"math"
	"time"

	"montro-backend/internal/domain"

	"gorm.io/datatypes"
)

// EditPatch is a partial update to a listing. Nil fields are left untouched.
type EditPatch struct {
	Title          *string
	Description    *string
	Price          *float64
	BuyNowPrice    *float64
	ClearBuyNow    bool
	AuctionEnd     *time.Time
	Quantity       *int
	Fullset        *bool
	OnlyBox        *bool
	OnlyPapers     *bool
	OnlyAllLinks   *bool
	AdditionalInfo *string
	Attributes     datatypes.JSON
	ImageURLs      datatypes.JSON
}

// touchesLockedFields reports whether the patch changes any field that is
// frozen once a bid exists.
func (p *EditPatch) touchesLockedFields() bool {
	return p.Price != nil || p.BuyNowPrice != nil || p.ClearBuyNow ||
		p.AuctionEnd != nil ||
		p.Fullset != nil || p.OnlyBox != nil || p.OnlyPapers != nil || p.OnlyAllLinks != nil
}

// ApplyEdit merges patch into a copy of listing and validates the result.
// It has no side effects; persisting the returned listing is the caller's
// responsibility.
func ApplyEdit(listing *domain.Listing, patch *EditPatch) (*domain.Listing, error) {
	if listing.PriceLocked && patch.touchesLockedFields() {
		return nil, ErrPriceFieldsLocked
	}

	merged := *listing

	if patch.Title != nil {
		merged.Title = *patch.Title
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
	}
	if patch.AdditionalInfo != nil {
		merged.AdditionalInfo = *patch.AdditionalInfo
	}
	if patch.Attributes != nil {
		merged.Attributes = patch.Attributes
	}
	if patch.ImageURLs != nil {
		merged.ImageURLs = patch.ImageURLs
	}
	if patch.Price != nil {
		merged.Price = *patch.Price
	}
	if patch.ClearBuyNow {
		merged.BuyNowPrice = nil
	} else if patch.BuyNowPrice != nil {
		merged.BuyNowPrice = patch.BuyNowPrice
	}
	if patch.AuctionEnd != nil {
		end := *patch.AuctionEnd
		merged.AuctionEnd = &end
	}
	if patch.Quantity != nil {
		merged.Quantity = *patch.Quantity
	}
	if patch.Fullset != nil {
		merged.Fullset = *patch.Fullset
	}
	if patch.OnlyBox != nil {
		merged.OnlyBox = *patch.OnlyBox
	}
	if patch.OnlyPapers != nil {
		merged.OnlyPapers = *patch.OnlyPapers
	}
	if patch.OnlyAllLinks != nil {
		merged.OnlyAllLinks = *patch.OnlyAllLinks
	}

	if err := validateCommercial(&merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// validateCommercial checks the commercial fields every write must uphold.
func validateCommercial(l *domain.Listing) error {
	if l.SupplyFlagCount() > 1 {
		return ErrSupplyFlagConflict
	}
	if math.IsNaN(l.Price) || l.Price <= 0 {
		return ErrInvalidCondition
	}
	if l.BuyNowPrice != nil && (math.IsNaN(*l.BuyNowPrice) || *l.BuyNowPrice <= 0) {
		return ErrInvalidCondition
	}
	if l.Quantity < 1 {
		return ErrInvalidCondition
	}
	if l.UnitsSold > l.Quantity {
		return ErrInvalidCondition
	}
	// Drafts get their auction end at publish time, so only active listings
	// must carry one.
	if l.IsAuction && l.Status == domain.ListingStatusActive && l.AuctionEnd == nil {
		return ErrInvalidCondition
	}
	if !l.IsAuction && l.AuctionEnd != nil {
		return ErrInvalidCondition
	}
	return nil
}

// validateForPublish checks the structural requirements of draft -> active.
func validateForPublish(l *domain.Listing, now time.Time) error {
	if l.Category == "" || l.Title == "" {
		return ErrMissingRequiredField
	}
	if imageCount(l.ImageURLs) < 1 {
		return ErrMissingRequiredField
	}
	if err := validateCommercial(l); err != nil {
		return err
	}
	if l.IsAuction && (l.AuctionEnd == nil || !l.AuctionEnd.After(now)) {
		return ErrInvalidCondition
	}
	return nil
}

func imageCount(raw datatypes.JSON) int {
	if len(raw) == 0 {
		return 0
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		return 0
	}
	return len(urls)
}
