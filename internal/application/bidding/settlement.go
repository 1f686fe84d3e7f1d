package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"montro-backend/internal/application/auctionclock"
	"montro-backend/internal/application/fees"
	"montro-backend/internal/application/notify"
	"montro-backend/internal/domain"
	"montro-backend/internal/pkg/keylock"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SettlementOutcome describes what closing an expired auction did.
type SettlementOutcome struct {
	Listing *domain.Listing `json:"listing"`
	Winners []domain.Bid    `json:"winners"`
	Expired bool            `json:"expired"` // true when the auction ended bidless
}

// SettleExpired closes an auction whose end has passed: with bids, the top
// quantity bids each win one unit at their own price and the seller is billed
// one success fee per awarded unit; without bids the listing merely expires.
// Listings that are not yet due are skipped with a nil outcome. The operation
// holds the listing lock so it cannot race a late bid or a reactivation.
func (s *Service) SettleExpired(ctx context.Context, listingID uuid.UUID, now time.Time) (*SettlementOutcome, error) {
	release, err := s.Locks.Acquire(listingID.String(), keylock.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	var outcome *SettlementOutcome
	var soldEvents []notify.SoldEvent

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing domain.Listing
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if listing.Status != domain.ListingStatusActive || !listing.IsAuction || listing.AuctionEnd == nil {
			return nil
		}
		if !auctionclock.HasExpired(*listing.AuctionEnd, now) {
			return nil
		}

		var bids []domain.Bid
		if err := tx.Where("listing_id = ?", listingID).Order("seq ASC").Find(&bids).Error; err != nil {
			return err
		}

		prevVersion := listing.Version
		if len(bids) == 0 {
			listing.Status = domain.ListingStatusExpired
			listing.Version++
			res := tx.Model(&domain.Listing{}).
				Where("listing_id = ? AND version = ?", listingID, prevVersion).
				Updates(map[string]interface{}{"status": listing.Status, "version": listing.Version})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return keylock.ErrContention
			}
			if err := tx.Create(&domain.ListingEvent{
				ListingID: listingID,
				EventType: domain.ListingEventExpired,
			}).Error; err != nil {
				return err
			}
			outcome = &SettlementOutcome{Listing: &listing, Expired: true}
			return nil
		}

		winners := RankBids(bids, listing.Quantity)
		listing.UnitsSold += len(winners)
		if listing.UnitsSold > listing.Quantity {
			listing.UnitsSold = listing.Quantity
		}
		listing.Status = domain.ListingStatusSold
		listing.Version++
		res := tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND version = ?", listingID, prevVersion).
			Updates(map[string]interface{}{
				"status":     listing.Status,
				"units_sold": listing.UnitsSold,
				"version":    listing.Version,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return keylock.ErrContention
		}

		for _, w := range winners {
			// Discriminatory pricing: every winner pays their own bid.
			if err := fees.Record(tx, &domain.FeeEvent{
				ListingID: listing.ListingID,
				SellerID:  listing.SellerID,
				Kind:      domain.FeeKindSuccessFee,
				Amount:    s.SuccessFeeRate * w.Amount,
			}); err != nil {
				return err
			}
			eventData, _ := json.Marshal(map[string]interface{}{
				"bid_id":     w.BidID,
				"unit_price": w.Amount,
			})
			if err := tx.Create(&domain.ListingEvent{
				ListingID: listing.ListingID,
				EventType: domain.ListingEventSold,
				EventData: datatypes.JSON(eventData),
			}).Error; err != nil {
				return err
			}
			soldEvents = append(soldEvents, notify.SoldEvent{
				ListingID: listing.ListingID.String(),
				SellerID:  listing.SellerID.String(),
				BuyerID:   w.BidderID.String(),
				Price:     w.Amount,
			})
		}

		outcome = &SettlementOutcome{Listing: &listing, Winners: winners}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ev := range soldEvents {
		_ = s.Publisher.Publish(ctx, notify.QueueListingSold, ev)
	}
	return outcome, nil
}
