package bidding

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"montro-backend/internal/application/auctionclock"
	"montro-backend/internal/application/fees"
	"montro-backend/internal/application/notify"
	"montro-backend/internal/domain"
	"montro-backend/internal/pkg/keylock"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	DB        *gorm.DB
	Locks     *keylock.Registry
	Publisher notify.Publisher
	// SuccessFeeRate is the fraction of each sale price billed to the seller.
	SuccessFeeRate float64
}

// BidReceipt is returned to a bidder whose bid was accepted.
type BidReceipt struct {
	Bid         *domain.Bid `json:"bid"`
	AuctionEnd  time.Time   `json:"auction_end"`
	Extended    bool        `json:"extended"`
	PriceLocked bool        `json:"price_locked"`
}

// PlaceBid validates and records a bid. The whole validate-then-commit runs
// under the listing's lock so two bids can never both be accepted as highest,
// and the anti-sniping extension plus the price-lock flip commit atomically
// with the bid itself.
func (s *Service) PlaceBid(ctx context.Context, listingID, bidderID uuid.UUID, amount float64) (*BidReceipt, error) {
	release, err := s.Locks.Acquire(listingID.String(), keylock.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	now := time.Now()
	var receipt *BidReceipt
	var outbid []notify.OutbidEvent

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing domain.Listing
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if listing.Status != domain.ListingStatusActive {
			return ErrListingNotActive
		}
		if !listing.IsAuction || listing.AuctionEnd == nil {
			return ErrNotAuction
		}
		if auctionclock.HasExpired(*listing.AuctionEnd, now) {
			return ErrAuctionEnded
		}
		if listing.SellerID == bidderID {
			return ErrSelfBid
		}

		var bids []domain.Bid
		if err := tx.Where("listing_id = ?", listingID).Order("seq ASC").Find(&bids).Error; err != nil {
			return err
		}
		// First bid must reach the starting price; later bids must strictly
		// exceed the current highest, equal amounts are rejected.
		if len(bids) == 0 {
			if amount < listing.Price {
				return ErrBidTooLow
			}
		} else if amount <= HighestAmount(bids) {
			return ErrBidTooLow
		}

		prevWinners := winnerSet(RankBids(bids, listing.Quantity))

		bid := &domain.Bid{
			BidID:     newBidID(),
			ListingID: listingID,
			BidderID:  bidderID,
			Amount:    round2(amount),
			Seq:       len(bids) + 1,
			PlacedAt:  now,
		}
		if err := tx.Create(bid).Error; err != nil {
			return err
		}

		// Extension check before finalizing the receipt; the bid keeps its
		// original timestamp, only auction_end moves.
		newEnd := auctionclock.CheckExtension(*listing.AuctionEnd, now)
		extended := newEnd.After(*listing.AuctionEnd)

		prevVersion := listing.Version
		listing.AuctionEnd = &newEnd
		listing.PriceLocked = true
		listing.Version++
		res := tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND version = ?", listingID, prevVersion).
			Updates(map[string]interface{}{
				"auction_end":  newEnd,
				"price_locked": true,
				"version":      listing.Version,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return keylock.ErrContention
		}

		eventData, _ := json.Marshal(map[string]interface{}{
			"bid_id": bid.BidID,
			"amount": bid.Amount,
			"seq":    bid.Seq,
		})
		if err := tx.Create(&domain.ListingEvent{
			ListingID: listingID,
			EventType: domain.ListingEventBidPlaced,
			EventData: datatypes.JSON(eventData),
			ActorID:   &bidderID,
		}).Error; err != nil {
			return err
		}
		if extended {
			extData, _ := json.Marshal(map[string]interface{}{"new_auction_end": newEnd})
			if err := tx.Create(&domain.ListingEvent{
				ListingID: listingID,
				EventType: domain.ListingEventExtended,
				EventData: datatypes.JSON(extData),
			}).Error; err != nil {
				return err
			}
		}

		// Bidders who just fell out of the winner set get an outbid notice.
		newWinners := winnerSet(RankBids(append(bids, *bid), listing.Quantity))
		for bidder := range prevWinners {
			if _, still := newWinners[bidder]; !still {
				outbid = append(outbid, notify.OutbidEvent{
					ListingID:  listingID.String(),
					BidderID:   bidder.String(),
					NewHighest: bid.Amount,
					At:         now,
				})
			}
		}

		receipt = &BidReceipt{
			Bid:         bid,
			AuctionEnd:  newEnd,
			Extended:    extended,
			PriceLocked: true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ev := range outbid {
		_ = s.Publisher.Publish(ctx, notify.QueueOutbid, ev)
	}
	return receipt, nil
}

// BuyNow purchases one unit of a fixed-price listing at the buy-now price
// (falling back to the listing price) and bills the seller's success fee in
// the same transaction.
func (s *Service) BuyNow(ctx context.Context, listingID, buyerID uuid.UUID) (*domain.Listing, error) {
	release, err := s.Locks.Acquire(listingID.String(), keylock.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	var listing domain.Listing
	var sold *notify.SoldEvent

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if listing.Status != domain.ListingStatusActive {
			return ErrListingNotActive
		}
		if listing.IsAuction {
			return ErrNotFixedPrice
		}
		if listing.SellerID == buyerID {
			return ErrSelfBid
		}
		if listing.UnitsRemaining() < 1 {
			return ErrQuantityExhausted
		}

		unitPrice := listing.Price
		if listing.BuyNowPrice != nil {
			unitPrice = *listing.BuyNowPrice
		}

		prevVersion := listing.Version
		listing.UnitsSold++
		if listing.UnitsRemaining() == 0 {
			listing.Status = domain.ListingStatusSold
		}
		listing.Version++
		res := tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND version = ?", listingID, prevVersion).
			Updates(map[string]interface{}{
				"units_sold": listing.UnitsSold,
				"status":     listing.Status,
				"version":    listing.Version,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return keylock.ErrContention
		}

		if err := fees.Record(tx, &domain.FeeEvent{
			ListingID: listing.ListingID,
			SellerID:  listing.SellerID,
			Kind:      domain.FeeKindSuccessFee,
			Amount:    s.SuccessFeeRate * unitPrice,
		}); err != nil {
			return err
		}

		eventData, _ := json.Marshal(map[string]interface{}{
			"buyer_id":   buyerID,
			"unit_price": unitPrice,
			"units_sold": listing.UnitsSold,
		})
		if err := tx.Create(&domain.ListingEvent{
			ListingID: listing.ListingID,
			EventType: domain.ListingEventSold,
			EventData: datatypes.JSON(eventData),
			ActorID:   &buyerID,
		}).Error; err != nil {
			return err
		}

		sold = &notify.SoldEvent{
			ListingID: listing.ListingID.String(),
			SellerID:  listing.SellerID.String(),
			BuyerID:   buyerID.String(),
			Price:     unitPrice,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sold != nil {
		_ = s.Publisher.Publish(ctx, notify.QueueListingSold, *sold)
	}
	return &listing, nil
}

// GetListingBids returns the full bid log of a listing in acceptance order,
// plus the current minimum acceptable amount.
func (s *Service) GetListingBids(ctx context.Context, listingID uuid.UUID) ([]domain.Bid, float64, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrListingNotFound
		}
		return nil, 0, err
	}
	var bids []domain.Bid
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).Order("seq ASC").Find(&bids).Error; err != nil {
		return nil, 0, err
	}
	return bids, MinimumNextBid(&listing, bids), nil
}

func winnerSet(winners []domain.Bid) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(winners))
	for _, w := range winners {
		set[w.BidderID] = struct{}{}
	}
	return set
}

func newBidID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Now(), entropy).String()
}
