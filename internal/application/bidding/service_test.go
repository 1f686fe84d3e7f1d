package bidding

import (
	"context"
	"testing"
	"time"

	"montro-backend/internal/application/notify"
	"montro-backend/internal/domain"
	"montro-backend/internal/pkg/keylock"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupBiddingTest(t *testing.T) *Service {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Listing{}, &domain.Bid{}, &domain.FeeEvent{}, &domain.ListingEvent{},
	))
	return &Service{
		DB:             db,
		Locks:          keylock.New(),
		Publisher:      notify.Nop{},
		SuccessFeeRate: 0.05,
	}
}

func seedAuction(t *testing.T, s *Service, price float64, quantity int, endIn time.Duration) *domain.Listing {
	end := time.Now().Add(endIn)
	listing := &domain.Listing{
		SellerID:   uuid.New(),
		Title:      "GMT-Master II",
		Category:   "watches",
		Price:      price,
		IsAuction:  true,
		AuctionEnd: &end,
		Quantity:   quantity,
		Status:     domain.ListingStatusActive,
	}
	require.NoError(t, s.DB.Create(listing).Error)
	return listing
}

func seedFixedPrice(t *testing.T, s *Service, price float64, quantity int) *domain.Listing {
	listing := &domain.Listing{
		SellerID: uuid.New(),
		Title:    "Seamaster 300",
		Category: "watches",
		Price:    price,
		Quantity: quantity,
		Status:   domain.ListingStatusActive,
	}
	require.NoError(t, s.DB.Create(listing).Error)
	return listing
}

func TestPlaceBid_FirstBidLocksPrice(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 100, 1, 48*time.Hour)

	receipt, err := s.PlaceBid(context.Background(), listing.ListingID, uuid.New(), 100)
	require.NoError(t, err)
	assert.True(t, receipt.PriceLocked)
	assert.False(t, receipt.Extended)
	assert.Equal(t, 1, receipt.Bid.Seq)
	assert.Len(t, receipt.Bid.BidID, 26)

	var stored domain.Listing
	require.NoError(t, s.DB.Where("listing_id = ?", listing.ListingID).First(&stored).Error)
	assert.True(t, stored.PriceLocked)
	assert.Equal(t, listing.Version+1, stored.Version)
}

func TestPlaceBid_FirstBidBelowStartingPrice(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 100, 1, 48*time.Hour)

	_, err := s.PlaceBid(context.Background(), listing.ListingID, uuid.New(), 99.99)
	assert.ErrorIs(t, err, ErrBidTooLow)
}

func TestPlaceBid_StrictlyIncreasing(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 100, 1, 48*time.Hour)

	_, err := s.PlaceBid(context.Background(), listing.ListingID, uuid.New(), 150)
	require.NoError(t, err)

	// Equal amounts are rejected, not tie-broken.
	_, err = s.PlaceBid(context.Background(), listing.ListingID, uuid.New(), 150)
	assert.ErrorIs(t, err, ErrBidTooLow)

	receipt, err := s.PlaceBid(context.Background(), listing.ListingID, uuid.New(), 150.01)
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.Bid.Seq)
}

func TestPlaceBid_SelfBid(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 100, 1, 48*time.Hour)

	_, err := s.PlaceBid(context.Background(), listing.ListingID, listing.SellerID, 100)
	assert.ErrorIs(t, err, ErrSelfBid)
}

func TestPlaceBid_EndedAuction(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 100, 1, -time.Minute)

	_, err := s.PlaceBid(context.Background(), listing.ListingID, uuid.New(), 100)
	assert.ErrorIs(t, err, ErrAuctionEnded)
}

func TestPlaceBid_FixedPriceRejected(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedFixedPrice(t, s, 100, 1)

	_, err := s.PlaceBid(context.Background(), listing.ListingID, uuid.New(), 100)
	assert.ErrorIs(t, err, ErrNotAuction)
}

func TestPlaceBid_AntiSnipingExtension(t *testing.T) {
	s := setupBiddingTest(t)
	// Ends in one minute; a bid now lands inside the 3-minute window.
	listing := seedAuction(t, s, 100, 1, time.Minute)

	receipt, err := s.PlaceBid(context.Background(), listing.ListingID, uuid.New(), 100)
	require.NoError(t, err)
	assert.True(t, receipt.Extended)
	assert.WithinDuration(t, time.Now().Add(3*time.Minute), receipt.AuctionEnd, 5*time.Second)

	var stored domain.Listing
	require.NoError(t, s.DB.Where("listing_id = ?", listing.ListingID).First(&stored).Error)
	require.NotNil(t, stored.AuctionEnd)
	assert.WithinDuration(t, receipt.AuctionEnd, *stored.AuctionEnd, time.Second)

	var events []domain.ListingEvent
	require.NoError(t, s.DB.Where("listing_id = ? AND event_type = ?", listing.ListingID, domain.ListingEventExtended).Find(&events).Error)
	assert.Len(t, events, 1)
}

func TestPlaceBid_NoExtensionOutsideWindow(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 100, 1, 48*time.Hour)

	receipt, err := s.PlaceBid(context.Background(), listing.ListingID, uuid.New(), 100)
	require.NoError(t, err)
	assert.False(t, receipt.Extended)
	assert.WithinDuration(t, *listing.AuctionEnd, receipt.AuctionEnd, time.Second)
}

func TestBuyNow_MultiUnit(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedFixedPrice(t, s, 200, 2)

	first, err := s.BuyNow(context.Background(), listing.ListingID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, first.UnitsSold)
	assert.Equal(t, domain.ListingStatusActive, first.Status)

	second, err := s.BuyNow(context.Background(), listing.ListingID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 2, second.UnitsSold)
	assert.Equal(t, domain.ListingStatusSold, second.Status)

	_, err = s.BuyNow(context.Background(), listing.ListingID, uuid.New())
	assert.ErrorIs(t, err, ErrListingNotActive)

	// One success fee per sold unit.
	var fees []domain.FeeEvent
	require.NoError(t, s.DB.Where("listing_id = ?", listing.ListingID).Find(&fees).Error)
	require.Len(t, fees, 2)
	for _, f := range fees {
		assert.Equal(t, domain.FeeKindSuccessFee, f.Kind)
		assert.Equal(t, 10.0, f.Amount)
		assert.WithinDuration(t, time.Now().Add(domain.FeeDueTerm), f.DueAt, 5*time.Second)
	}
}

func TestBuyNow_UsesBuyNowPrice(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedFixedPrice(t, s, 200, 1)
	bn := 250.0
	require.NoError(t, s.DB.Model(&domain.Listing{}).
		Where("listing_id = ?", listing.ListingID).
		Update("buy_now_price", bn).Error)

	_, err := s.BuyNow(context.Background(), listing.ListingID, uuid.New())
	require.NoError(t, err)

	var fee domain.FeeEvent
	require.NoError(t, s.DB.Where("listing_id = ?", listing.ListingID).First(&fee).Error)
	assert.Equal(t, 12.5, fee.Amount)
}

func TestBuyNow_AuctionRejected(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 100, 1, 48*time.Hour)

	_, err := s.BuyNow(context.Background(), listing.ListingID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFixedPrice)
}

func TestGetListingBids(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 100, 1, 48*time.Hour)

	bids, minimum, err := s.GetListingBids(context.Background(), listing.ListingID)
	require.NoError(t, err)
	assert.Empty(t, bids)
	assert.Equal(t, 100.0, minimum)

	_, err = s.PlaceBid(context.Background(), listing.ListingID, uuid.New(), 130)
	require.NoError(t, err)

	bids, minimum, err = s.GetListingBids(context.Background(), listing.ListingID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, 130.01, minimum)
}

func TestSettleExpired_Bidless(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 100, 1, -time.Minute)

	outcome, err := s.SettleExpired(context.Background(), listing.ListingID, time.Now())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Expired)
	assert.Equal(t, domain.ListingStatusExpired, outcome.Listing.Status)

	var fees []domain.FeeEvent
	require.NoError(t, s.DB.Where("listing_id = ?", listing.ListingID).Find(&fees).Error)
	assert.Empty(t, fees)
}

func TestSettleExpired_DiscriminatoryAward(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 10, 2, time.Hour)

	bidders := []struct {
		id     uuid.UUID
		amount float64
	}{
		{uuid.New(), 50}, {uuid.New(), 80}, {uuid.New(), 90},
	}
	// Strictly increasing amounts so all three are accepted.
	for _, b := range bidders {
		_, err := s.PlaceBid(context.Background(), listing.ListingID, b.id, b.amount)
		require.NoError(t, err)
	}

	outcome, err := s.SettleExpired(context.Background(), listing.ListingID, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.False(t, outcome.Expired)
	assert.Equal(t, domain.ListingStatusSold, outcome.Listing.Status)
	assert.Equal(t, 2, outcome.Listing.UnitsSold)

	require.Len(t, outcome.Winners, 2)
	assert.Equal(t, 90.0, outcome.Winners[0].Amount)
	assert.Equal(t, 80.0, outcome.Winners[1].Amount)

	// Each winner pays their own bid; the seller owes one fee per unit.
	var fees []domain.FeeEvent
	require.NoError(t, s.DB.Where("listing_id = ?", listing.ListingID).Order("amount ASC").Find(&fees).Error)
	require.Len(t, fees, 2)
	assert.Equal(t, 4.0, fees[0].Amount) // 5% of 80
	assert.Equal(t, 4.5, fees[1].Amount) // 5% of 90
}

func TestSettleExpired_NotDueIsSkipped(t *testing.T) {
	s := setupBiddingTest(t)
	listing := seedAuction(t, s, 100, 1, time.Hour)

	outcome, err := s.SettleExpired(context.Background(), listing.ListingID, time.Now())
	require.NoError(t, err)
	assert.Nil(t, outcome)

	var stored domain.Listing
	require.NoError(t, s.DB.Where("listing_id = ?", listing.ListingID).First(&stored).Error)
	assert.Equal(t, domain.ListingStatusActive, stored.Status)
}
