package listings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"montro-backend/internal/application/boosters"
	"montro-backend/internal/domain"
	"montro-backend/internal/pkg/keylock"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupServiceTest(t *testing.T) *Service {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Listing{}, &domain.ListingEvent{}, &domain.Booster{}, &domain.FeeEvent{},
	))
	require.NoError(t, db.Create([]domain.Booster{
		{Code: "turbo", Name: "Turbo", Price: 15},
		{Code: "super", Name: "Super", Price: 25},
	}).Error)
	return &Service{DB: db, PriceList: &boosters.DBPriceList{DB: db}}
}

func baseInput(sellerID uuid.UUID) CreateListingInput {
	return CreateListingInput{
		SellerID:        sellerID,
		Title:           "Speedmaster Professional",
		Category:        "watches",
		ImageURLs:       datatypes.JSON(`["https://img.example/1.jpg"]`),
		Price:           3500,
		IsAuction:       true,
		AuctionDuration: 72 * time.Hour,
		Quantity:        1,
	}
}

func TestCreateListing_Draft(t *testing.T) {
	s := setupServiceTest(t)
	seller := uuid.New()

	listing, err := s.CreateListing(context.Background(), baseInput(seller))
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusDraft, listing.Status)
	assert.Nil(t, listing.AuctionEnd)
	assert.Equal(t, domain.BoosterNone, listing.ActiveBooster)
	assert.Equal(t, int64(72*3600), listing.OriginalDuration)

	var ev domain.ListingEvent
	require.NoError(t, s.DB.Where("listing_id = ?", listing.ListingID).First(&ev).Error)
	assert.Equal(t, domain.ListingEventCreated, ev.EventType)
}

func TestCreateListing_PublishImmediately(t *testing.T) {
	s := setupServiceTest(t)
	in := baseInput(uuid.New())
	in.Publish = true

	listing, err := s.CreateListing(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, listing.Status)
	require.NotNil(t, listing.AuctionEnd)
	assert.WithinDuration(t, time.Now().Add(72*time.Hour), *listing.AuctionEnd, 5*time.Second)
}

func TestCreateListing_SupplyFlagConflict(t *testing.T) {
	s := setupServiceTest(t)
	in := baseInput(uuid.New())
	in.Fullset = true
	in.OnlyBox = true
	_, err := s.CreateListing(context.Background(), in)
	assert.ErrorIs(t, err, ErrSupplyFlagConflict)
}

func TestCreateListing_AuctionNeedsDuration(t *testing.T) {
	s := setupServiceTest(t)
	in := baseInput(uuid.New())
	in.AuctionDuration = 0
	_, err := s.CreateListing(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidCondition)
}

func TestPublishListing(t *testing.T) {
	s := setupServiceTest(t)
	seller := uuid.New()
	listing, err := s.CreateListing(context.Background(), baseInput(seller))
	require.NoError(t, err)

	published, err := s.PublishListing(context.Background(), listing.ListingID, seller)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, published.Status)
	require.NotNil(t, published.AuctionEnd)

	// Publishing twice is an invalid transition.
	_, err = s.PublishListing(context.Background(), listing.ListingID, seller)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPublishListing_NotOwner(t *testing.T) {
	s := setupServiceTest(t)
	listing, err := s.CreateListing(context.Background(), baseInput(uuid.New()))
	require.NoError(t, err)

	_, err = s.PublishListing(context.Background(), listing.ListingID, uuid.New())
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestEditListing_PriceBeforeLock(t *testing.T) {
	s := setupServiceTest(t)
	seller := uuid.New()
	listing, err := s.CreateListing(context.Background(), baseInput(seller))
	require.NoError(t, err)

	newPrice := 3900.0
	edited, err := s.EditListing(context.Background(), EditListingInput{
		ListingID: listing.ListingID,
		SellerID:  seller,
		Patch:     EditPatch{Price: &newPrice},
	})
	require.NoError(t, err)
	assert.Equal(t, 3900.0, edited.Price)
	assert.Equal(t, listing.Version+1, edited.Version)
}

func TestEditListing_PriceAfterLock(t *testing.T) {
	s := setupServiceTest(t)
	seller := uuid.New()
	in := baseInput(seller)
	in.Publish = true
	listing, err := s.CreateListing(context.Background(), in)
	require.NoError(t, err)
	require.NoError(t, s.DB.Model(&domain.Listing{}).
		Where("listing_id = ?", listing.ListingID).
		Update("price_locked", true).Error)

	newPrice := 3900.0
	_, err = s.EditListing(context.Background(), EditListingInput{
		ListingID: listing.ListingID,
		SellerID:  seller,
		Patch:     EditPatch{Price: &newPrice},
	})
	assert.ErrorIs(t, err, ErrPriceFieldsLocked)

	// Descriptive edits still go through on a locked listing.
	info := "Includes extract of the archives"
	edited, err := s.EditListing(context.Background(), EditListingInput{
		ListingID: listing.ListingID,
		SellerID:  seller,
		Patch:     EditPatch{AdditionalInfo: &info},
	})
	require.NoError(t, err)
	assert.Equal(t, info, edited.AdditionalInfo)
	assert.Equal(t, 3500.0, edited.Price)
}

func TestCancelListing(t *testing.T) {
	s := setupServiceTest(t)
	seller := uuid.New()
	listing, err := s.CreateListing(context.Background(), baseInput(seller))
	require.NoError(t, err)

	cancelled, err := s.CancelListing(context.Background(), listing.ListingID, seller)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusCancelled, cancelled.Status)

	// Cancelled is terminal.
	_, err = s.CancelListing(context.Background(), listing.ListingID, seller)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.PublishListing(context.Background(), listing.ListingID, seller)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGetAllActiveListings(t *testing.T) {
	s := setupServiceTest(t)
	seller := uuid.New()
	in := baseInput(seller)
	in.Publish = true
	_, err := s.CreateListing(context.Background(), in)
	require.NoError(t, err)
	_, err = s.CreateListing(context.Background(), baseInput(seller)) // stays draft
	require.NoError(t, err)

	active, err := s.GetAllActiveListings(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)

	mine, err := s.GetSellerListings(context.Background(), seller)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestCreateListing_BoosterBilledAtCreation(t *testing.T) {
	s := setupServiceTest(t)
	seller := uuid.New()
	in := baseInput(seller)
	in.Booster = "turbo"
	in.Publish = true

	listing, err := s.CreateListing(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "turbo", listing.ActiveBooster)
	require.NotNil(t, listing.BoosterActivatedAt)

	var charges []domain.FeeEvent
	require.NoError(t, s.DB.Where("listing_id = ?", listing.ListingID).Find(&charges).Error)
	require.Len(t, charges, 1)
	assert.Equal(t, domain.FeeKindBoosterCharge, charges[0].Kind)
	assert.Equal(t, 15.0, charges[0].Amount)
	assert.Equal(t, seller, charges[0].SellerID)
}

func TestCreateListing_UnknownBoosterRejected(t *testing.T) {
	s := setupServiceTest(t)
	in := baseInput(uuid.New())
	in.Booster = "mega"

	_, err := s.CreateListing(context.Background(), in)
	assert.ErrorIs(t, err, ErrUnknownBooster)

	var count int64
	require.NoError(t, s.DB.Model(&domain.Listing{}).Count(&count).Error)
	assert.Zero(t, count)
}

// A booster picked at creation plus a later upgrade must cost exactly the
// top tier's list price.
func TestCreateListing_BoosterThenUpgradeTotalsListPrice(t *testing.T) {
	s := setupServiceTest(t)
	seller := uuid.New()
	in := baseInput(seller)
	in.Booster = "turbo"
	listing, err := s.CreateListing(context.Background(), in)
	require.NoError(t, err)

	boosterSvc := &boosters.Service{DB: s.DB, PriceList: s.PriceList, Locks: keylock.New()}
	outcome, err := boosterSvc.ChangeBooster(context.Background(), listing.ListingID, seller, "super")
	require.NoError(t, err)
	assert.Equal(t, 10.0, outcome.Charge)

	var total float64
	require.NoError(t, s.DB.Model(&domain.FeeEvent{}).
		Where("seller_id = ?", seller).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error)
	assert.Equal(t, 25.0, total)
}

func TestEditListing_VersionConflictIsRetryable(t *testing.T) {
	s := setupServiceTest(t)
	seller := uuid.New()
	listing, err := s.CreateListing(context.Background(), baseInput(seller))
	require.NoError(t, err)

	// Move the version from under the edit right before its update runs,
	// as a concurrent writer on another instance would.
	interfered := false
	require.NoError(t, s.DB.Callback().Update().Before("gorm:update").Register("test_concurrent_bump", func(tx *gorm.DB) {
		if interfered {
			return
		}
		interfered = true
		tx.Session(&gorm.Session{NewDB: true}).
			Exec(`UPDATE "Listings" SET version = version + 1 WHERE listing_id = ?`, listing.ListingID)
	}))

	newPrice := 3600.0
	_, err = s.EditListing(context.Background(), EditListingInput{
		ListingID: listing.ListingID,
		SellerID:  seller,
		Patch:     EditPatch{Price: &newPrice},
	})
	assert.ErrorIs(t, err, keylock.ErrContention)
}
