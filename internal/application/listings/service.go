package listings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"montro-backend/internal/application/boosters"
	"montro-backend/internal/application/fees"
	"montro-backend/internal/domain"
	"montro-backend/internal/pkg/keylock"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	DB        *gorm.DB
	PriceList boosters.PriceList
}

type CreateListingInput struct {
	SellerID        uuid.UUID
	Title           string
	Description     string
	Category        string
	Attributes      datatypes.JSON
	ImageURLs       datatypes.JSON
	Price           float64
	BuyNowPrice     *float64
	IsAuction       bool
	AuctionDuration time.Duration // auction runtime from publish; required for auctions
	Quantity        int
	Fullset         bool
	OnlyBox         bool
	OnlyPapers      bool
	OnlyAllLinks    bool
	Booster         string
	Publish         bool // publish immediately instead of keeping a draft
}

// CreateListing creates a draft listing; with Publish it activates in the
// same transaction. A booster selected at creation is validated against the
// price list and charged at the listed price in the same transaction.
func (s *Service) CreateListing(ctx context.Context, in CreateListingInput) (*domain.Listing, error) {
	if in.Quantity < 1 {
		in.Quantity = 1
	}
	booster := in.Booster
	if booster == "" {
		booster = domain.BoosterNone
	}
	listing := &domain.Listing{
		SellerID:         in.SellerID,
		Title:            in.Title,
		Description:      in.Description,
		Category:         in.Category,
		Attributes:       in.Attributes,
		ImageURLs:        in.ImageURLs,
		Price:            in.Price,
		BuyNowPrice:      in.BuyNowPrice,
		IsAuction:        in.IsAuction,
		OriginalDuration: int64(in.AuctionDuration / time.Second),
		Quantity:         in.Quantity,
		Fullset:          in.Fullset,
		OnlyBox:          in.OnlyBox,
		OnlyPapers:       in.OnlyPapers,
		OnlyAllLinks:     in.OnlyAllLinks,
		ActiveBooster:    booster,
		Status:           domain.ListingStatusDraft,
	}
	if listing.SupplyFlagCount() > 1 {
		return nil, ErrSupplyFlagConflict
	}
	if in.IsAuction && in.AuctionDuration <= 0 {
		return nil, ErrInvalidCondition
	}

	now := time.Now()
	boosterCharge := 0.0
	if booster != domain.BoosterNone {
		if s.PriceList == nil {
			return nil, ErrUnknownBooster
		}
		info, found, err := s.PriceList.Lookup(ctx, booster)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrUnknownBooster
		}
		boosterCharge = info.Price
		listing.BoosterActivatedAt = &now
	}
	if in.Publish {
		if err := s.activate(listing, now); err != nil {
			return nil, err
		}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(listing).Error; err != nil {
			return err
		}
		eventData, _ := json.Marshal(map[string]interface{}{
			"price":      listing.Price,
			"is_auction": listing.IsAuction,
			"quantity":   listing.Quantity,
			"status":     listing.Status,
			"booster":    listing.ActiveBooster,
		})
		if err := tx.Create(&domain.ListingEvent{
			ListingID: listing.ListingID,
			EventType: domain.ListingEventCreated,
			EventData: datatypes.JSON(eventData),
			ActorID:   &in.SellerID,
		}).Error; err != nil {
			return err
		}
		if boosterCharge > 0 {
			return fees.Record(tx, &domain.FeeEvent{
				ListingID: listing.ListingID,
				SellerID:  in.SellerID,
				Kind:      domain.FeeKindBoosterCharge,
				Amount:    boosterCharge,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// activate performs draft -> active in memory: sets the auction end from the
// stored duration and validates the structural publish requirements.
func (s *Service) activate(listing *domain.Listing, now time.Time) error {
	if listing.IsAuction {
		end := now.Add(time.Duration(listing.OriginalDuration) * time.Second)
		listing.AuctionEnd = &end
	}
	if err := validateForPublish(listing, now); err != nil {
		return err
	}
	listing.Status = domain.ListingStatusActive
	return nil
}

// PublishListing transitions a draft to active.
func (s *Service) PublishListing(ctx context.Context, listingID, sellerID uuid.UUID) (*domain.Listing, error) {
	var listing domain.Listing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if listing.SellerID != sellerID {
			return ErrNotOwner
		}
		if listing.Status != domain.ListingStatusDraft {
			return ErrInvalidTransition
		}
		if err := s.activate(&listing, time.Now()); err != nil {
			return err
		}
		listing.Version++
		if err := tx.Save(&listing).Error; err != nil {
			return err
		}
		eventData, _ := json.Marshal(map[string]interface{}{"auction_end": listing.AuctionEnd})
		return tx.Create(&domain.ListingEvent{
			ListingID: listing.ListingID,
			EventType: domain.ListingEventPublished,
			EventData: datatypes.JSON(eventData),
			ActorID:   &sellerID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

type EditListingInput struct {
	ListingID uuid.UUID
	SellerID  uuid.UUID
	Patch     EditPatch
}

// EditListing loads the listing, applies the validated patch and persists it
// with an optimistic version check. Locked listings can still take the
// additional-info/image-only path because ApplyEdit rejects only patches that
// touch frozen fields.
func (s *Service) EditListing(ctx context.Context, in EditListingInput) (*domain.Listing, error) {
	var merged *domain.Listing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing domain.Listing
		if err := tx.Where("listing_id = ?", in.ListingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if listing.SellerID != in.SellerID {
			return ErrNotOwner
		}
		if listing.Status != domain.ListingStatusActive && listing.Status != domain.ListingStatusDraft {
			return ErrNotEditable
		}

		var err error
		merged, err = ApplyEdit(&listing, &in.Patch)
		if err != nil {
			return err
		}

		prevVersion := merged.Version
		merged.Version++
		res := tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND version = ?", merged.ListingID, prevVersion).
			Select("*").Omit("createdAt").Updates(merged)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent writer moved the version; the caller can retry.
			return keylock.ErrContention
		}

		eventData, _ := json.Marshal(map[string]interface{}{"price": merged.Price})
		return tx.Create(&domain.ListingEvent{
			ListingID: merged.ListingID,
			EventType: domain.ListingEventUpdated,
			EventData: datatypes.JSON(eventData),
			ActorID:   &in.SellerID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// CancelListing transitions an active or draft listing to cancelled. Booster
// charges already billed are not refunded.
func (s *Service) CancelListing(ctx context.Context, listingID, sellerID uuid.UUID) (*domain.Listing, error) {
	var listing domain.Listing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if listing.SellerID != sellerID {
			return ErrNotOwner
		}
		if listing.Status != domain.ListingStatusActive && listing.Status != domain.ListingStatusDraft {
			return ErrInvalidTransition
		}
		listing.Status = domain.ListingStatusCancelled
		listing.Version++
		if err := tx.Save(&listing).Error; err != nil {
			return err
		}
		eventData, _ := json.Marshal(map[string]interface{}{"units_sold": listing.UnitsSold})
		return tx.Create(&domain.ListingEvent{
			ListingID: listing.ListingID,
			EventType: domain.ListingEventCancelled,
			EventData: datatypes.JSON(eventData),
			ActorID:   &sellerID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (s *Service) GetListingByID(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

func (s *Service) GetSellerListings(ctx context.Context, sellerID uuid.UUID) ([]domain.Listing, error) {
	var out []domain.Listing
	if err := s.DB.WithContext(ctx).Where("seller_id = ?", sellerID).Order(`"createdAt" DESC`).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) GetAllActiveListings(ctx context.Context) ([]domain.Listing, error) {
	var out []domain.Listing
	if err := s.DB.WithContext(ctx).Where("status = ?", domain.ListingStatusActive).Order(`"createdAt" DESC`).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
