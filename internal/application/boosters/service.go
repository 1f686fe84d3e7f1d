package boosters

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"montro-backend/internal/application/fees"
	"montro-backend/internal/domain"
	"montro-backend/internal/pkg/keylock"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	DB        *gorm.DB
	PriceList PriceList
	Locks     *keylock.Registry
}

// BoosterChangeOutcome reports what a ChangeBooster call did.
type BoosterChangeOutcome struct {
	Listing  *domain.Listing `json:"listing"`
	Previous string          `json:"previous"`
	Current  string          `json:"current"`
	Charge   float64         `json:"charge"`
	FeeKind  string          `json:"fee_kind,omitempty"`
}

// ChangeBooster swaps the active booster of a listing and bills the
// difference. Upgrades charge the delta, fresh activations the full price;
// downgrades and removals are free but never refunded. The call is serialized
// per listing and never touches price or bid state.
func (s *Service) ChangeBooster(ctx context.Context, listingID, actorID uuid.UUID, newCode string) (*BoosterChangeOutcome, error) {
	if newCode == "" {
		newCode = domain.BoosterNone
	}

	release, err := s.Locks.Acquire(listingID.String(), keylock.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	var outcome *BoosterChangeOutcome
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing domain.Listing
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if listing.SellerID != actorID {
			return ErrNotOwner
		}
		if listing.Status != domain.ListingStatusActive && listing.Status != domain.ListingStatusDraft {
			return ErrListingNotBoostable
		}

		// Orphaned boosters (code no longer in the catalog) keep their
		// effect but count as price 0 for further math.
		currentPrice := 0.0
		if listing.ActiveBooster != domain.BoosterNone {
			if info, found, err := s.PriceList.Lookup(ctx, listing.ActiveBooster); err != nil {
				return err
			} else if found {
				currentPrice = info.Price
			}
		}

		targetPrice := 0.0
		if newCode != domain.BoosterNone {
			info, found, err := s.PriceList.Lookup(ctx, newCode)
			if err != nil {
				return err
			}
			if !found {
				return ErrUnknownBooster
			}
			targetPrice = info.Price
		}

		previous := listing.ActiveBooster
		charge := 0.0
		feeKind := ""
		switch {
		case newCode == domain.BoosterNone:
			// Removal: free, prior charges stay billed.
		case previous == domain.BoosterNone:
			charge = targetPrice
			feeKind = domain.FeeKindBoosterCharge
		case targetPrice > currentPrice:
			charge = round2(targetPrice - currentPrice)
			feeKind = domain.FeeKindBoosterUpgradeDelta
		default:
			// Downgrade or same price: free, no refund.
		}

		now := time.Now()
		listing.ActiveBooster = newCode
		if newCode == domain.BoosterNone {
			listing.BoosterActivatedAt = nil
		} else {
			listing.BoosterActivatedAt = &now
		}
		listing.Version++
		if err := tx.Save(&listing).Error; err != nil {
			return err
		}

		if charge > 0 {
			if err := fees.Record(tx, &domain.FeeEvent{
				ListingID: listing.ListingID,
				SellerID:  listing.SellerID,
				Kind:      feeKind,
				Amount:    charge,
			}); err != nil {
				return err
			}
		}

		eventData, _ := json.Marshal(map[string]interface{}{
			"previous": previous,
			"current":  newCode,
			"charge":   charge,
		})
		if err := tx.Create(&domain.ListingEvent{
			ListingID: listing.ListingID,
			EventType: domain.ListingEventBoosterChanged,
			EventData: datatypes.JSON(eventData),
			ActorID:   &actorID,
		}).Error; err != nil {
			return err
		}

		outcome = &BoosterChangeOutcome{
			Listing:  &listing,
			Previous: previous,
			Current:  newCode,
			Charge:   charge,
			FeeKind:  feeKind,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
