// Package reactivation re-publishes expired, bidless listings and settles
// due auctions on a periodic tick. The tick cadence comes from an external
// scheduler; this service is stateless between ticks.
package reactivation

import (
	"context"
	"encoding/json"
	"time"

	"montro-backend/internal/application/bidding"
	"montro-backend/internal/application/boosters"
	"montro-backend/internal/application/fees"
	"montro-backend/internal/application/notify"
	"montro-backend/internal/domain"
	"montro-backend/internal/pkg/keylock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Scheduler struct {
	DB        *gorm.DB
	Locks     *keylock.Registry
	PriceList boosters.PriceList
	Publisher notify.Publisher
	Bids      *bidding.Service
	// Batch caps how many listings one tick settles and reactivates.
	Batch int
}

// ReactivationEvent reports one re-published listing. Reactivation creates a
// fresh listing instance so the old bid log never leaks into the new auction
// and the price lock starts clean.
type ReactivationEvent struct {
	OldListingID      uuid.UUID  `json:"old_listing_id"`
	NewListingID      uuid.UUID  `json:"new_listing_id"`
	SellerID          uuid.UUID  `json:"seller_id"`
	ReactivationCount int        `json:"reactivation_count"`
	AuctionEnd        *time.Time `json:"auction_end"`
	BoosterCharge     float64    `json:"booster_charge"`
}

// Tick settles due auctions, reactivates eligible listings and publishes
// overdue-fee reminders. Each listing is its own atomic unit: a failure is
// logged and skipped, and the batch can be cancelled between listings via
// ctx without leaving partial mutations.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]ReactivationEvent, error) {
	if err := s.settleDue(ctx, now); err != nil {
		return nil, err
	}
	events, err := s.reactivateEligible(ctx, now)
	if err != nil {
		return events, err
	}
	return events, s.publishOverdue(ctx, now)
}

// publishOverdue emits one reminder per seller, for that seller's oldest
// unpaid fee past its due date.
func (s *Scheduler) publishOverdue(ctx context.Context, now time.Time) error {
	var overdue []domain.FeeEvent
	err := s.DB.WithContext(ctx).
		Where("paid_at IS NULL AND amount > 0 AND due_at < ?", now).
		Order("due_at ASC").
		Limit(s.batch()).
		Find(&overdue).Error
	if err != nil {
		return err
	}
	notified := make(map[uuid.UUID]struct{}, len(overdue))
	for _, ev := range overdue {
		if _, done := notified[ev.SellerID]; done {
			continue
		}
		notified[ev.SellerID] = struct{}{}
		pubErr := s.Publisher.Publish(ctx, notify.QueueFeesOverdue, notify.OverdueEvent{
			SellerID:       ev.SellerID.String(),
			FeeEventID:     ev.EventID.String(),
			Amount:         ev.Amount,
			OverdueSeconds: int64(now.Sub(ev.DueAt).Seconds()),
		})
		if pubErr != nil {
			log.Warn().Err(pubErr).Str("seller_id", ev.SellerID.String()).Msg("reactivation: overdue reminder publish failed")
		}
	}
	return nil
}

// settleDue closes active auctions whose end has passed. Bidless auctions
// become expired (and thereby reactivation candidates), auctions with bids
// are awarded.
func (s *Scheduler) settleDue(ctx context.Context, now time.Time) error {
	var due []domain.Listing
	err := s.DB.WithContext(ctx).
		Where("status = ? AND is_auction = ? AND auction_end <= ?", domain.ListingStatusActive, true, now).
		Limit(s.batch()).
		Find(&due).Error
	if err != nil {
		return err
	}
	for _, l := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Bids.SettleExpired(ctx, l.ListingID, now); err != nil {
			log.Warn().Err(err).Str("listing_id", l.ListingID.String()).Msg("reactivation: settlement failed, skipping")
		}
	}
	return nil
}

func (s *Scheduler) reactivateEligible(ctx context.Context, now time.Time) ([]ReactivationEvent, error) {
	var candidates []domain.Listing
	err := s.DB.WithContext(ctx).
		Where("status = ? AND (is_auction = ? OR reactivation_count < ?)",
			domain.ListingStatusExpired, false, domain.MaxAuctionReactivations).
		Or("status = ? AND units_sold >= 1 AND units_sold < quantity", domain.ListingStatusSold).
		Limit(s.batch()).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	var events []ReactivationEvent
	for _, l := range candidates {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		ev, err := s.reactivateOne(ctx, l.ListingID, now)
		if err != nil {
			log.Warn().Err(err).Str("listing_id", l.ListingID.String()).Msg("reactivation: failed, skipping")
			continue
		}
		if ev != nil {
			events = append(events, *ev)
			_ = s.Publisher.Publish(ctx, notify.QueueReactivated, notify.ReactivatedEvent{
				ListingID:         ev.NewListingID.String(),
				SellerID:          ev.SellerID.String(),
				ReactivationCount: ev.ReactivationCount,
				NewAuctionEnd:     derefTime(ev.AuctionEnd),
				BoosterCharge:     ev.BoosterCharge,
			})
		}
	}
	return events, nil
}

// reactivateOne re-publishes a single listing under its lock. Eligibility is
// re-checked inside the transaction so a listing cannot be reactivated twice
// in one tick or race a concurrent settlement.
func (s *Scheduler) reactivateOne(ctx context.Context, listingID uuid.UUID, now time.Time) (*ReactivationEvent, error) {
	release, err := s.Locks.Acquire(listingID.String(), keylock.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	var event *ReactivationEvent
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old domain.Listing
		if err := tx.Where("listing_id = ?", listingID).First(&old).Error; err != nil {
			return err
		}

		eligible, remainder := eligibility(&old)
		if !eligible {
			return nil
		}

		if old.IsAuction && old.Status == domain.ListingStatusExpired {
			var bidCount int64
			if err := tx.Model(&domain.Bid{}).Where("listing_id = ?", listingID).Count(&bidCount).Error; err != nil {
				return err
			}
			if bidCount > 0 {
				return nil
			}
		}

		// Booster selection carries over; it is re-priced at the current
		// list price, not the price at original creation.
		boosterCharge := 0.0
		booster := old.ActiveBooster
		if booster != domain.BoosterNone {
			if info, found, err := s.PriceList.Lookup(ctx, booster); err != nil {
				return err
			} else if found {
				boosterCharge = info.Price
			}
		}

		fresh := newInstance(&old, remainder, now)
		if err := tx.Create(fresh).Error; err != nil {
			return err
		}

		prevVersion := old.Version
		old.Status = domain.ListingStatusReactivated
		old.Version++
		res := tx.Model(&domain.Listing{}).
			Where("listing_id = ? AND version = ?", old.ListingID, prevVersion).
			Updates(map[string]interface{}{"status": old.Status, "version": old.Version})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return keylock.ErrContention
		}

		if boosterCharge > 0 {
			if err := fees.Record(tx, &domain.FeeEvent{
				ListingID: fresh.ListingID,
				SellerID:  fresh.SellerID,
				Kind:      domain.FeeKindBoosterCharge,
				Amount:    boosterCharge,
			}); err != nil {
				return err
			}
		}

		eventData, _ := json.Marshal(map[string]interface{}{
			"new_listing_id":     fresh.ListingID,
			"reactivation_count": fresh.ReactivationCount,
			"booster_charge":     boosterCharge,
		})
		if err := tx.Create(&domain.ListingEvent{
			ListingID: old.ListingID,
			EventType: domain.ListingEventReactivated,
			EventData: datatypes.JSON(eventData),
		}).Error; err != nil {
			return err
		}

		event = &ReactivationEvent{
			OldListingID:      old.ListingID,
			NewListingID:      fresh.ListingID,
			SellerID:          fresh.SellerID,
			ReactivationCount: fresh.ReactivationCount,
			AuctionEnd:        fresh.AuctionEnd,
			BoosterCharge:     boosterCharge,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// eligibility decides whether a listing may be re-published and how many
// units the new instance carries. Bidless expired auctions are capped at
// MaxAuctionReactivations; partially sold listings re-list the unsold
// remainder, uncapped for the fixed-price format.
func eligibility(l *domain.Listing) (ok bool, remainder int) {
	switch l.Status {
	case domain.ListingStatusExpired:
		if l.IsAuction && l.ReactivationCount >= domain.MaxAuctionReactivations {
			return false, 0
		}
		return true, l.Quantity
	case domain.ListingStatusSold:
		if l.UnitsSold < 1 || l.UnitsRemaining() < 1 {
			return false, 0
		}
		if l.IsAuction && l.ReactivationCount >= domain.MaxAuctionReactivations {
			return false, 0
		}
		return true, l.UnitsRemaining()
	default:
		return false, 0
	}
}

// newInstance builds the fresh listing: same descriptive and commercial
// fields, fresh lock, fresh auction window from the original duration.
func newInstance(old *domain.Listing, remainder int, now time.Time) *domain.Listing {
	fresh := &domain.Listing{
		ListingID:         uuid.New(),
		SellerID:          old.SellerID,
		Title:             old.Title,
		Description:       old.Description,
		Category:          old.Category,
		Attributes:        old.Attributes,
		ImageURLs:         old.ImageURLs,
		Price:             old.Price,
		BuyNowPrice:       old.BuyNowPrice,
		IsAuction:         old.IsAuction,
		OriginalDuration:  old.OriginalDuration,
		Quantity:          remainder,
		Fullset:           old.Fullset,
		OnlyBox:           old.OnlyBox,
		OnlyPapers:        old.OnlyPapers,
		OnlyAllLinks:      old.OnlyAllLinks,
		ActiveBooster:     old.ActiveBooster,
		Status:            domain.ListingStatusActive,
		ReactivationCount: old.ReactivationCount + 1,
		AdditionalInfo:    old.AdditionalInfo,
	}
	if old.IsAuction {
		end := now.Add(time.Duration(old.OriginalDuration) * time.Second)
		fresh.AuctionEnd = &end
	}
	if fresh.ActiveBooster != domain.BoosterNone {
		fresh.BoosterActivatedAt = &now
	}
	return fresh
}

func (s *Scheduler) batch() int {
	if s.Batch > 0 {
		return s.Batch
	}
	return 100
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
