package fees

import (
	"context"
	"errors"
	"math"
	"time"

	"montro-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefundWindow is how long after the auction end a seller may request a
// success-fee refund.
const RefundWindow = 60 * 24 * time.Hour

type Service struct {
	DB *gorm.DB
}

// Record appends a fee event within the caller's transaction. Other services
// (bidding, boosters, reactivation) call this so that a charge commits or
// rolls back together with the state change that caused it.
func Record(tx *gorm.DB, ev *domain.FeeEvent) error {
	ev.Amount = round2(ev.Amount)
	return tx.Create(ev).Error
}

// RecordFee appends a fee event in its own transaction.
func (s *Service) RecordFee(ctx context.Context, ev *domain.FeeEvent) error {
	return Record(s.DB.WithContext(ctx), ev)
}

// Refund credits a success fee back to the seller as a new negative-amount
// event linked to the original. Booster charges are categorically
// non-refundable. Eligibility (buyer never paid) is attested by the caller;
// the 60-day window is measured from the listing's auction end, falling back
// to the fee's creation time for fixed-price sales.
func (s *Service) Refund(ctx context.Context, originalEventID, sellerID uuid.UUID, reason string, now time.Time) (*domain.FeeEvent, error) {
	var refund *domain.FeeEvent
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var original domain.FeeEvent
		if err := tx.Where("event_id = ?", originalEventID).First(&original).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrFeeEventNotFound
			}
			return err
		}
		if sellerID != uuid.Nil && original.SellerID != sellerID {
			return ErrNotOwner
		}
		if original.Kind != domain.FeeKindSuccessFee {
			return ErrNotEligible
		}

		var existing domain.FeeEvent
		if err := tx.Where("refund_of = ?", originalEventID).First(&existing).Error; err == nil {
			return ErrAlreadyRefunded
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		windowStart := original.CreatedAt
		var listing domain.Listing
		if err := tx.Where("listing_id = ?", original.ListingID).First(&listing).Error; err == nil {
			if listing.AuctionEnd != nil {
				windowStart = *listing.AuctionEnd
			}
		}
		if now.After(windowStart.Add(RefundWindow)) {
			return ErrWindowExpired
		}

		refund = &domain.FeeEvent{
			ListingID: original.ListingID,
			SellerID:  original.SellerID,
			Kind:      domain.FeeKindRefund,
			Amount:    -original.Amount,
			RefundOf:  &original.EventID,
			Reason:    reason,
		}
		return Record(tx, refund)
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// OverdueBy returns how long the seller's oldest unpaid fee event has been
// overdue at now (zero when nothing is overdue). The reminder cadence built
// on top of this (day 30/44 mails, day 58 block) lives with the notification
// collaborator.
func (s *Service) OverdueBy(ctx context.Context, sellerID uuid.UUID, now time.Time) (time.Duration, error) {
	var oldest domain.FeeEvent
	err := s.DB.WithContext(ctx).
		Where("seller_id = ? AND paid_at IS NULL AND amount > 0 AND due_at < ?", sellerID, now).
		Order("due_at ASC").First(&oldest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return now.Sub(oldest.DueAt), nil
}

// GetSellerFees returns the seller's full ledger, newest first.
func (s *Service) GetSellerFees(ctx context.Context, sellerID uuid.UUID) ([]domain.FeeEvent, error) {
	var out []domain.FeeEvent
	if err := s.DB.WithContext(ctx).Where("seller_id = ?", sellerID).Order(`"createdAt" DESC`).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the sum of the seller's ledger (charges minus refunds).
func (s *Service) Balance(ctx context.Context, sellerID uuid.UUID) (float64, error) {
	var total *float64
	if err := s.DB.WithContext(ctx).Model(&domain.FeeEvent{}).
		Where("seller_id = ?", sellerID).
		Select("SUM(amount)").Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return round2(*total), nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
