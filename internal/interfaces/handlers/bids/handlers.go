package bids

import (
	"errors"

	bidsvc "montro-backend/internal/application/bidding"
	"montro-backend/internal/middleware"
	"montro-backend/internal/pkg/keylock"
	"montro-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *bidsvc.Service
}

type placeBidBody struct {
	ListingID string  `json:"listing_id"`
	Amount    float64 `json:"amount"`
}

// POST /api/v1/bids/place-bid
func (h *Handlers) PlaceBid(c *fiber.Ctx) error {
	bidderID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Bidder not found in session", 403, nil)
	}
	var body placeBidBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	listingID, err := uuid.Parse(body.ListingID)
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}
	if body.Amount <= 0 {
		return response.Error(c, "Invalid amount", 400, nil)
	}

	receipt, err := h.Service.PlaceBid(c.Context(), listingID, bidderID, body.Amount)
	if err != nil {
		return h.bidError(c, listingID, err)
	}
	return response.SuccessCreated(c, "Bid accepted", receipt, nil)
}

type buyNowBody struct {
	ListingID string `json:"listing_id"`
}

// POST /api/v1/bids/buy-now
func (h *Handlers) BuyNow(c *fiber.Ctx) error {
	buyerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Buyer not found in session", 403, nil)
	}
	var body buyNowBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	listingID, err := uuid.Parse(body.ListingID)
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}
	listing, err := h.Service.BuyNow(c.Context(), listingID, buyerID)
	if err != nil {
		return h.bidError(c, listingID, err)
	}
	return response.Success(c, "Purchase completed", listing, nil)
}

// GET /api/v1/bids/get-listing-bids/:listing_id
func (h *Handlers) GetListingBids(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}
	bids, minNext, err := h.Service.GetListingBids(c.Context(), listingID)
	if err != nil {
		return h.bidError(c, listingID, err)
	}
	return response.Success(c, "Bids fetched successfully", bids, fiber.Map{"minimum_next_bid": minNext})
}

// bidError maps bid errors to HTTP responses. A rejected low bid includes the
// current minimum acceptable amount so the bidder knows what to offer next.
func (h *Handlers) bidError(c *fiber.Ctx, listingID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, bidsvc.ErrListingNotFound):
		return response.Error(c, err.Error(), 404, nil)
	case errors.Is(err, bidsvc.ErrBidTooLow):
		details := fiber.Map{}
		if _, minNext, berr := h.Service.GetListingBids(c.Context(), listingID); berr == nil {
			details["minimum_next_bid"] = minNext
		}
		return response.Error(c, err.Error(), 422, details)
	case errors.Is(err, bidsvc.ErrListingNotActive),
		errors.Is(err, bidsvc.ErrNotAuction),
		errors.Is(err, bidsvc.ErrNotFixedPrice),
		errors.Is(err, bidsvc.ErrAuctionEnded),
		errors.Is(err, bidsvc.ErrSelfBid),
		errors.Is(err, bidsvc.ErrQuantityExhausted):
		return response.Error(c, err.Error(), 409, nil)
	case errors.Is(err, keylock.ErrContention):
		return response.Error(c, err.Error(), 429, fiber.Map{"retryable": true})
	default:
		return response.Error(c, "Internal Server Error", 500, nil)
	}
}
