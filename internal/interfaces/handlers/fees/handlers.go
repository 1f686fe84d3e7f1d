package fees

import (
	"errors"
	"time"

	feesvc "montro-backend/internal/application/fees"
	"montro-backend/internal/middleware"
	"montro-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *feesvc.Service
}

// GET /api/v1/fees/get-seller-fees
func (h *Handlers) GetSellerFees(c *fiber.Ctx) error {
	sellerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Seller not found in session", 403, nil)
	}
	events, err := h.Service.GetSellerFees(c.Context(), sellerID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	balance, err := h.Service.Balance(c.Context(), sellerID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Fee ledger fetched successfully", events, fiber.Map{"balance": balance})
}

type refundBody struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// POST /api/v1/fees/refund
func (h *Handlers) Refund(c *fiber.Ctx) error {
	sellerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Seller not found in session", 403, nil)
	}
	var body refundBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	eventID, err := uuid.Parse(body.EventID)
	if err != nil {
		return response.Error(c, "Invalid event_id format", 400, nil)
	}
	if body.Reason == "" {
		return response.Error(c, "Missing required field: reason", 400, nil)
	}

	refund, err := h.Service.Refund(c.Context(), eventID, sellerID, body.Reason, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, feesvc.ErrFeeEventNotFound):
			return response.Error(c, err.Error(), 404, nil)
		case errors.Is(err, feesvc.ErrNotOwner):
			return response.Error(c, err.Error(), 403, nil)
		case errors.Is(err, feesvc.ErrWindowExpired),
			errors.Is(err, feesvc.ErrNotEligible),
			errors.Is(err, feesvc.ErrAlreadyRefunded):
			return response.Error(c, err.Error(), 409, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.SuccessCreated(c, "Refund credited to platform balance", refund, nil)
}

// GET /api/v1/fees/overdue
func (h *Handlers) Overdue(c *fiber.Ctx) error {
	sellerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Seller not found in session", 403, nil)
	}
	overdue, err := h.Service.OverdueBy(c.Context(), sellerID, time.Now())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Overdue status fetched successfully", fiber.Map{
		"overdue_seconds": int64(overdue.Seconds()),
	}, nil)
}
