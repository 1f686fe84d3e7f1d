package boosters

import (
	"errors"

	boostsvc "montro-backend/internal/application/boosters"
	"montro-backend/internal/middleware"
	"montro-backend/internal/pkg/keylock"
	"montro-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *boostsvc.Service
}

type changeBoosterBody struct {
	ListingID string `json:"listing_id"`
	Booster   string `json:"booster"`
}

// POST /api/v1/boosters/change-booster
func (h *Handlers) ChangeBooster(c *fiber.Ctx) error {
	actorID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Seller not found in session", 403, nil)
	}
	var body changeBoosterBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	listingID, err := uuid.Parse(body.ListingID)
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}

	outcome, err := h.Service.ChangeBooster(c.Context(), listingID, actorID, body.Booster)
	if err != nil {
		switch {
		case errors.Is(err, boostsvc.ErrListingNotFound):
			return response.Error(c, err.Error(), 404, nil)
		case errors.Is(err, boostsvc.ErrNotOwner):
			return response.Error(c, err.Error(), 403, nil)
		case errors.Is(err, boostsvc.ErrUnknownBooster), errors.Is(err, boostsvc.ErrListingNotBoostable):
			return response.Error(c, err.Error(), 400, nil)
		case errors.Is(err, keylock.ErrContention):
			return response.Error(c, err.Error(), 429, fiber.Map{"retryable": true})
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Booster updated successfully", outcome, nil)
}

// GET /api/v1/boosters/get-catalog
func (h *Handlers) GetCatalog(c *fiber.Ctx) error {
	catalog, err := h.Service.PriceList.Catalog(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Booster catalog fetched successfully", catalog, nil)
}
