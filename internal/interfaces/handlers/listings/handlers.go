package listings

import (
	"errors"
	"time"

	listsvc "montro-backend/internal/application/listings"
	"montro-backend/internal/middleware"
	"montro-backend/internal/pkg/keylock"
	"montro-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Handlers struct {
	Service *listsvc.Service
}

type createListingBody struct {
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	Category            string         `json:"category"`
	Attributes          datatypes.JSON `json:"attributes"`
	ImageURLs           datatypes.JSON `json:"image_urls"`
	Price               float64        `json:"price"`
	BuyNowPrice         *float64       `json:"buy_now_price"`
	IsAuction           bool           `json:"is_auction"`
	AuctionDurationHrs  int            `json:"auction_duration_hours"`
	Quantity            int            `json:"quantity"`
	Fullset             bool           `json:"fullset"`
	OnlyBox             bool           `json:"only_box"`
	OnlyPapers          bool           `json:"only_papers"`
	OnlyAllLinks        bool           `json:"only_all_links"`
	Booster             string         `json:"booster"`
	Publish             bool           `json:"publish"`
}

// POST /api/v1/listings/create-listing
func (h *Handlers) CreateListing(c *fiber.Ctx) error {
	sellerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Seller not found in session", 403, nil)
	}

	var body createListingBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	if body.Title == "" || body.Category == "" {
		return response.Error(c, "Missing required field: title or category", 400, nil)
	}
	if body.Price <= 0 {
		return response.Error(c, "Invalid price", 400, nil)
	}

	listing, err := h.Service.CreateListing(c.Context(), listsvc.CreateListingInput{
		SellerID:        sellerID,
		Title:           body.Title,
		Description:     body.Description,
		Category:        body.Category,
		Attributes:      body.Attributes,
		ImageURLs:       body.ImageURLs,
		Price:           body.Price,
		BuyNowPrice:     body.BuyNowPrice,
		IsAuction:       body.IsAuction,
		AuctionDuration: time.Duration(body.AuctionDurationHrs) * time.Hour,
		Quantity:        body.Quantity,
		Fullset:         body.Fullset,
		OnlyBox:         body.OnlyBox,
		OnlyPapers:      body.OnlyPapers,
		OnlyAllLinks:    body.OnlyAllLinks,
		Booster:         body.Booster,
		Publish:         body.Publish,
	})
	if err != nil {
		return listingError(c, err)
	}
	return response.SuccessCreated(c, "Listing created successfully", listing, nil)
}

type editListingBody struct {
	ListingID      string         `json:"listing_id"`
	Title          *string        `json:"title"`
	Description    *string        `json:"description"`
	Price          *float64       `json:"price"`
	BuyNowPrice    *float64       `json:"buy_now_price"`
	ClearBuyNow    bool           `json:"clear_buy_now"`
	AuctionEnd     *time.Time     `json:"auction_end"`
	Quantity       *int           `json:"quantity"`
	Fullset        *bool          `json:"fullset"`
	OnlyBox        *bool          `json:"only_box"`
	OnlyPapers     *bool          `json:"only_papers"`
	OnlyAllLinks   *bool          `json:"only_all_links"`
	AdditionalInfo *string        `json:"additional_info"`
	Attributes     datatypes.JSON `json:"attributes"`
	ImageURLs      datatypes.JSON `json:"image_urls"`
}

// PUT /api/v1/listings/edit-listing
func (h *Handlers) EditListing(c *fiber.Ctx) error {
	sellerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Seller not found in session", 403, nil)
	}

	var body editListingBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	listingID, err := uuid.Parse(body.ListingID)
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}

	listing, err := h.Service.EditListing(c.Context(), listsvc.EditListingInput{
		ListingID: listingID,
		SellerID:  sellerID,
		Patch: listsvc.EditPatch{
			Title:          body.Title,
			Description:    body.Description,
			Price:          body.Price,
			BuyNowPrice:    body.BuyNowPrice,
			ClearBuyNow:    body.ClearBuyNow,
			AuctionEnd:     body.AuctionEnd,
			Quantity:       body.Quantity,
			Fullset:        body.Fullset,
			OnlyBox:        body.OnlyBox,
			OnlyPapers:     body.OnlyPapers,
			OnlyAllLinks:   body.OnlyAllLinks,
			AdditionalInfo: body.AdditionalInfo,
			Attributes:     body.Attributes,
			ImageURLs:      body.ImageURLs,
		},
	})
	if err != nil {
		return listingError(c, err)
	}
	return response.Success(c, "Listing updated successfully", listing, nil)
}

type listingIDBody struct {
	ListingID string `json:"listing_id"`
}

// POST /api/v1/listings/publish-listing
func (h *Handlers) PublishListing(c *fiber.Ctx) error {
	sellerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Seller not found in session", 403, nil)
	}
	var body listingIDBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	listingID, err := uuid.Parse(body.ListingID)
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}
	listing, err := h.Service.PublishListing(c.Context(), listingID, sellerID)
	if err != nil {
		return listingError(c, err)
	}
	return response.Success(c, "Listing published successfully", listing, nil)
}

// POST /api/v1/listings/cancel-listing
func (h *Handlers) CancelListing(c *fiber.Ctx) error {
	sellerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Seller not found in session", 403, nil)
	}
	var body listingIDBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	listingID, err := uuid.Parse(body.ListingID)
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}
	listing, err := h.Service.CancelListing(c.Context(), listingID, sellerID)
	if err != nil {
		return listingError(c, err)
	}
	return response.Success(c, "Listing cancelled successfully", listing, nil)
}

// GET /api/v1/listings/get-listing/:listing_id
func (h *Handlers) GetListingByID(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", 400, nil)
	}
	listing, err := h.Service.GetListingByID(c.Context(), listingID)
	if err != nil {
		return listingError(c, err)
	}
	return response.Success(c, "Listing fetched successfully", listing, nil)
}

// GET /api/v1/listings/get-seller-listings
func (h *Handlers) GetSellerListings(c *fiber.Ctx) error {
	sellerID, ok := middleware.ActorID(c)
	if !ok {
		return response.Error(c, "Seller not found in session", 403, nil)
	}
	data, err := h.Service.GetSellerListings(c.Context(), sellerID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Seller listings fetched successfully", data, nil)
}

// GET /api/v1/listings/get-all-active-listings
func (h *Handlers) GetAllActiveListings(c *fiber.Ctx) error {
	data, err := h.Service.GetAllActiveListings(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Active listings fetched successfully", data, nil)
}

// listingError maps service errors onto the standard error envelope. Locked
// edits report which fields are frozen so the seller knows why.
func listingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, listsvc.ErrListingNotFound):
		return response.Error(c, err.Error(), 404, nil)
	case errors.Is(err, listsvc.ErrNotOwner):
		return response.Error(c, err.Error(), 403, nil)
	case errors.Is(err, listsvc.ErrPriceFieldsLocked):
		return response.Error(c, err.Error(), 409, fiber.Map{
			"locked_fields": []string{"price", "buy_now_price", "auction_end", "fullset", "only_box", "only_papers", "only_all_links"},
			"reason":        "bids exist",
		})
	case errors.Is(err, listsvc.ErrSupplyFlagConflict),
		errors.Is(err, listsvc.ErrMissingRequiredField),
		errors.Is(err, listsvc.ErrInvalidCondition),
		errors.Is(err, listsvc.ErrInvalidTransition),
		errors.Is(err, listsvc.ErrUnknownBooster),
		errors.Is(err, listsvc.ErrNotEditable):
		return response.Error(c, err.Error(), 400, nil)
	case errors.Is(err, keylock.ErrContention):
		return response.Error(c, err.Error(), 429, fiber.Map{"retryable": true})
	default:
		return response.Error(c, "Internal Server Error", 500, nil)
	}
}
