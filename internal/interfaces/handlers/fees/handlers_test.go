package fees

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	feesvc "montro-backend/internal/application/fees"
	"montro-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupFeesTest(t *testing.T) (*Handlers, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Listing{}, &domain.FeeEvent{}))
	return &Handlers{Service: &feesvc.Service{DB: db}}, db
}

func appWithUser(userID uuid.UUID) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id": userID.String(),
		})
		return c.Next()
	})
	return app
}

func seedFee(t *testing.T, db *gorm.DB, sellerID uuid.UUID, kind string, amount float64) *domain.FeeEvent {
	ev := &domain.FeeEvent{
		ListingID: uuid.New(),
		SellerID:  sellerID,
		Kind:      kind,
		Amount:    amount,
	}
	require.NoError(t, db.Create(ev).Error)
	return ev
}

func TestGetSellerFees_WithBalance(t *testing.T) {
	h, db := setupFeesTest(t)
	seller := uuid.New()
	seedFee(t, db, seller, domain.FeeKindSuccessFee, 10)
	seedFee(t, db, seller, domain.FeeKindBoosterCharge, 15)

	app := appWithUser(seller)
	app.Get("/get-seller-fees", h.GetSellerFees)

	req := httptest.NewRequest("GET", "/get-seller-fees", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	assert.Len(t, result["data"], 2)
	metadata := result["metadata"].(map[string]interface{})
	assert.Equal(t, 25.0, metadata["balance"])
}

func TestRefund_Success(t *testing.T) {
	h, db := setupFeesTest(t)
	seller := uuid.New()
	fee := seedFee(t, db, seller, domain.FeeKindSuccessFee, 10)

	app := appWithUser(seller)
	app.Post("/refund", h.Refund)

	body, _ := json.Marshal(map[string]interface{}{
		"event_id": fee.EventID.String(),
		"reason":   "buyer never paid",
	})
	req := httptest.NewRequest("POST", "/refund", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	data := result["data"].(map[string]interface{})
	assert.Equal(t, domain.FeeKindRefund, data["kind"])
	assert.Equal(t, -10.0, data["amount"])
}

func TestRefund_OtherSellersFee(t *testing.T) {
	h, db := setupFeesTest(t)
	fee := seedFee(t, db, uuid.New(), domain.FeeKindSuccessFee, 10)

	app := appWithUser(uuid.New())
	app.Post("/refund", h.Refund)

	body, _ := json.Marshal(map[string]interface{}{
		"event_id": fee.EventID.String(),
		"reason":   "buyer never paid",
	})
	req := httptest.NewRequest("POST", "/refund", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestRefund_BoosterChargeConflict(t *testing.T) {
	h, db := setupFeesTest(t)
	seller := uuid.New()
	fee := seedFee(t, db, seller, domain.FeeKindBoosterCharge, 15)

	app := appWithUser(seller)
	app.Post("/refund", h.Refund)

	body, _ := json.Marshal(map[string]interface{}{
		"event_id": fee.EventID.String(),
		"reason":   "listing cancelled",
	})
	req := httptest.NewRequest("POST", "/refund", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
}

func TestRefund_MissingReason(t *testing.T) {
	h, db := setupFeesTest(t)
	seller := uuid.New()
	fee := seedFee(t, db, seller, domain.FeeKindSuccessFee, 10)

	app := appWithUser(seller)
	app.Post("/refund", h.Refund)

	body, _ := json.Marshal(map[string]interface{}{"event_id": fee.EventID.String()})
	req := httptest.NewRequest("POST", "/refund", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestOverdue_ReportsSeconds(t *testing.T) {
	h, db := setupFeesTest(t)
	seller := uuid.New()
	fee := seedFee(t, db, seller, domain.FeeKindSuccessFee, 10)
	// Force the due date into the past.
	require.NoError(t, db.Model(&domain.FeeEvent{}).
		Where("event_id = ?", fee.EventID).
		Update("due_at", time.Now().Add(-48*time.Hour)).Error)

	app := appWithUser(seller)
	app.Get("/overdue", h.Overdue)

	req := httptest.NewRequest("GET", "/overdue", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	data := result["data"].(map[string]interface{})
	assert.InDelta(t, float64(48*3600), data["overdue_seconds"].(float64), 120)
}
