package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"montro-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookHandler receives fee-payment confirmations from the payment
// provider and marks the referenced fee events paid. Mounted before any body
// parser because signature verification needs the raw body.
type WebhookHandler struct {
	DB            *gorm.DB
	WebhookSecret string
}

type providerEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type paymentIntentObject struct {
	ID             string            `json:"id"`
	AmountReceived int               `json:"amount_received"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata"`
}

// HandleWebhook POST /api/v1/webhooks/fee-payment — raw body, signature
// verification, then process. Domain errors still answer 200 so the provider
// does not retry forever.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	sig := c.Get("Webhook-Signature")

	if len(rawBody) == 0 {
		log.Warn().Msg("Fee webhook received empty body (ensure no global body parser consumes the webhook body)")
		return c.Status(400).SendString("Webhook Error: empty body")
	}

	if err := verifySignature(rawBody, sig, wh.WebhookSecret); err != nil {
		log.Warn().Err(err).Bool("has_sig", sig != "").Bool("has_secret", wh.WebhookSecret != "").Msg("Fee webhook signature verification failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	var event providerEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		log.Warn().Err(err).Msg("Fee webhook JSON parse failed")
		return c.Status(400).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	if event.Type == "payment_intent.succeeded" {
		var pi paymentIntentObject
		if err := json.Unmarshal(event.Data.Object, &pi); err != nil {
			return c.Status(200).SendString("ok")
		}
		if err := wh.handlePaymentSucceeded(pi, event.ID, rawBody); err != nil {
			log.Warn().Err(err).Str("payment_intent", pi.ID).Msg("Fee webhook processing failed")
			return c.Status(200).SendString("ok")
		}
	}

	return c.Status(200).SendString("ok")
}

func (wh *WebhookHandler) handlePaymentSucceeded(pi paymentIntentObject, eventID string, rawBody []byte) error {
	feeEventID := pi.Metadata["fee_event_id"]
	sellerID := pi.Metadata["seller_id"]
	if feeEventID == "" || sellerID == "" {
		return nil // not a fee payment; skip silently
	}
	feeUUID, err := uuid.Parse(feeEventID)
	if err != nil {
		return nil
	}
	sellerUUID, _ := uuid.Parse(sellerID)

	return wh.DB.Transaction(func(tx *gorm.DB) error {
		// Idempotency: a replayed delivery is a no-op.
		var existing domain.FeePayment
		if err := tx.Where("payment_intent_id = ?", pi.ID).First(&existing).Error; err == nil {
			return nil
		}

		var fee domain.FeeEvent
		if err := tx.Where("event_id = ?", feeUUID).First(&fee).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("Fee event not found")
			}
			return err
		}
		if fee.PaidAt == nil {
			now := time.Now()
			if err := tx.Model(&fee).Update("paid_at", now).Error; err != nil {
				return err
			}
		}

		return tx.Create(&domain.FeePayment{
			PaymentIntentID: pi.ID,
			ProviderEventID: eventID,
			FeeEventID:      fee.EventID,
			SellerID:        sellerUUID,
			AmountPaidCents: pi.AmountReceived,
			Currency:        pi.Currency,
			Status:          pi.Status,
			RawPayload:      datatypes.JSON(rawBody),
		}).Error
	})
}

// verifySignature verifies the Webhook-Signature header
// ("t=<unix>,v1=<hex hmac>") with a 5 minute timestamp tolerance.
func verifySignature(payload []byte, sigHeader, secret string) error {
	if sigHeader == "" || secret == "" {
		return errors.New("missing signature or secret")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return errors.New("invalid signature format")
	}

	signedPayload := timestamp + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expectedSig)) {
			ts, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				return errors.New("invalid timestamp")
			}
			diff := time.Now().Unix() - ts
			if diff < 0 {
				diff = -diff
			}
			if diff > 300 {
				return errors.New("timestamp too old")
			}
			return nil
		}
	}
	return errors.New("signature mismatch")
}
