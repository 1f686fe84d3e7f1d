// Package notify publishes domain events for the notification collaborator
// (outbid mails, reactivation notices, overdue reminders). Publish failures
// are logged and returned; callers ignore them so a broker outage never
// fails the originating request.
package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Queue names consumed by the notification service.
const (
	QueueOutbid      = "listing.outbid"
	QueueReactivated = "listing.reactivated"
	QueueFeesOverdue = "fees.overdue"
	QueueListingSold = "listing.sold"
)

// OutbidEvent tells a bidder they are no longer among the winners.
type OutbidEvent struct {
	ListingID  string    `json:"listing_id"`
	BidderID   string    `json:"bidder_id"`
	NewHighest float64   `json:"new_highest"`
	At         time.Time `json:"at"`
}

// ReactivatedEvent informs a seller their expired listing was re-published.
type ReactivatedEvent struct {
	ListingID         string    `json:"listing_id"`
	SellerID          string    `json:"seller_id"`
	ReactivationCount int       `json:"reactivation_count"`
	NewAuctionEnd     time.Time `json:"new_auction_end"`
	BoosterCharge     float64   `json:"booster_charge"`
}

// OverdueEvent reminds a seller about their oldest unpaid fee past its due
// date. The mail cadence on top of these reminders is the notification
// collaborator's concern.
type OverdueEvent struct {
	SellerID       string  `json:"seller_id"`
	FeeEventID     string  `json:"fee_event_id"`
	Amount         float64 `json:"amount"`
	OverdueSeconds int64   `json:"overdue_seconds"`
}

// SoldEvent informs buyer and seller about an awarded unit.
type SoldEvent struct {
	ListingID string  `json:"listing_id"`
	SellerID  string  `json:"seller_id"`
	BuyerID   string  `json:"buyer_id"`
	Price     float64 `json:"price"`
}

// Publisher delivers events to the notification collaborator.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload interface{}) error
}

// Nop discards all events; used in tests and when AMQP_URL is unset.
type Nop struct{}

func (Nop) Publish(ctx context.Context, queue string, payload interface{}) error {
	return nil
}

// AMQP publishes persistent JSON messages to durable RabbitMQ queues.
type AMQP struct {
	URL string
}

func (p *AMQP) Publish(ctx context.Context, queue string, payload interface{}) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Warn().Err(err).Str("queue", queue).Msg("notify: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Str("queue", queue).Msg("notify: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Warn().Err(err).Str("queue", queue).Msg("notify: queue declare failed")
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		log.Warn().Err(err).Str("queue", queue).Msg("notify: publish failed")
	}
	return err
}
