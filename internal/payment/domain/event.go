package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingSecret    = errors.New("webhook secret is not configured")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrInvalidEvent     = errors.New("invalid webhook event")
	ErrEventIgnored     = errors.New("webhook event ignored")
)

type EventKind string

const (
	KindCheckoutCompleted EventKind = "checkout_completed"
	KindPaymentSucceeded  EventKind = "payment_succeeded"
	KindPaymentFailed     EventKind = "payment_failed"
	KindIgnored           EventKind = "ignored"
)

// Event is the verified, parsed form of a webhook envelope. Session is set
// only for KindCheckoutCompleted; PaymentIntentID only for the two
// payment-intent kinds.
type Event struct {
	ID              string
	Kind            EventKind
	OccurredAt      time.Time
	Session         *CheckoutSession
	PaymentIntentID string
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type CustomerDetails struct {
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Phone   string   `json:"phone"`
	Address *Address `json:"address"`
}

type ShippingDetails struct {
	Name    string   `json:"name"`
	Address *Address `json:"address"`
}

type ShippingCost struct {
	AmountTotal int64 `json:"amount_total"`
}

// CheckoutSession mirrors the provider's checkout session object. Amounts are
// integer minor units as transmitted; metadata values are always strings.
type CheckoutSession struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *CustomerDetails  `json:"customer_details"`
	ShippingDetails *ShippingDetails  `json:"shipping_details"`
	AmountTotal     int64             `json:"amount_total"`
	ShippingCost    *ShippingCost     `json:"shipping_cost"`
	Currency        string            `json:"currency"`
	Metadata        map[string]string `json:"metadata"`
	Created         int64             `json:"created"`
}

// WebhookVerifier authenticates and parses a raw webhook payload. Verify is
// over the exact transmitted bytes; re-serialized JSON will never match.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) error
	ParseEvent(payload []byte) (*Event, error)
}

type SessionRetriever interface {
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

type WebhookIngestor interface {
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error
}

// WebhookEvent is the audit record for one received completion event,
// deduplicated on the provider event ID.
type WebhookEvent struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ProviderEventID string       `json:"provider_event_id" gorm:"type:varchar(191);not null;uniqueIndex"`
	EventType       string       `json:"event_type" gorm:"type:varchar(100);not null"`
	SessionID       string       `json:"session_id" gorm:"type:varchar(255);index"`
	ProcessedAt     *time.Time   `json:"processed_at"`
	ProcessingError string       `json:"processing_error" gorm:"type:text"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
