package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateSession = errors.New("order already exists for session")
	ErrInvalidSessionID = errors.New("invalid session id")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// StatusForPaymentStatus is the only place order status is derived. Anything
// the provider reports other than "paid" stays pending until a later event
// settles it.
func StatusForPaymentStatus(paymentStatus string) Status {
	if paymentStatus == "paid" {
		return StatusPaid
	}
	return StatusPending
}

// Order is keyed by the provider checkout session: one order per session,
// enforced by the unique index on stripe_session_id.
type Order struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	StripeSessionID string       `json:"stripe_session_id" gorm:"type:varchar(255);not null;uniqueIndex"`

	PaymentStatus string `json:"payment_status" gorm:"type:varchar(32)"`
	Status        Status `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`

	CustomerEmail string `json:"customer_email" gorm:"type:varchar(255)"`
	CustomerName  string `json:"customer_name" gorm:"type:varchar(255)"`
	CustomerPhone string `json:"customer_phone" gorm:"type:varchar(64)"`

	ShippingAddress datatypes.JSON `json:"shipping_address" gorm:"type:jsonb"`
	BillingAddress  datatypes.JSON `json:"billing_address" gorm:"type:jsonb"`

	// Monetary amounts are integer minor units, never floats.
	TotalAmountCents  int64  `json:"total_amount_cents"`
	ShippingCostCents *int64 `json:"shipping_cost_cents"`

	Quantity        int             `json:"quantity"`
	PricePerCard    decimal.Decimal `json:"price_per_card" gorm:"type:numeric(12,2)"`
	ShippingCountry string          `json:"shipping_country" gorm:"type:varchar(2)"`

	CardImages       datatypes.JSON `json:"card_images" gorm:"type:jsonb"`
	CardImagesBase64 datatypes.JSON `json:"card_images_base64" gorm:"type:jsonb"`
	CardData         datatypes.JSON `json:"card_data" gorm:"type:jsonb"`

	ImageStoragePath *string           `json:"image_storage_path" gorm:"type:text"`
	Metadata         datatypes.JSONMap `json:"metadata" gorm:"type:jsonb;default:'{}'"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string {
	return "orders"
}

type Repository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*Order, error)
	Create(ctx context.Context, order *Order) error
	// UpdateBySessionID applies only the given columns; everything else on the
	// row is left untouched.
	UpdateBySessionID(ctx context.Context, sessionID string, updates map[string]any) (*Order, error)
}

type Service interface {
	ReconcileCheckoutSession(ctx context.Context, sessionID string) (*Order, error)
}
