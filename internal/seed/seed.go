package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/playtestlabs/playtest/internal/order/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const demoSessionID = "cs_test_demo_order"

// EnsureDemoOrder inserts a paid sample order for local development. Running
// it twice is a no-op: the order is keyed on a fixed session ID.
func EnsureDemoOrder(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureDemoOrderTx(ctx, tx, node)
		return err
	})
}

func ensureDemoOrderTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := tx.WithContext(ctx).
		Where("stripe_session_id = ?", demoSessionID).
		First(&order).Error
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	shippingCost := int64(500)
	storagePath := "demo/0/US_94107"
	now := time.Now().UTC()
	order = orderdomain.Order{
		ID:              node.Generate(),
		StripeSessionID: demoSessionID,
		PaymentStatus:   "paid",
		Status:          orderdomain.StatusPaid,
		CustomerEmail:   "demo@example.com",
		CustomerName:    "Demo Customer",
		ShippingAddress: datatypes.JSON(`{"country":"US","postal_code":"94107","line1":"1 Demo St","city":"San Francisco"}`),
		TotalAmountCents:  2499,
		ShippingCostCents: &shippingCost,
		Quantity:          3,
		PricePerCard:      decimal.NewFromFloat(6.66),
		ShippingCountry:   "US",
		CardImages:        datatypes.JSON(`["https://cdn.example.com/demo-front.png"]`),
		CardImagesBase64:  datatypes.JSON(`[]`),
		CardData:          datatypes.JSON(`[{"name":"Demo Card","set":"PTX"}]`),
		ImageStoragePath:  &storagePath,
		Metadata:          datatypes.JSONMap{"seeded": true},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
