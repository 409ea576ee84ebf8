package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/playtestlabs/playtest/internal/order/domain"
	"github.com/playtestlabs/playtest/internal/order/repository"
	paymentdomain "github.com/playtestlabs/playtest/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stripeMock struct {
	mock.Mock
}

func (m *stripeMock) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*paymentdomain.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentdomain.CheckoutSession), args.Error(1)
}

func newTestService(t *testing.T) (*Service, *stripeMock, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Order{}))

	node, _ := snowflake.NewNode(1)
	stripe := &stripeMock{}
	svc := New(Params{
		Log:    zap.NewNop(),
		Repo:   repository.New(db),
		Stripe: stripe,
		GenID:  node,
	}).(*Service)
	return svc, stripe, db
}

func paidSession(id string) *paymentdomain.CheckoutSession {
	cost := &paymentdomain.ShippingCost{AmountTotal: 500}
	return &paymentdomain.CheckoutSession{
		ID:            id,
		PaymentStatus: "paid",
		CustomerEmail: "fallback@example.com",
		CustomerDetails: &paymentdomain.CustomerDetails{
			Email: "buyer@example.com",
			Name:  "Buyer One",
			Phone: "+15550100",
			Address: &paymentdomain.Address{
				Line1: "1 Main St", City: "Springfield", Country: "US", PostalCode: "94107",
			},
		},
		ShippingDetails: &paymentdomain.ShippingDetails{
			Address: &paymentdomain.Address{Country: "US", PostalCode: "94107"},
		},
		AmountTotal:  1999,
		ShippingCost: cost,
		Currency:     "usd",
		Metadata: map[string]string{
			"quantity":     "3",
			"pricePerCard": "4.50",
			"cardImages":   `["https://cdn.example.com/a.png"]`,
			"cardData":     `[{"name":"Dragon"}]`,
		},
	}
}

func TestReconcileCreatesOrder(t *testing.T) {
	svc, stripe, _ := newTestService(t)
	stripe.On("RetrieveCheckoutSession", mock.Anything, "cs_1").Return(paidSession("cs_1"), nil)

	order, err := svc.ReconcileCheckoutSession(context.Background(), "cs_1")
	require.NoError(t, err)

	assert.Equal(t, "cs_1", order.StripeSessionID)
	assert.Equal(t, domain.StatusPaid, order.Status)
	assert.Equal(t, "paid", order.PaymentStatus)
	assert.Equal(t, "buyer@example.com", order.CustomerEmail)
	assert.Equal(t, "Buyer One", order.CustomerName)
	assert.Equal(t, int64(1999), order.TotalAmountCents)
	require.NotNil(t, order.ShippingCostCents)
	assert.Equal(t, int64(500), *order.ShippingCostCents)
	assert.Equal(t, 3, order.Quantity)
	assert.Equal(t, "4.5", order.PricePerCard.String())
	assert.Equal(t, "US", order.ShippingCountry)

	var images []string
	require.NoError(t, json.Unmarshal(order.CardImages, &images))
	assert.Equal(t, []string{"https://cdn.example.com/a.png"}, images)

	// Absent metadata list decodes to empty, not null.
	assert.JSONEq(t, "[]", string(order.CardImagesBase64))
	assert.Equal(t, "3", order.Metadata["quantity"])
}

func TestReconcileIsIdempotent(t *testing.T) {
	svc, stripe, db := newTestService(t)
	stripe.On("RetrieveCheckoutSession", mock.Anything, "cs_2").Return(paidSession("cs_2"), nil)

	first, err := svc.ReconcileCheckoutSession(context.Background(), "cs_2")
	require.NoError(t, err)
	second, err := svc.ReconcileCheckoutSession(context.Background(), "cs_2")
	require.NoError(t, err)

	var count int64
	db.Model(&domain.Order{}).Where("stripe_session_id = ?", "cs_2").Count(&count)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.CustomerEmail, second.CustomerEmail)
	assert.Equal(t, first.TotalAmountCents, second.TotalAmountCents)
	assert.Equal(t, first.Quantity, second.Quantity)
	assert.True(t, first.PricePerCard.Equal(second.PricePerCard))
}

func TestReconcileUpdatesExistingOrder(t *testing.T) {
	svc, stripe, _ := newTestService(t)

	pending := paidSession("cs_3")
	pending.PaymentStatus = "unpaid"
	stripe.On("RetrieveCheckoutSession", mock.Anything, "cs_3").Return(pending, nil).Once()

	order, err := svc.ReconcileCheckoutSession(context.Background(), "cs_3")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, order.Status)

	stripe.On("RetrieveCheckoutSession", mock.Anything, "cs_3").Return(paidSession("cs_3"), nil).Once()
	updated, err := svc.ReconcileCheckoutSession(context.Background(), "cs_3")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, updated.Status)
	assert.Equal(t, order.ID, updated.ID)
	// First-write metadata fields survive the update branch.
	assert.Equal(t, 3, updated.Quantity)
}

func TestReconcileProviderFailure(t *testing.T) {
	svc, stripe, db := newTestService(t)
	stripe.On("RetrieveCheckoutSession", mock.Anything, "cs_4").Return(nil, errors.New("stripe api error: 500"))

	_, err := svc.ReconcileCheckoutSession(context.Background(), "cs_4")
	require.Error(t, err)

	var count int64
	db.Model(&domain.Order{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestReconcileEmptySessionID(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ReconcileCheckoutSession(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidSessionID)
}

func TestReconcileMalformedMetadataLists(t *testing.T) {
	svc, stripe, _ := newTestService(t)

	session := paidSession("cs_5")
	session.Metadata["cardImages"] = "{not json"
	session.Metadata["quantity"] = "three"
	session.Metadata["pricePerCard"] = "cheap"
	stripe.On("RetrieveCheckoutSession", mock.Anything, "cs_5").Return(session, nil)

	order, err := svc.ReconcileCheckoutSession(context.Background(), "cs_5")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(order.CardImages))
	assert.Equal(t, 0, order.Quantity)
	assert.True(t, order.PricePerCard.IsZero())
}

func TestConcurrentReconcileDistinctSessions(t *testing.T) {
	svc, stripe, db := newTestService(t)
	stripe.On("RetrieveCheckoutSession", mock.Anything, "cs_a").Return(paidSession("cs_a"), nil)
	stripe.On("RetrieveCheckoutSession", mock.Anything, "cs_b").Return(paidSession("cs_b"), nil)

	var wg sync.WaitGroup
	for _, id := range []string{"cs_a", "cs_b"} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ReconcileCheckoutSession(context.Background(), id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int64
	db.Model(&domain.Order{}).Count(&count)
	assert.Equal(t, int64(2), count)
}
