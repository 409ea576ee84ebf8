package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/playtestlabs/playtest/internal/order/domain"
	paymentdomain "github.com/playtestlabs/playtest/internal/payment/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Repo   domain.Repository
	Stripe paymentdomain.SessionRetriever
	GenID  *snowflake.Node
}

type Service struct {
	log    *zap.Logger
	repo   domain.Repository
	stripe paymentdomain.SessionRetriever
	genID  *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("order.reconciler"),
		repo:   p.Repo,
		stripe: p.Stripe,
		genID:  p.GenID,
	}
}

// ReconcileCheckoutSession is an upsert keyed on the session ID. The update
// branch touches only reconciliation columns; metadata-derived fields are
// written once on create, so replays converge to the same row.
func (s *Service) ReconcileCheckoutSession(ctx context.Context, sessionID string) (*domain.Order, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.ErrInvalidSessionID
	}

	session, err := s.stripe.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	updates := buildUpdate(session)

	existing, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}
	if existing != nil {
		return s.repo.UpdateBySessionID(ctx, sessionID, updates)
	}

	order := s.newOrderFromSession(session)
	if err := s.repo.Create(ctx, order); err != nil {
		if errors.Is(err, domain.ErrDuplicateSession) {
			// Lost the race against a concurrent replay; the winner already
			// holds the first-write fields, so fall through to update.
			return s.repo.UpdateBySessionID(ctx, sessionID, updates)
		}
		return nil, err
	}

	s.log.Info("order created from checkout session",
		zap.String("session_id", sessionID),
		zap.Int64("amount_total_cents", session.AmountTotal))
	return order, nil
}

// buildUpdate holds exactly the columns a reconciliation may change on an
// existing order.
func buildUpdate(session *paymentdomain.CheckoutSession) map[string]any {
	updates := map[string]any{
		"payment_status":      session.PaymentStatus,
		"status":              domain.StatusForPaymentStatus(session.PaymentStatus),
		"customer_email":      customerEmail(session),
		"shipping_address":    addressJSON(shippingAddress(session)),
		"billing_address":     addressJSON(billingAddress(session)),
		"total_amount_cents":  session.AmountTotal,
		"shipping_cost_cents": shippingCostCents(session),
	}
	// Name and phone only exist on customer details; leave the stored values
	// alone when the provider omitted them.
	if details := session.CustomerDetails; details != nil {
		updates["customer_name"] = details.Name
		updates["customer_phone"] = details.Phone
	}
	return updates
}

func (s *Service) newOrderFromSession(session *paymentdomain.CheckoutSession) *domain.Order {
	order := &domain.Order{
		ID:                s.genID.Generate(),
		StripeSessionID:   session.ID,
		PaymentStatus:     session.PaymentStatus,
		Status:            domain.StatusForPaymentStatus(session.PaymentStatus),
		CustomerEmail:     customerEmail(session),
		ShippingAddress:   addressJSON(shippingAddress(session)),
		BillingAddress:    addressJSON(billingAddress(session)),
		TotalAmountCents:  session.AmountTotal,
		ShippingCostCents: shippingCostCents(session),
		Quantity:          metadataInt(session.Metadata, "quantity"),
		PricePerCard:      metadataDecimal(session.Metadata, "pricePerCard"),
		ShippingCountry:   shippingCountry(session),
		CardImages:        metadataJSONList(session.Metadata, "cardImages"),
		CardImagesBase64:  metadataJSONList(session.Metadata, "cardImagesBase64"),
		CardData:          metadataJSONList(session.Metadata, "cardData"),
		Metadata:          metadataMap(session.Metadata),
	}
	if details := session.CustomerDetails; details != nil {
		order.CustomerName = details.Name
		order.CustomerPhone = details.Phone
	}
	if path, ok := session.Metadata["imageStoragePath"]; ok && path != "" {
		order.ImageStoragePath = &path
	}
	return order
}

// customerEmail prefers the verified customer-details email over the email
// supplied at session creation.
func customerEmail(session *paymentdomain.CheckoutSession) string {
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		return session.CustomerDetails.Email
	}
	return session.CustomerEmail
}

func shippingAddress(session *paymentdomain.CheckoutSession) *paymentdomain.Address {
	if session.ShippingDetails == nil {
		return nil
	}
	return session.ShippingDetails.Address
}

func billingAddress(session *paymentdomain.CheckoutSession) *paymentdomain.Address {
	if session.CustomerDetails == nil {
		return nil
	}
	return session.CustomerDetails.Address
}

func shippingCostCents(session *paymentdomain.CheckoutSession) *int64 {
	if session.ShippingCost == nil {
		return nil
	}
	cents := session.ShippingCost.AmountTotal
	return &cents
}

func shippingCountry(session *paymentdomain.CheckoutSession) string {
	if country, ok := session.Metadata["shippingCountry"]; ok && country != "" {
		return country
	}
	if addr := shippingAddress(session); addr != nil {
		return addr.Country
	}
	return ""
}

func addressJSON(addr *paymentdomain.Address) datatypes.JSON {
	if addr == nil {
		return nil
	}
	raw, err := json.Marshal(addr)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func metadataInt(metadata map[string]string, key string) int {
	value, err := strconv.Atoi(metadata[key])
	if err != nil {
		return 0
	}
	return value
}

func metadataDecimal(metadata map[string]string, key string) decimal.Decimal {
	value, err := decimal.NewFromString(metadata[key])
	if err != nil {
		return decimal.Zero
	}
	return value
}

// metadataJSONList decodes a JSON array carried as a metadata string. A
// missing key or a decode failure both mean "absent", never an error.
func metadataJSONList(metadata map[string]string, key string) datatypes.JSON {
	raw, ok := metadata[key]
	if !ok || raw == "" {
		return datatypes.JSON("[]")
	}
	var list []any
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

func metadataMap(metadata map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
