package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/playtestlabs/playtest/internal/metrics"
	orderdomain "github.com/playtestlabs/playtest/internal/order/domain"
	paymentdomain "github.com/playtestlabs/playtest/internal/payment/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	signatureHeader = "Stripe-Signature"
	replayKeyPrefix = "webhook:processed:"
	replayKeyTTL    = 24 * time.Hour
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Verifier paymentdomain.WebhookVerifier
	Orders   orderdomain.Service
	GenID    *snowflake.Node
	Metrics  *metrics.Metrics
	Redis    *redis.Client `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	verifier paymentdomain.WebhookVerifier
	orders   orderdomain.Service
	genID    *snowflake.Node
	metrics  *metrics.Metrics
	redis    *redis.Client
}

func NewService(p Params) paymentdomain.WebhookIngestor {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.webhook"),
		verifier: p.Verifier,
		orders:   p.Orders,
		genID:    p.GenID,
		metrics:  p.Metrics,
		redis:    p.Redis,
	}
}

// IngestWebhook verifies the raw payload, then dispatches by event kind. It
// returns an error only for verification failures; reconciliation errors are
// logged and surfaced through metrics so the provider is always acknowledged
// and never re-delivers on our internal failures.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if err := s.verifier.Verify(payload, headers.Get(signatureHeader)); err != nil {
		s.log.Warn("webhook signature verification failed", zap.Error(err))
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	event, err := s.verifier.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("webhook event ignored")
			s.metrics.WebhookEvents.WithLabelValues("other", "ignored").Inc()
			return nil
		}
		return err
	}

	switch event.Kind {
	case paymentdomain.KindCheckoutCompleted:
		s.handleCheckoutCompleted(ctx, event)
	case paymentdomain.KindPaymentSucceeded:
		s.log.Info("payment succeeded", zap.String("payment_intent_id", event.PaymentIntentID))
		s.metrics.WebhookEvents.WithLabelValues(string(event.Kind), "ack").Inc()
	case paymentdomain.KindPaymentFailed:
		s.log.Info("payment failed", zap.String("payment_intent_id", event.PaymentIntentID))
		s.metrics.WebhookEvents.WithLabelValues(string(event.Kind), "ack").Inc()
	}
	return nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *paymentdomain.Event) {
	sessionID := event.Session.ID
	log := s.log.With(
		zap.String("event_id", event.ID),
		zap.String("session_id", sessionID))

	if s.alreadyProcessed(ctx, event.ID) {
		log.Info("checkout completion replay, skipping reconcile")
		s.metrics.WebhookEvents.WithLabelValues(string(event.Kind), "replay").Inc()
		return
	}

	record := s.recordEvent(ctx, event, sessionID)

	if _, err := s.orders.ReconcileCheckoutSession(ctx, sessionID); err != nil {
		log.Error("order reconciliation failed", zap.Error(err))
		s.metrics.ReconcileErrors.Inc()
		s.metrics.WebhookEvents.WithLabelValues(string(event.Kind), "error").Inc()
		s.markEvent(ctx, record, err)
		return
	}

	log.Info("order reconciled")
	s.metrics.WebhookEvents.WithLabelValues(string(event.Kind), "ok").Inc()
	s.markEvent(ctx, record, nil)
	s.markProcessed(ctx, event.ID)
}

// alreadyProcessed is a best-effort fast path. A Redis outage degrades to the
// reconciler's own idempotency, never to a dropped event.
func (s *Service) alreadyProcessed(ctx context.Context, eventID string) bool {
	if s.redis == nil {
		return false
	}
	exists, err := s.redis.Exists(ctx, replayKeyPrefix+eventID).Result()
	if err != nil {
		s.log.Warn("replay cache lookup failed", zap.Error(err))
		return false
	}
	return exists > 0
}

func (s *Service) markProcessed(ctx context.Context, eventID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, replayKeyPrefix+eventID, 1, replayKeyTTL).Err(); err != nil {
		s.log.Warn("replay cache write failed", zap.Error(err))
	}
}

func (s *Service) recordEvent(ctx context.Context, event *paymentdomain.Event, sessionID string) *paymentdomain.WebhookEvent {
	record := &paymentdomain.WebhookEvent{
		ID:              s.genID.Generate(),
		ProviderEventID: event.ID,
		EventType:       string(event.Kind),
		SessionID:       sessionID,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		// Duplicate provider event IDs are expected under redelivery; any
		// other failure only costs us the audit trail, not the order.
		s.log.Warn("webhook audit record not written", zap.Error(err))
		return nil
	}
	return record
}

func (s *Service) markEvent(ctx context.Context, record *paymentdomain.WebhookEvent, processErr error) {
	if record == nil {
		return
	}
	updates := map[string]any{}
	if processErr != nil {
		updates["processing_error"] = processErr.Error()
	} else {
		now := time.Now().UTC()
		updates["processed_at"] = &now
	}
	if err := s.db.WithContext(ctx).Model(record).Updates(updates).Error; err != nil {
		s.log.Warn("webhook audit record not updated", zap.Error(err))
	}
}
