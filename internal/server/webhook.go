package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/playtestlabs/playtest/internal/payment/domain"
	"go.uber.org/zap"
)

// HandleWebhook
// POST /api/webhook
//
// The body is read raw, before any JSON binding: signature verification is
// over the exact transmitted bytes. Every verified event is acknowledged with
// 200 regardless of downstream outcome; only verification failures get a 400.
func (s *Server) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read request body"})
		return
	}

	if err := s.webhook.IngestWebhook(c.Request.Context(), payload, c.Request.Header); err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrInvalidSignature),
			errors.Is(err, paymentdomain.ErrMissingSecret),
			errors.Is(err, paymentdomain.ErrInvalidPayload),
			errors.Is(err, paymentdomain.ErrInvalidEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook Error: " + err.Error()})
		default:
			// Internal failures still acknowledge receipt; redelivery would
			// only repeat the same work.
			s.log.Error("webhook ingest failed", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"received": true})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
