package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/playtestlabs/playtest/internal/config"
	paymentdomain "github.com/playtestlabs/playtest/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func signedHeader(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func newTestClient(secret string) *Client {
	return New(config.Config{
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: secret,
	})
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	client := newTestClient(testSecret)

	t.Run("valid signature", func(t *testing.T) {
		header := signedHeader(testSecret, "1700000000", payload)
		assert.NoError(t, client.Verify(payload, header))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := signedHeader("whsec_other", "1700000000", payload)
		assert.ErrorIs(t, client.Verify(payload, header), paymentdomain.ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signedHeader(testSecret, "1700000000", payload)
		tampered := []byte(`{"id":"evt_1","type":"checkout.session.completed","amount":9}`)
		assert.ErrorIs(t, client.Verify(tampered, header), paymentdomain.ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		assert.ErrorIs(t, client.Verify(payload, ""), paymentdomain.ErrInvalidSignature)
	})

	t.Run("garbled header", func(t *testing.T) {
		assert.ErrorIs(t, client.Verify(payload, "not-a-signature"), paymentdomain.ErrInvalidSignature)
	})

	t.Run("unset secret", func(t *testing.T) {
		unset := newTestClient("")
		header := signedHeader(testSecret, "1700000000", payload)
		assert.ErrorIs(t, unset.Verify(payload, header), paymentdomain.ErrMissingSecret)
	})

	t.Run("second v1 candidate accepted", func(t *testing.T) {
		good := signedHeader(testSecret, "1700000000", payload)
		header := "t=1700000000,v1=deadbeef," + good[len("t=1700000000,"):]
		assert.NoError(t, client.Verify(payload, header))
	})
}

func TestParseEvent(t *testing.T) {
	client := newTestClient(testSecret)

	t.Run("checkout session completed", func(t *testing.T) {
		payload := []byte(`{
			"id": "evt_1",
			"type": "checkout.session.completed",
			"created": 1700000000,
			"data": {"object": {
				"id": "cs_test_123",
				"payment_status": "paid",
				"amount_total": 1999,
				"metadata": {"quantity": "3"}
			}}
		}`)
		event, err := client.ParseEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.KindCheckoutCompleted, event.Kind)
		assert.Equal(t, "evt_1", event.ID)
		require.NotNil(t, event.Session)
		assert.Equal(t, "cs_test_123", event.Session.ID)
		assert.Equal(t, "paid", event.Session.PaymentStatus)
		assert.Equal(t, int64(1999), event.Session.AmountTotal)
		assert.Equal(t, "3", event.Session.Metadata["quantity"])
	})

	t.Run("payment intent succeeded", func(t *testing.T) {
		payload := []byte(`{"id":"evt_2","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
		event, err := client.ParseEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.KindPaymentSucceeded, event.Kind)
		assert.Equal(t, "pi_1", event.PaymentIntentID)
	})

	t.Run("payment intent failed", func(t *testing.T) {
		payload := []byte(`{"id":"evt_3","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_2"}}}`)
		event, err := client.ParseEvent(payload)
		require.NoError(t, err)
		assert.Equal(t, paymentdomain.KindPaymentFailed, event.Kind)
	})

	t.Run("unhandled type ignored", func(t *testing.T) {
		payload := []byte(`{"id":"evt_4","type":"invoice.created","data":{"object":{}}}`)
		_, err := client.ParseEvent(payload)
		assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := client.ParseEvent([]byte("{nope"))
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
	})

	t.Run("missing event id", func(t *testing.T) {
		_, err := client.ParseEvent([]byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`))
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
	})

	t.Run("completion without session id", func(t *testing.T) {
		_, err := client.ParseEvent([]byte(`{"id":"evt_5","type":"checkout.session.completed","data":{"object":{}}}`))
		assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
	})
}

func TestRetrieveCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Path, "/v1/checkout/sessions/cs_test_123")
		assert.ElementsMatch(t,
			[]string{"line_items", "customer", "shipping_details"},
			r.URL.Query()["expand[]"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "cs_test_123",
			"payment_status": "paid",
			"amount_total": 1999,
			"shipping_cost": {"amount_total": 500},
			"customer_details": {"email": "buyer@example.com", "name": "Buyer"},
			"shipping_details": {"address": {"country": "US", "postal_code": "94107"}},
			"metadata": {"quantity": "3", "pricePerCard": "4.50"}
		}`)
	}))
	defer srv.Close()

	client := newTestClient(testSecret)
	client.baseURL = srv.URL

	session, err := client.RetrieveCheckoutSession(context.Background(), "cs_test_123")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", session.ID)
	assert.Equal(t, int64(1999), session.AmountTotal)
	require.NotNil(t, session.ShippingCost)
	assert.Equal(t, int64(500), session.ShippingCost.AmountTotal)
	assert.Equal(t, "buyer@example.com", session.CustomerDetails.Email)
	assert.Equal(t, "US", session.ShippingDetails.Address.Country)
}

func TestRetrieveCheckoutSessionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"message": "No such checkout session"}}`)
	}))
	defer srv.Close()

	client := newTestClient(testSecret)
	client.baseURL = srv.URL

	_, err := client.RetrieveCheckoutSession(context.Background(), "cs_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
