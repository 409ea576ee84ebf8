package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/playtestlabs/playtest/internal/config"
	paymentdomain "github.com/playtestlabs/playtest/internal/payment/domain"
)

const defaultBaseURL = "https://api.stripe.com"

type Client struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

func New(cfg config.Config) *Client {
	return &Client{
		apiKey:        strings.TrimSpace(cfg.StripeSecretKey),
		webhookSecret: strings.TrimSpace(cfg.StripeWebhookSecret),
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify checks the Stripe-Signature header against the raw payload bytes.
// The payload must be the exact transmitted body; any re-encoding breaks the
// signature and is a wiring bug in the caller, not a tampered request.
func (c *Client) Verify(payload []byte, signatureHeader string) error {
	if c.webhookSecret == "" {
		return paymentdomain.ErrMissingSecret
	}

	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func (c *Client) ParseEvent(payload []byte) (*paymentdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	occurredAt := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		occurredAt = time.Now().UTC()
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		var session paymentdomain.CheckoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		if strings.TrimSpace(session.ID) == "" {
			return nil, paymentdomain.ErrInvalidEvent
		}
		return &paymentdomain.Event{
			ID:         event.ID,
			Kind:       paymentdomain.KindCheckoutCompleted,
			OccurredAt: occurredAt,
			Session:    &session,
		}, nil
	case "payment_intent.succeeded":
		return c.parsePaymentIntent(event, paymentdomain.KindPaymentSucceeded, occurredAt)
	case "payment_intent.payment_failed":
		return c.parsePaymentIntent(event, paymentdomain.KindPaymentFailed, occurredAt)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

func (c *Client) parsePaymentIntent(event stripeEvent, kind paymentdomain.EventKind, occurredAt time.Time) (*paymentdomain.Event, error) {
	var intent struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	return &paymentdomain.Event{
		ID:              event.ID,
		Kind:            kind,
		OccurredAt:      occurredAt,
		PaymentIntentID: intent.ID,
	}, nil
}

// RetrieveCheckoutSession fetches the full session with line items, customer
// and shipping details expanded. This is the read the reconciler normalizes
// from, so webhook payload truncation never loses order detail.
func (c *Client) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*paymentdomain.CheckoutSession, error) {
	if c.apiKey == "" {
		return nil, errors.New("stripe api key not configured")
	}

	endpoint := fmt.Sprintf(
		"%s/v1/checkout/sessions/%s?expand[]=line_items&expand[]=customer&expand[]=shipping_details",
		c.baseURL, sessionID,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("stripe api error: %d body: %s", resp.StatusCode, string(bodyBytes))
	}

	var session paymentdomain.CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}
