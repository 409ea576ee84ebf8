package payment

import (
	paymentdomain "github.com/playtestlabs/playtest/internal/payment/domain"
	"github.com/playtestlabs/playtest/internal/payment/stripe"
	"github.com/playtestlabs/playtest/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(stripe.New),
	fx.Provide(func(c *stripe.Client) paymentdomain.WebhookVerifier { return c }),
	fx.Provide(func(c *stripe.Client) paymentdomain.SessionRetriever { return c }),
	fx.Provide(webhook.NewService),
)
