package order

import (
	"github.com/playtestlabs/playtest/internal/order/repository"
	"github.com/playtestlabs/playtest/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
