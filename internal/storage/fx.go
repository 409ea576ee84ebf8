package storage

import (
	storagedomain "github.com/playtestlabs/playtest/internal/storage/domain"
	"github.com/playtestlabs/playtest/internal/storage/supabase"
	"go.uber.org/fx"
)

var Module = fx.Module("storage",
	fx.Provide(supabase.New),
	fx.Provide(func(c *supabase.Client) storagedomain.ObjectStore { return c }),
)
