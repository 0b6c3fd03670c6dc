package ordercontrol

import "go.uber.org/fx"

var Module = fx.Module("ordercontrol",
	fx.Provide(NewRedisStore),
)
