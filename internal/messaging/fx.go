package messaging

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("messaging",
	fx.Provide(NewRedisChannel),
	fx.Provide(NewRelay),
	fx.Invoke(StartRelay),
)

func StartRelay(lc fx.Lifecycle, relay *Relay) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go relay.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
