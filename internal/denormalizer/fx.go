package denormalizer

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("denormalizer",
	fx.Provide(New),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, d *Denormalizer) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go d.RunForever(ctx)

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
