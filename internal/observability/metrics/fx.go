package metrics

import (
	"go.uber.org/fx"

	"github.com/orgstream/orgstream/internal/config"
)

// Module initializes the pipeline metrics singleton with the deployment
// labels before any worker records a sample.
var Module = fx.Module("metrics",
	fx.Invoke(func(cfg config.Config) {
		PipelineWithConfig(Config{
			ServiceName: cfg.AppName,
			Environment: cfg.Environment,
		})
	}),
)
