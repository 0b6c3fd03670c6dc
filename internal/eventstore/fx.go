package eventstore

import (
	"github.com/orgstream/orgstream/internal/eventstore/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("eventstore",
	fx.Provide(repository.NewStore),
)
