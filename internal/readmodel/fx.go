package readmodel

import (
	"go.uber.org/fx"

	"github.com/orgstream/orgstream/internal/readmodel/repository"
)

var Module = fx.Module("readmodel",
	fx.Provide(repository.NewRepository),
)
