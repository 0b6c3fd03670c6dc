package organization

import (
	"github.com/orgstream/orgstream/internal/organization/repository"
	"github.com/orgstream/orgstream/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.New),
)
