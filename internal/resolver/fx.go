package resolver

import (
	"github.com/tallyops/meridian/internal/resolver/service"
	"go.uber.org/fx"
)

var Module = fx.Module("resolver.service",
	fx.Provide(service.NewService),
)
