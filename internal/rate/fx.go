package rate

import (
	"github.com/tallyops/meridian/internal/rate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.service",
	fx.Provide(service.NewService),
)
