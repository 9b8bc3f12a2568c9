package contractline

import (
	"github.com/tallyops/meridian/internal/contractline/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contractline.service",
	fx.Provide(service.NewService),
)
