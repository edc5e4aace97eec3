package scheme

import (
	"github.com/pulsepaylabs/pulsepay/internal/scheme/service"
	"go.uber.org/fx"
)

var Module = fx.Module("scheme.service",
	fx.Provide(service.NewService),
)
