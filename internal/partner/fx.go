package partner

import (
	"github.com/pulsepaylabs/pulsepay/internal/partner/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("partner",
	fx.Provide(repository.NewRepository),
)
