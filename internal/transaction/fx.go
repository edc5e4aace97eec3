package transaction

import (
	"github.com/pulsepaylabs/pulsepay/internal/transaction/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction",
	fx.Provide(repository.NewRepository),
)
