package transaction

import (
	"github.com/smallbiznis/rebill/internal/transaction/processor"
	"github.com/smallbiznis/rebill/internal/transaction/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.service",
	fx.Provide(repository.Provide),
	fx.Provide(processor.NewProcessor),
)
