package resultstore

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/meterline/internal/resultstore/repository"
)

var Module = fx.Module("resultstore",
	fx.Provide(
		repository.NewStore,
	),
)
