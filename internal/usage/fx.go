package usage

import (
	"github.com/smallbiznis/meterline/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.aggregator",
	fx.Provide(service.NewAggregator),
)
