package contract

import (
	"github.com/smallbiznis/meterline/internal/contract/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contract.resolver",
	fx.Provide(service.NewResolverFactory),
)
