package reconciliation

import (
	"github.com/smallbiznis/meterline/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation.service",
	fx.Provide(service.NewService),
)
