package billing

import (
	"github.com/tagihin/tagihin/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.orchestrator",
	fx.Provide(service.NewOrchestrator),
)
