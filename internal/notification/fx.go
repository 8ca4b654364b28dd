package notification

import (
	"github.com/tagihin/tagihin/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	fx.Provide(service.NewDispatcher),
)
