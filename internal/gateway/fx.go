package gateway

import (
	"github.com/tagihin/tagihin/internal/config"
	"github.com/tagihin/tagihin/internal/gateway/domain"
	"github.com/tagihin/tagihin/internal/gateway/tripay"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(func(cfg config.Config, log *zap.Logger) domain.Gateway {
		return tripay.NewClient(cfg, log)
	}),
)
