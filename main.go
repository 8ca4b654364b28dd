package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tagihin/tagihin/internal/audit"
	"github.com/tagihin/tagihin/internal/billing"
	"github.com/tagihin/tagihin/internal/client"
	"github.com/tagihin/tagihin/internal/clock"
	"github.com/tagihin/tagihin/internal/config"
	"github.com/tagihin/tagihin/internal/gateway"
	"github.com/tagihin/tagihin/internal/invoice"
	"github.com/tagihin/tagihin/internal/logger"
	"github.com/tagihin/tagihin/internal/migration"
	"github.com/tagihin/tagihin/internal/notification"
	"github.com/tagihin/tagihin/internal/ratelimit"
	"github.com/tagihin/tagihin/internal/scheduler"
	"github.com/tagihin/tagihin/internal/server"
	"github.com/tagihin/tagihin/internal/settings"
	"github.com/tagihin/tagihin/pkg/db"
	"go.uber.org/fx"
)

// The monolith runs the HTTP API and the scheduler in one process.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,

		audit.Module,
		settings.Module,
		client.Module,
		invoice.Module,
		gateway.Module,
		notification.Module,
		billing.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
