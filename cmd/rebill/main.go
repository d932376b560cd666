package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rebill/internal/clock"
	"github.com/smallbiznis/rebill/internal/config"
	"github.com/smallbiznis/rebill/internal/gateway"
	"github.com/smallbiznis/rebill/internal/logger"
	"github.com/smallbiznis/rebill/internal/migration"
	"github.com/smallbiznis/rebill/internal/notifier"
	"github.com/smallbiznis/rebill/internal/plan"
	"github.com/smallbiznis/rebill/internal/server"
	"github.com/smallbiznis/rebill/internal/subscription"
	"github.com/smallbiznis/rebill/internal/sweeper"
	"github.com/smallbiznis/rebill/internal/transaction"
	"github.com/smallbiznis/rebill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Billing domains
		plan.Module,
		gateway.Module,
		transaction.Module,
		notifier.Module,
		subscription.Module,

		// Surfaces
		server.Module,
		sweeper.Module,
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
