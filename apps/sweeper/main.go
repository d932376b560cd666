// The sweeper binary runs the renewal and expiration passes without the HTTP
// API, for deployments that schedule billing separately from serving.
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
	"github.com/smallbiznis/rebill/internal/subscription"
	"github.com/smallbiznis/rebill/internal/sweeper"
	"github.com/smallbiznis/rebill/internal/transaction"
	"github.com/smallbiznis/rebill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		plan.Module,
		gateway.Module,
		transaction.Module,
		notifier.Module,
		subscription.Module,

		sweeper.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
