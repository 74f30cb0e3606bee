package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/werkbank/fakturo/internal/clock"
	"github.com/werkbank/fakturo/internal/config"
	"github.com/werkbank/fakturo/internal/logger"
	"github.com/werkbank/fakturo/internal/migration"
	"github.com/werkbank/fakturo/internal/scheduler"
	"github.com/werkbank/fakturo/internal/server"
	"github.com/werkbank/fakturo/pkg/db"
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

		server.Module,
		scheduler.Module,
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
