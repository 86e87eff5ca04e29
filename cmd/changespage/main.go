package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/changespage/changespage/internal/clock"
	"github.com/changespage/changespage/internal/config"
	"github.com/changespage/changespage/internal/migration"
	"github.com/changespage/changespage/internal/observability"
	"github.com/changespage/changespage/internal/scheduler"
	"github.com/changespage/changespage/internal/server"
	"github.com/changespage/changespage/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
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
