package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/fieldpulse/repboard/internal/clock"
	"github.com/fieldpulse/repboard/internal/config"
	"github.com/fieldpulse/repboard/internal/migration"
	"github.com/fieldpulse/repboard/internal/server"
	"github.com/fieldpulse/repboard/pkg/db"
	"github.com/fieldpulse/repboard/pkg/log"
	"github.com/fieldpulse/repboard/pkg/telemetry"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and the domain modules it pulls in
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
