package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/orgstream/orgstream/internal/clock"
	"github.com/orgstream/orgstream/internal/config"
	"github.com/orgstream/orgstream/internal/denormalizer"
	"github.com/orgstream/orgstream/internal/eventstore"
	"github.com/orgstream/orgstream/internal/messaging"
	"github.com/orgstream/orgstream/internal/migration"
	"github.com/orgstream/orgstream/internal/observability/metrics"
	"github.com/orgstream/orgstream/internal/ordercontrol"
	"github.com/orgstream/orgstream/internal/organization"
	"github.com/orgstream/orgstream/internal/readmodel"
	"github.com/orgstream/orgstream/internal/redisconn"
	"github.com/orgstream/orgstream/internal/server"
	"github.com/orgstream/orgstream/pkg/db"
	"github.com/orgstream/orgstream/pkg/log"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redisconn.Module,
		migration.Module,
		metrics.Module,

		// Event pipeline
		eventstore.Module,
		organization.Module,
		messaging.Module,
		ordercontrol.Module,
		readmodel.Module,
		denormalizer.Module,

		// HTTP surface
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
