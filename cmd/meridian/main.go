package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tallyops/meridian/internal/allocation"
	"github.com/tallyops/meridian/internal/bucket"
	"github.com/tallyops/meridian/internal/cache"
	"github.com/tallyops/meridian/internal/catalog"
	"github.com/tallyops/meridian/internal/clock"
	"github.com/tallyops/meridian/internal/config"
	"github.com/tallyops/meridian/internal/contractline"
	"github.com/tallyops/meridian/internal/logger"
	"github.com/tallyops/meridian/internal/migration"
	"github.com/tallyops/meridian/internal/observability"
	"github.com/tallyops/meridian/internal/proration"
	"github.com/tallyops/meridian/internal/rate"
	"github.com/tallyops/meridian/internal/resolver"
	"github.com/tallyops/meridian/internal/server"
	"github.com/tallyops/meridian/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		migration.Module,

		// Functional domains
		catalog.Module,
		contractline.Module,
		rate.Module,
		bucket.Module,
		resolver.Module,
		proration.Module,
		allocation.Module,

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
