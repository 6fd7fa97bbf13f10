package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fieldops/internal/agent"
	"github.com/smallbiznis/fieldops/internal/approval"
	"github.com/smallbiznis/fieldops/internal/assignment"
	"github.com/smallbiznis/fieldops/internal/audit"
	"github.com/smallbiznis/fieldops/internal/auth"
	"github.com/smallbiznis/fieldops/internal/authorization"
	"github.com/smallbiznis/fieldops/internal/clock"
	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/smallbiznis/fieldops/internal/fleetmetrics"
	"github.com/smallbiznis/fieldops/internal/meter"
	"github.com/smallbiznis/fieldops/internal/migration"
	"github.com/smallbiznis/fieldops/internal/observability"
	"github.com/smallbiznis/fieldops/internal/ratelimit"
	"github.com/smallbiznis/fieldops/internal/reading"
	"github.com/smallbiznis/fieldops/internal/server"
	"github.com/smallbiznis/fieldops/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		audit.Module,
		meter.Module,
		agent.Module,
		assignment.Module,
		approval.Module,
		reading.Module,

		// Access and edge
		auth.Module,
		authorization.Module,
		ratelimit.Module,
		fleetmetrics.Module,
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
