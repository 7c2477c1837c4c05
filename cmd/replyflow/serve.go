package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/replyflow/internal/analytics"
	"github.com/smallbiznis/replyflow/internal/automation"
	"github.com/smallbiznis/replyflow/internal/clock"
	"github.com/smallbiznis/replyflow/internal/compiler"
	"github.com/smallbiznis/replyflow/internal/config"
	"github.com/smallbiznis/replyflow/internal/dispatch"
	"github.com/smallbiznis/replyflow/internal/featuregate"
	"github.com/smallbiznis/replyflow/internal/interaction"
	"github.com/smallbiznis/replyflow/internal/migration"
	"github.com/smallbiznis/replyflow/internal/observability"
	"github.com/smallbiznis/replyflow/internal/ratelimit"
	"github.com/smallbiznis/replyflow/internal/response"
	"github.com/smallbiznis/replyflow/internal/ruleindex"
	"github.com/smallbiznis/replyflow/internal/server"
	"github.com/smallbiznis/replyflow/internal/user"
	"github.com/smallbiznis/replyflow/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the event dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				// Core Infrastructure
				config.Module,
				observability.Module,
				fx.Provide(RegisterSnowflake),
				db.Module,
				clock.Module,
				migration.Module,

				// Functional Domains
				featuregate.Module,
				user.Module,
				compiler.Module,
				ruleindex.Module,
				automation.Module,
				interaction.Module,
				ratelimit.Module,
				response.Module,
				dispatch.Module,
				analytics.Module,

				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
