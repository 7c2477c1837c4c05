package main

import (
	"github.com/smallbiznis/replyflow/internal/config"
	"github.com/smallbiznis/replyflow/internal/migration"
	obslogger "github.com/smallbiznis/replyflow/internal/observability/logger"
	"github.com/smallbiznis/replyflow/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cfg := config.Load()
			conn, err := db.New(nil, cfg, obslogger.DefaultGormLoggerConfig(), log)
			if err != nil {
				return err
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := migration.Run(conn, cfg.DBType); err != nil {
				return err
			}
			log.Info("migrations applied", zap.String("dialect", cfg.DBType))
			return nil
		},
	}
}
