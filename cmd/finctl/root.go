package main

import (
	"crm-backend/internal/config"
	"crm-backend/internal/database"
	"crm-backend/internal/server"
	"crm-backend/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var version = "1.0.0"

// dbOpener connects to the finance database described by cfg.
type dbOpener func(cfg *config.Config) (*gorm.DB, error)

func openPostgres(cfg *config.Config) (*gorm.DB, error) {
	return database.NewConnection(cfg.DB)
}

// cliEnv is populated by the root command before any subcommand runs.
type cliEnv struct {
	cfg *config.Config
	db  *gorm.DB
	app *server.App
	log *zap.Logger
}

func newRootCmd(open dbOpener) *cobra.Command {
	env := &cliEnv{}

	root := &cobra.Command{
		Use:   "finctl",
		Short: "finctl - operational commands for the CRM finance service",
		Long: `finctl runs maintenance tasks against the finance database: schema
migration, invoice status reconciliation and invoice number allocation.

It reads the same configs/.env and environment variables as the API server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logger.InitLogger(&logger.LogConfig{
				Level:       cfg.LogLevel,
				Environment: cfg.Server.Env,
				ServiceName: config.ServiceName + "-cli",
			}); err != nil {
				return err
			}
			db, err := open(cfg)
			if err != nil {
				return err
			}
			env.cfg = cfg
			env.db = db
			env.app = server.NewApp(db, cfg, nil, nil)
			env.log = logger.GetLogger().With(zap.String("command", cmd.Name()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	root.AddCommand(newMigrateCmd(env), newReconcileCmd(env), newNextNumberCmd(env))
	return root
}
