package main

import (
	"github.com/spf13/cobra"

	"github.com/svnlab/easy-file/db"
	"github.com/svnlab/easy-file/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		database, err := db.Open(cfg.Database.Path, logger.Logger)
		if err != nil {
			return err
		}
		defer database.Close()

		return db.Migrate(database, logger.Logger)
	},
}
