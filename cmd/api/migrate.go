package main

import (
	"opsboard/internal/database"

	"github.com/spf13/cobra"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables and install the change-feed triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			a.log.Info().Strs("tables", database.WatchedTables).Msg("migration complete")
			return nil
		},
	}
}
