package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/blockevidence/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции схемы и таблиц очереди",
	RunE: withApp(false, func(cmd *cobra.Command, a *app) error {
		if err := database.Migrate(a.cfg, a.logger); err != nil {
			return err
		}

		pool, err := database.Connect(cmd.Context(), a.cfg, a.logger)
		if err != nil {
			return fmt.Errorf("подключение к PostgreSQL: %w", err)
		}
		defer pool.Close()

		if err := database.MigrateQueue(cmd.Context(), pool, a.logger); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return err
	}),
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
