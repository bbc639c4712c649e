package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/vidstream-backend/internal/data/db"
	"github.com/yungbote/vidstream-backend/internal/platform/envutil"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
)

func newMigrateCommand() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(envutil.String("LOG_MODE", "development"))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			pg, err := db.NewPostgresService(log, dsn)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := db.AutoMigrateAll(pg.DB()); err != nil {
				return err
			}
			log.Info("Migration complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres DSN (defaults to POSTGRES_* env)")
	return cmd
}
