package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/vidstream-backend/internal/app"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run enrichment and mirror jobs",
		Long:  "Runs the Temporal worker when TEMPORAL_ADDRESS is set, otherwise the database-polling worker pool.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.StartWorkers(ctx); err != nil {
				return err
			}
			a.Log.Info("Worker running", "job_types", a.Services.JobRegistry.Types())
			<-ctx.Done()
			return nil
		},
	}
}
