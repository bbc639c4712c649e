package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/vidstream-backend/internal/platform/envutil"
	"github.com/yungbote/vidstream-backend/internal/platform/logger"
	"github.com/yungbote/vidstream-backend/internal/platform/redis"
)

func newEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Tail job lifecycle events from the Redis bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log, err := logger.New(envutil.String("LOG_MODE", "development"))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			rdb, err := redis.NewClient()
			if err != nil {
				return err
			}
			bus, err := redis.NewEventBus(log, rdb)
			if err != nil {
				_ = rdb.Close()
				return err
			}
			defer bus.Close()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			if err := bus.StartForwarder(ctx, func(m redis.Message) {
				_ = enc.Encode(m)
			}); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
}
