package main

import (
	"os/signal"
	"syscall"

	"opsboard/internal/changefeed"
	"opsboard/internal/database"

	"github.com/spf13/cobra"
)

func newRelayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Forward PostgreSQL change notifications to Redis",
		Long: `Listen on the PostgreSQL change channels and republish every event on Redis.

API replicas started with FEED_DRIVER=redis then share this single listener.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := a.openRedis(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			src := changefeed.NewPostgres(a.cfg.DB.ConnectionString(), a.log.Component("changefeed"))
			dst := changefeed.NewRedis(client, a.log.Component("changefeed"))

			a.log.Info().Strs("tables", database.WatchedTables).Msg("relay started")
			changefeed.Relay(ctx, src, dst, database.WatchedTables, a.backoff(), a.log.Component("relay"))
			return nil
		},
	}
}
