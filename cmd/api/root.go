package main

import (
	"context"
	"fmt"

	"opsboard/internal/changefeed"
	"opsboard/internal/database"
	"opsboard/pkg/config"
	"opsboard/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// app holds what every subcommand needs, filled in before the subcommand runs.
type app struct {
	cfg *config.Config
	log *logger.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "opsboard",
		Short: "Two-stage approvals with live role dashboards",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
			return nil
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newMigrateCommand(a))
	cmd.AddCommand(newRelayCommand(a))
	cmd.AddCommand(newWatchCommand(a))

	return cmd
}

func (a *app) openDB() (*gorm.DB, error) {
	db, err := database.NewConnection(a.cfg.DB.ConnectionString(), a.log.Component("gorm"))
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

func (a *app) openRedis(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Address,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", a.cfg.Redis.Address, err)
	}
	return client, nil
}

func (a *app) backoff() changefeed.Backoff {
	return changefeed.Backoff{Min: a.cfg.Feed.RetryMin, Max: a.cfg.Feed.RetryMax}
}

// feed picks where dashboards read changes from. The publisher is only set for the in-process
// driver; with postgres the trigger publishes, with redis the relay command does.
func (a *app) feed(ctx context.Context) (changefeed.Source, changefeed.Publisher, func(), error) {
	switch a.cfg.Feed.Driver {
	case config.FeedMemory:
		m := changefeed.NewMemory()
		return m, m, func() {}, nil
	case config.FeedRedis:
		client, err := a.openRedis(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		return changefeed.NewRedis(client, a.log.Component("changefeed")), nil, func() { _ = client.Close() }, nil
	default:
		return changefeed.NewPostgres(a.cfg.DB.ConnectionString(), a.log.Component("changefeed")), nil, func() {}, nil
	}
}
