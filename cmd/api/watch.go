package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"opsboard/internal/model"
	"opsboard/internal/repository"
	"opsboard/internal/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// logNotifier writes dashboard pushes to the log.
type logNotifier struct {
	log zerolog.Logger
}

func (n logNotifier) Push(role, actor, event string, data any) {
	n.log.Info().Str("role", role).Str("actor", actor).Str("event", event).Interface("data", data).Msg("push")
}

func newWatchCommand(a *app) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run one role's dashboard and log what it would push",
		Example: `  opsboard watch --role manager
  FEED_DRIVER=redis opsboard watch --role procurement`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !model.ValidRole(role) {
				return fmt.Errorf("invalid role %q: must be one of %v", role, model.Roles)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := a.openDB()
			if err != nil {
				return err
			}
			source, _, closeFeed, err := a.feed(ctx)
			if err != nil {
				return err
			}
			defer closeFeed()

			dashboards := service.NewDashboardService(ctx, service.DashboardConfig{
				Source:       source,
				ApprovalRepo: repository.NewApprovalRepository(db),
				OrderRepo:    repository.NewOrderRepository(db),
				Notifier:     logNotifier{log: a.log.Component("watch")},
				Backoff:      a.backoff(),
				Logger:       a.log.Component("dashboard"),
			})
			defer dashboards.Close()

			d, err := dashboards.Dashboard(role)
			if err != nil {
				return err
			}
			select {
			case <-d.Ready():
				a.log.Info().Str("role", role).Int("requests", len(d.GetAll())).Int("orders", len(d.Orders())).Msg("dashboard loaded")
			case <-ctx.Done():
				return nil
			}

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", model.RoleAdmin, "dashboard role to follow")
	return cmd
}
