package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"opsboard/internal/handler"
	"opsboard/internal/repository"
	"opsboard/internal/service"
	"opsboard/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and role dashboards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := a.openDB()
	if err != nil {
		return err
	}
	source, publisher, closeFeed, err := a.feed(ctx)
	if err != nil {
		return err
	}
	defer closeFeed()

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(a.log.Zerolog())
	go wsHub.Run(ctx)

	// Set up dependencies (Repository -> Service -> Handler)
	approvalRepo := repository.NewApprovalRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	approvalService := service.NewApprovalService(approvalRepo, auditRepo, txManager, publisher, a.log.Zerolog())
	orderService := service.NewOrderService(orderRepo, auditRepo, txManager, publisher, a.log.Zerolog())
	auditService := service.NewAuditService(auditRepo)
	dashboards := service.NewDashboardService(ctx, service.DashboardConfig{
		Source:       source,
		ApprovalRepo: approvalRepo,
		OrderRepo:    orderRepo,
		Notifier:     wsHub,
		Backoff:      a.backoff(),
		Logger:       a.log.Component("dashboard"),
	})
	defer dashboards.Close()

	secret := []byte(a.cfg.JWT.Secret)

	if a.cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = a.cfg.HTTP.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	// WebSocket endpoint; the role's dashboard is started before the client listens
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, secret, func(role string) error {
			_, err := dashboards.Dashboard(role)
			return err
		})
	})

	// API Routing
	handler.NewApprovalHandler(approvalService).RegisterRoutes(router.Group(""), secret)
	handler.NewOrderHandler(orderService).RegisterRoutes(router.Group(""), secret)
	handler.NewAuditHandler(auditService).RegisterRoutes(router.Group(""), secret)
	handler.NewDashboardHandler(dashboards).RegisterRoutes(router.Group(""), secret)

	srv := &http.Server{Addr: a.cfg.HTTP.Addr(), Handler: router}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Str("feed", a.cfg.Feed.Driver).Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
