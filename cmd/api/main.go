package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/report-service/internal/api/http"
	"github.com/spec-kit/report-service/internal/api/http/handlers"
	"github.com/spec-kit/report-service/internal/auth"
	"github.com/spec-kit/report-service/internal/config"
	"github.com/spec-kit/report-service/internal/events"
	"github.com/spec-kit/report-service/internal/observability"
	"github.com/spec-kit/report-service/internal/persistence"
	"github.com/spec-kit/report-service/internal/repository"
	"github.com/spec-kit/report-service/internal/service"
	"github.com/spec-kit/report-service/internal/worker"
	"github.com/spec-kit/report-service/internal/ws"
)

const reauthorizeInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.NewStore(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	ticketRepo := repository.NewTicketRepository(store)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Notifier:   dispatcher,
		Logger:     logger,
	})
	if err := ticketService.LoadUnresolved(ctx); err != nil {
		logger.Fatal("failed to load unresolved reports", zap.Error(err))
	}

	hub := ws.NewHub(logger, cfg.WS.FlushInterval(), worker.BuildRooms(ticketService)...)
	go hub.Run()

	broadcastWorker := worker.NewBroadcastWorker(hub, ticketService, metrics, logger)
	broadcastWorker.Start(dispatcher)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, redis),
		Auth:           handlers.NewAuthHandler(cfg.Auth, tokens),
		Reports:        handlers.NewReportsHandler(ticketService, redis),
		WS:             handlers.NewWSHandler(hub, tokens, logger),
		AuthMiddleware: authMiddleware,
	})

	// Re-check room permissions on a timer; tokens carry capabilities,
	// so a revoked admin drops out of rooms at the next sweep.
	go func() {
		ticker := time.NewTicker(reauthorizeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hub.ReauthorizeAll()
			}
		}
	}()

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	hub.Stop()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
