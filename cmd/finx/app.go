package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/finxlab/finx/internal/db"
	"github.com/finxlab/finx/internal/handlers"
	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/pubsub"
	"github.com/finxlab/finx/internal/repository/postgres"
	"github.com/finxlab/finx/internal/service/auth"
	"github.com/finxlab/finx/internal/service/auth/tokenmanager"
	"github.com/finxlab/finx/internal/service/market"
	"github.com/finxlab/finx/internal/service/portfolio"
	"github.com/finxlab/finx/internal/service/realtime"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	bridge  *realtime.Bridge
	sweeper *tokenmanager.Sweeper
	market  *market.MarketService
	broker  pubsub.Broker
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AccessSecret:  c.SecretKey,
		RefreshSecret: c.RefreshSecretKey,
	}, storage.Refresh())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{Logger: log}, tokenManager, storage.User())
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	// Shared event channel: redis when configured, in-memory otherwise
	var broker pubsub.Broker
	if c.RedisURL != "" {
		broker, err = pubsub.NewRedisBroker(ctx, c.RedisURL, log)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
	} else {
		log.Warn("REDIS_URL not set, using in-memory broker, events stay in this process")
		broker = pubsub.NewMemoryBroker()
	}

	bridge := realtime.NewBridge(broker, log)
	marketService := market.NewService(storage.Market(), bridge, log)
	portfolioService := portfolio.NewService(storage, bridge, log)

	wsHandler := handlers.NewWS(bridge, authService, log)

	mux := handlers.NewRouter(handlers.Services{
		Auth:      authService,
		Market:    marketService,
		Portfolio: portfolioService,
	}, wsHandler, log)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     log,
		bridge:     bridge,
		sweeper:    tokenmanager.NewSweeper(tokenManager, 0, log),
		market:     marketService,
		broker:     broker,
	}, nil
}

// Run starts the dispatch loop, the token sweeper and the http server,
// then closes everything gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	dispatchStopped, err := s.bridge.Run(srvCtx)
	if err != nil {
		return fmt.Errorf("error while starting dispatch loop. Err: %w", err)
	}
	sweeperStopped := s.sweeper.Run(srvCtx)

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err = httpServer.ListenAndServe()
	srvCtxCancel()

	<-idleConnsClosed
	<-dispatchStopped
	<-sweeperStopped

	s.market.Stop()
	if closeErr := s.broker.Close(); closeErr != nil {
		s.logger.Error("Failed to close broker", "error", closeErr)
	}

	return err
}
