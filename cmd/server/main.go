package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairelay/internal/client"
	"pairelay/internal/config"
	"pairelay/internal/handler"
	"pairelay/internal/infrastructure/database"
	"pairelay/internal/job"
	"pairelay/internal/repository"
	"pairelay/internal/resolver"
	"pairelay/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.Init(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	logger.Info().Str("path", cfg.Database.Path).Msg("database initialized")

	repo := repository.NewMessageRepository(db)
	res := resolver.NewCachedResolver(cfg.Resolver.CacheTTL())
	peer, err := client.NewPeerClient(cfg.Remote.URL, cfg.Remote.APIKey, res, cfg.Client.SendTimeout(), cfg.Client.HealthTimeout(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure peer client")
	}

	messages := service.NewMessageService(repo, peer, cfg, logger)
	h := handler.NewHandler(messages, cfg.System.Name, cfg.System.Version, logger)
	router := handler.SetupRouter(h, cfg.Auth.APIKey, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := job.NewRetryScheduler(repo, peer, &cfg.Retry, logger)
	go scheduler.Start(ctx)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Str("system", cfg.System.Name).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown error")
	}

	scheduler.Stop()
	cancel()

	if err := database.Close(db); err != nil {
		logger.Warn().Err(err).Msg("database close error")
	}
	logger.Info().Msg("shutdown complete")
}
