package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Necoverse/awa/internal/cache"
	"github.com/Necoverse/awa/internal/config"
	"github.com/Necoverse/awa/internal/httpapi"
	"github.com/Necoverse/awa/internal/hub"
	"github.com/Necoverse/awa/internal/logging"
	"github.com/Necoverse/awa/internal/media"
	"github.com/Necoverse/awa/internal/pipeline"
	"github.com/Necoverse/awa/internal/responder"
	"github.com/Necoverse/awa/internal/store"
	"github.com/Necoverse/awa/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info().Int("port", cfg.Server.Port).Str("dsn", cfg.Store.DSN).Msg("starting awa")

	sqlStore, err := store.NewSQLiteStore(cfg.Store.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	historyCache, err := cache.New(cfg.Cache)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize cache")
	}
	cachedStore := store.NewCachedStore(sqlStore, historyCache, cfg.Cache.TTL, logger)

	frameStore, err := media.NewDirFrameStore(cfg.Server.StaticDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize frame store")
	}
	engines := media.NewEngines(cfg.Media, logger)

	pipe := pipeline.New(responder.Echo{}, engines, frameStore, cachedStore, cfg.Media, logger)
	sessionHub := hub.New(logger)
	wsServer := ws.NewServer(cfg, sessionHub, pipe, cachedStore, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api := httpapi.NewHandler(cachedStore, sessionHub, cfg.History.Limit, logger)
	api.Register(e, wsServer, cfg.Server.StaticDir)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	logger.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to shut down server gracefully")
	}

	sessionHub.CloseAll()
	if err := historyCache.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close cache")
	}
	if err := sqlStore.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close store")
	}

	logger.Info().Msg("stopped")
}
