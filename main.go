// main.go
//
// Entry point for the applegame server.
// Loads configuration, sets up logging, opens the database, and serves the
// HTTP/WebSocket API until SIGINT or SIGTERM.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/applegame/internal/clock"
	"github.com/robalobadob/applegame/internal/config"
	"github.com/robalobadob/applegame/internal/httpserver"
	"github.com/robalobadob/applegame/internal/records"
	"github.com/robalobadob/applegame/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer db.Close()

	mem, err := store.NewMemoryStore(cfg.MaxSessions)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session store")
	}

	if cfg.TickMode == config.TickServer {
		ticker := clock.NewTicker(mem, clock.TickRate, log.With().Str("component", "clock").Logger())
		go ticker.Run(ctx)
	}

	srv := httpserver.New(ctx, cfg, mem, records.NewStore(db))
	hs := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
		// journal rounds still in progress before db.Close runs
		srv.CloseSessions()
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("tickMode", string(cfg.TickMode)).
		Int("rows", cfg.BoardRows).
		Int("cols", cfg.BoardCols).
		Msg("starting applegame server")
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server exited")
	}
	<-stopped
	log.Info().Msg("server stopped")
}

// setupLogging applies LOG_LEVEL and LOG_FORMAT to the global logger.
func setupLogging(cfg config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
