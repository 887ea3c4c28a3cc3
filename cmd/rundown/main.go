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
	"golang.org/x/sync/errgroup"

	"github.com/rundownhq/rundown/internal/config"
	"github.com/rundownhq/rundown/internal/genai"
	"github.com/rundownhq/rundown/internal/graph"
	"github.com/rundownhq/rundown/internal/msauth"
	"github.com/rundownhq/rundown/internal/secret"
	"github.com/rundownhq/rundown/internal/server"
	"github.com/rundownhq/rundown/internal/service"
	"github.com/rundownhq/rundown/internal/store"
	"github.com/rundownhq/rundown/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.PrettyLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cipher, err := secret.LoadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return err
	}

	authClient := msauth.NewClient(cfg.MSClientID, cfg.MSClientSecret, cfg.MSTenantID, cfg.RedirectURI)

	credStore, err := store.NewCredentialStore(cfg.TokensDir, cipher, authClient)
	if err != nil {
		return err
	}
	prefStore, err := store.NewPreferenceStore(cfg.TokensDir)
	if err != nil {
		return err
	}

	graphClient := graph.NewClient()
	extractor := genai.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)

	lookback := time.Duration(cfg.LookbackHours) * time.Hour
	reconciler := service.NewReconciler(
		credStore,
		prefStore,
		graphClient,
		extractor,
		cfg.SentinelLabel,
		lookback,
	)
	w := watcher.New(reconciler, time.Duration(cfg.PollInterval)*time.Minute)

	srv := server.New(
		server.NewSessionManager(cfg.SessionSecret),
		authClient,
		credStore,
		prefStore,
		graphClient,
		lookback,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("starting web server")
		if err := srv.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return w.Start(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("application stopped")
	return nil
}
