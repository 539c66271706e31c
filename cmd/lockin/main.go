package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lockin-app/lockin/internal/config"
	"github.com/lockin-app/lockin/internal/gateway"
	"github.com/lockin-app/lockin/internal/ledger"
	"github.com/lockin-app/lockin/internal/notify"
	"github.com/lockin-app/lockin/internal/pod"
	"github.com/lockin-app/lockin/internal/progress"
	"github.com/lockin-app/lockin/internal/room"
	"github.com/lockin-app/lockin/internal/timer"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	setLogLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up store")
	}
	defer cleanup()

	notifier, closeNotifier := setupNotifier(cfg)
	defer closeNotifier()

	registry := pod.NewRegistry()
	hub := room.NewHub(cfg.RoomBuffer)
	ledg := ledger.New(store, ledger.WithNotifier(notifier))

	authority := timer.NewAuthority(hub, registry,
		timer.PhaseDurations{FocusSeconds: cfg.FocusSeconds, BreakSeconds: cfg.BreakSeconds},
		timer.WithHooks(timer.Hooks{
			PodLocked: func(code string) {
				if p, err := registry.GetPod(code); err == nil {
					notifier.PodLockedIn(code, p.Members)
				}
			},
		}),
	)
	defer authority.Shutdown()

	svc := gateway.NewService(registry, hub, authority, ledg, gateway.InsecureAuthenticator{}, gateway.DefaultConnectionConfig())

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      c.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	log.Info().Msg("lockin shutdown complete")
}

func setupStore(ctx context.Context, cfg config.Config) (progress.Store, func(), error) {
	switch cfg.StoreKind {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DB.DSN())
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info().Str("database", cfg.DB.Database).Msg("connected to postgres")
		return progress.NewPostgresStore(pool), pool.Close, nil
	default:
		log.Info().Msg("using in-memory store")
		return progress.NewMemoryStore(), func() {}, nil
	}
}

func setupNotifier(cfg config.Config) (notify.Notifier, func()) {
	if cfg.NATSURL == "" {
		return notify.Nop{}, func() {}
	}
	n, err := notify.NewNATSNotifier(cfg.NATSURL, cfg.NATSPrefix)
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable, notifications disabled")
		return notify.Nop{}, func() {}
	}
	log.Info().Str("nats_url", cfg.NATSURL).Msg("notifications enabled")
	return n, n.Close
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
