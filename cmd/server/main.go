package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fbase "firebase.google.com/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/kperson/fire-sync/internal/api"
	"github.com/kperson/fire-sync/internal/config"
	"github.com/kperson/fire-sync/internal/crypto"
	"github.com/kperson/fire-sync/internal/identity"
	"github.com/kperson/fire-sync/internal/relay"
	"github.com/kperson/fire-sync/internal/store"
	"github.com/kperson/fire-sync/internal/trigger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize Firebase
	var app *fbase.App
	if cfg.UsesFirebase() {
		var opts []option.ClientOption
		if cfg.FirebaseCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
		}
		var err error
		app, err = fbase.NewApp(ctx, &fbase.Config{
			ProjectID:   cfg.FirebaseProjectID,
			DatabaseURL: cfg.FirebaseDatabaseURL,
		}, opts...)
		if err != nil {
			logger.Fatal().Err(err).Msg("firebase init failed")
		}
		logger.Info().Str("project", cfg.FirebaseProjectID).Msg("initialized Firebase")
	}

	// Initialize Redis
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		var err error
		redisClient, err = store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisClient.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Initialize tree store
	backend, err := openStore(ctx, cfg, redisClient, app)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.Store).Msg("store init failed")
	}
	defer backend.Close()
	logger.Info().Str("store", cfg.Store).Msg("store ready")

	var feed store.Feed
	if redisClient != nil {
		feed = store.NewRedisFeed(redisClient, cfg.RedisPrefix)
	} else {
		feed = store.NewMemoryFeed()
	}
	tree := store.Notify(store.Instrument(backend, cfg.Store), feed)

	issuer, err := newIssuer(ctx, cfg, app, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("identity", cfg.Identity).Msg("identity init failed")
	}

	// Start triggers
	rl := relay.New(tree, logger, relay.WithConcurrency(cfg.FanoutConcurrency))
	dispatcher := trigger.NewDispatcher(logger, cfg.TriggerTimeout)
	if err := rl.Register(dispatcher); err != nil {
		logger.Fatal().Err(err).Msg("trigger registration failed")
	}

	triggerCtx, stopTriggers := context.WithCancel(ctx)
	events, err := feed.Subscribe(triggerCtx)
	if err != nil {
		logger.Fatal().Err(err).Msg("event feed subscribe failed")
	}
	triggersDone := make(chan struct{})
	go func() {
		defer close(triggersDone)
		dispatcher.Run(triggerCtx, events)
	}()

	// Create router
	router := api.NewRouter(logger, api.Options{
		Store:              tree,
		Relay:              rl,
		Issuer:             issuer,
		Redis:              redisClient,
		RateLimitWhitelist: cfg.RateLimitWhitelist,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting fire-sync server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop reading events, then let running triggers finish.
	stopTriggers()
	select {
	case <-triggersDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("triggers still running at shutdown")
	}

	logger.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client, app *fbase.App) (store.Store, error) {
	switch cfg.Store {
	case "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		return store.NewRedisStore(redisClient, cfg.RedisPrefix), nil
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "sqlite":
		return store.NewSQLiteStore(ctx, cfg.SQLitePath)
	case "firebase":
		return store.NewFirebaseStore(ctx, app)
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func newIssuer(ctx context.Context, cfg *config.Config, app *fbase.App, logger zerolog.Logger) (identity.Issuer, error) {
	switch cfg.Identity {
	case "firebase":
		return identity.NewFirebaseIssuer(ctx, app)
	case "jwt":
		key := cfg.TokenSigningKey
		if key == "" {
			var err error
			key, err = crypto.GenerateSigningKey()
			if err != nil {
				return nil, err
			}
			logger.Warn().Msg("TOKEN_SIGNING_KEY not set, member tokens will not survive a restart")
		}
		return identity.NewJWTIssuer(key, "fire-sync", cfg.TokenTTL)
	}
	return nil, fmt.Errorf("unknown identity %q", cfg.Identity)
}
