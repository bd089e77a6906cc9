package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/LeventeLantos/message-sync/internal/api"
	"github.com/LeventeLantos/message-sync/internal/cache"
	"github.com/LeventeLantos/message-sync/internal/client"
	"github.com/LeventeLantos/message-sync/internal/config"
	"github.com/LeventeLantos/message-sync/internal/model"
	"github.com/LeventeLantos/message-sync/internal/notify"
	"github.com/LeventeLantos/message-sync/internal/repo"
	"github.com/LeventeLantos/message-sync/internal/service"
	"github.com/LeventeLantos/message-sync/internal/syncer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("message-sync stopped with error", "err", err)
		os.Exit(1)
	}
}

type stores struct {
	messages repo.MessageRepository
	settings repo.SettingsRepository
	close    func() error
}

func openStores(ctx context.Context, cfg config.DatabaseConfig) (stores, error) {
	if cfg.PostgresURL == "" {
		slog.Warn("POSTGRES_URL not set, messages are kept in memory")
		return stores{
			messages: repo.NewMemoryMessageRepo(),
			settings: repo.NewMemorySettingsRepo(),
			close:    func() error { return nil },
		}, nil
	}

	db, err := repo.OpenPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return stores{}, err
	}
	return stores{
		messages: repo.NewPostgresMessageRepo(db),
		settings: repo.NewPostgresSettingsRepo(db),
		close:    db.Close,
	}, nil
}

type caches interface {
	cache.MessageCache
	cache.ReportCache
}

func openCache(ctx context.Context, cfg config.RedisConfig) (caches, func() error, error) {
	if !cfg.Enabled {
		return cache.NewMemoryCache(), func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return cache.NewRedisCache(rdb, cfg.TTL), rdb.Close, nil
}

// seedSettings stores provider credentials from the environment unless the
// settings store already has them.
func seedSettings(ctx context.Context, settings repo.SettingsRepository, p config.ProviderConfig) error {
	if p.Token == "" || p.Phone == "" {
		return nil
	}
	current, err := settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if current.Configured() {
		return nil
	}
	_, err = settings.Put(ctx, model.ProviderSettings{
		Token:         p.Token,
		PhoneNumber:   p.Phone,
		Enabled:       true,
		Notifications: current.Notifications,
	})
	return err
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	cc, closeCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = closeCache() }()

	if err := seedSettings(ctx, st.settings, cfg.Provider); err != nil {
		return err
	}

	provider := client.NewProviderClient(cfg.Provider.BaseURL, cfg.Provider.Timeout)
	hub := notify.NewHub(cfg.CORS.AllowedOrigins)

	manager := syncer.NewManager(syncer.Deps{
		Client:   provider,
		Settings: st.settings,
		Store:    st.messages,
		Reports:  cc,
		Notifier: hub,
	}, syncer.Config{
		PollInterval:  cfg.Sync.PollInterval,
		Tolerance:     cfg.Sync.Tolerance,
		BackfillDelay: cfg.Sync.BackfillDelay,
		MaxPages:      cfg.Sync.MaxPages,
		PageDelay:     cfg.Sync.PageDelay,
	})
	defer manager.StopAll()

	hub.OnPresence(
		func(userID string) {
			if _, err := manager.Start(userID); err != nil {
				slog.Error("start sync session failed", "user_id", userID, "err", err)
			}
		},
		func(userID string) { manager.Stop(userID) },
	)

	sender := service.NewSender(provider, st.settings, st.messages, cfg.Sender.ContentMax).WithCache(cc)

	h := api.NewHandler(api.Services{
		Messages: st.messages,
		Settings: st.settings,
		Sessions: manager,
		Sender:   sender,
		Reports:  cc,
		View:     hub,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           newHTTPHandler(api.Router(h, api.NewAuthenticator(cfg.Auth.JWTSecret)), cfg.CORS),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("message-sync listening",
			"addr", cfg.Server.Address,
			"poll_interval", cfg.Sync.PollInterval.String(),
			"postgres", cfg.Database.PostgresURL != "",
			"redis", cfg.Redis.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		slog.Info("shutting down")
		manager.StopAll()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newHTTPHandler(router http.Handler, cfg config.CORSConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
	})
	return loggingMiddleware(c.Handler(router))
}
