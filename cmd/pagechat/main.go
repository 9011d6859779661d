package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pagechat/internal/chat"
	"pagechat/internal/config"
	"pagechat/internal/filters"
	"pagechat/internal/gateway"
	"pagechat/internal/httpapi"
	"pagechat/internal/metrics"
	"pagechat/internal/ratelimit"
	"pagechat/internal/secrets"
	"pagechat/internal/settings"
	"pagechat/internal/storage"
)

const usage = `usage: pagechat [command]

commands:
  serve                 run the HTTP API (default)
  seal <api key>        print the sealed form of an API key for settings.toml
  reseal <sealed key>   re-seal a key under the current master key
  records [limit]       list stored chat records (sql stores)
  records delete <url>  delete the stored chat record for a page
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg.Log.Level)

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		serve(cfg)
	case "seal":
		if err := seal(os.Stdout, cfg, args); err != nil {
			log.Fatal().Err(err).Msg("seal failed")
		}
	case "reseal":
		if err := reseal(os.Stdout, cfg, args); err != nil {
			log.Fatal().Err(err).Msg("reseal failed")
		}
	case "records":
		if err := records(os.Stdout, cfg, args); err != nil {
			log.Fatal().Err(err).Msg("records failed")
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func serve(cfg *config.Config) {
	log.Info().
		Str("listen_addr", cfg.HTTP.ListenAddr).
		Str("store", cfg.Store.Driver).
		Str("settings", cfg.Settings.Path).
		Int64("rate_per_hour", cfg.Rate.PerHour).
		Msg("starting pagechat")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sealer, err := newSealer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize sealer")
	}

	mgr, err := settings.NewManager(settings.Config{
		Path:   cfg.Settings.Path,
		Sealer: sealer,
		Logger: log.Logger.With().Str("component", "settings").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load settings")
	}

	errCh := make(chan error, 4)
	if cfg.Settings.Watch {
		go func() {
			if err := mgr.Watch(ctx, cfg.Settings.Debounce); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("settings watcher: %w", err)
			}
		}()
	}

	var rdb *redis.Client
	if cfg.Store.Driver == config.StoreRedis || cfg.Rate.PerHour > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
	}

	recordStore, closeStore, err := openRecords(ctx, cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer closeStore()

	m := metrics.Global()
	gw := gateway.New(gateway.Config{
		Registry:   mgr,
		HTTPClient: &http.Client{Timeout: cfg.HTTP.ClientTimeout},
		Logger:     log.Logger.With().Str("component", "gateway").Logger(),
		Metrics:    m,
	})

	var limiter httpapi.Limiter
	if cfg.Rate.PerHour > 0 {
		limiter = ratelimit.New(rdb, cfg.Redis.KeyPrefix, cfg.Rate.PerHour)
	}

	api := httpapi.New(httpapi.Config{
		Settings:    mgr,
		LLM:         gw,
		Records:     recordStore,
		Filters:     filters.New(log.Logger),
		Limiter:     limiter,
		Logger:      log.Logger.With().Str("component", "http").Logger(),
		Metrics:     m,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		HealthPath:  cfg.HTTP.HealthPath,
		MetricsPath: cfg.HTTP.MetricsPath,
		Timeout:     cfg.HTTP.ClientTimeout + 30*time.Second,
		MaxPages:    cfg.HTTP.MaxPages,
		PageIdleTTL: cfg.HTTP.PageIdleTTL,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func newSealer(cfg *config.Config) (*secrets.Sealer, error) {
	if len(cfg.Crypto.Keys) == 0 {
		log.Warn().Msg("no master keys configured, sealed api keys cannot be opened")
		return nil, nil
	}
	return secrets.NewSealer(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
}

func openRecords(ctx context.Context, cfg *config.Config, rdb *redis.Client) (chat.RecordStore, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreRedis:
		return storage.NewRedisRecords(rdb, cfg.Redis.KeyPrefix), func() {}, nil
	case config.StoreSQLite, config.StorePostgres:
		store, err := storage.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Store.AutoMigrate)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		log.Warn().Msg("using in-memory chat records, history is lost on restart")
		return chat.NewMemoryRecords(), func() {}, nil
	}
}

func seal(w io.Writer, cfg *config.Config, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("seal needs exactly one api key argument")
	}
	sealer, err := newSealer(cfg)
	if err != nil {
		return err
	}
	if sealer == nil {
		return secrets.ErrNoKeys
	}
	out, err := sealer.Seal(strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func reseal(w io.Writer, cfg *config.Config, args []string) error {
	if len(args) != 1 || !secrets.IsSealed(args[0]) {
		return errors.New("reseal needs exactly one sealed value")
	}
	sealer, err := newSealer(cfg)
	if err != nil {
		return err
	}
	if sealer == nil {
		return secrets.ErrNoKeys
	}
	out, err := sealer.Reseal(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func records(w io.Writer, cfg *config.Config, args []string) error {
	if cfg.Store.Driver != config.StoreSQLite && cfg.Store.Driver != config.StorePostgres {
		return fmt.Errorf("records needs a sql store, STORE_DRIVER is %q", cfg.Store.Driver)
	}
	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, cfg.Store.AutoMigrate)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 2 && args[0] == "delete" {
		if err := store.DeleteRecord(ctx, args[1]); err != nil {
			return err
		}
		log.Info().Str("url", args[1]).Msg("chat record deleted")
		return nil
	}

	var limit uint64 = 50
	if len(args) == 1 {
		if _, err := fmt.Sscan(args[0], &limit); err != nil {
			return fmt.Errorf("invalid limit %q", args[0])
		}
	}
	list, err := store.ListRecords(ctx, limit)
	if err != nil {
		return err
	}
	for _, r := range list {
		fmt.Fprintf(w, "%s\t%d sessions\tactive=%s\n", r.URL, r.SessionCount, r.ActiveSessionID)
	}
	return nil
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
