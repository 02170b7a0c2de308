package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hourbook/hourbook/internal/config"
	"github.com/hourbook/hourbook/internal/core"
	"github.com/hourbook/hourbook/internal/logging"
	"github.com/hourbook/hourbook/internal/store"
	"github.com/hourbook/hourbook/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment itself may be fully configured.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.Migrate {
		if err := store.Migrate(ctx, cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("migrations up to date")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	st := store.New(pool)

	creds, err := cfg.Auth.Credentials()
	if err != nil {
		return err
	}
	credMap := make(map[string]uuid.UUID, len(creds))
	for _, c := range creds {
		credMap[c.APIKey] = c.UserID
		if err := st.UpsertUser(ctx, &core.User{
			ID:        c.UserID,
			Name:      c.Name,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
	}
	logger.Info("users materialized", "count", len(creds))

	startDay, err := cfg.Import.StartWeekday()
	if err != nil {
		return err
	}
	period := core.PeriodConfig{
		StartDay:      startDay,
		DeadlineGrace: cfg.Import.DeadlineGrace,
		WarningWindow: cfg.Import.WarningWindow,
		MaxBackdate:   time.Duration(cfg.Import.MaxBackdateDays) * 24 * time.Hour,
	}

	limiter := core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWait)
	svc := core.NewService(st, limiter, period, nil)

	server := web.New(cfg.Server.Addr(), cfg.Server, web.Options{
		Service:      svc,
		Logger:       logger,
		Credentials:  credMap,
		Rate:         cfg.Rate,
		Ping:         pool.Ping,
		MaxBodyBytes: cfg.Import.MaxBodyBytes,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	// Let in-flight imports finish committing before the pool closes.
	if err := limiter.WaitForDrain(shutdownCtx); err != nil {
		logger.Warn("imports still active at shutdown", "error", err)
	}

	logger.Info("bye")
	return nil
}
