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

	"github.com/jonboulle/clockwork"

	"trovr-backend/internal/config"
	"trovr-backend/internal/database"
	"trovr-backend/internal/liveness"
	"trovr-backend/internal/logging"
	"trovr-backend/internal/notify"
	"trovr-backend/internal/registry"
	"trovr-backend/internal/router"
	"trovr-backend/internal/scan"
	"trovr-backend/internal/services"
	"trovr-backend/internal/session"
	"trovr-backend/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("❌ FATAL ERROR: invalid configuration", "err", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	slog.Info("═══════════════════════════════════════════════════════════════════")
	slog.Info("🚀 TROVR BACKEND SERVER STARTING")
	slog.Info("═══════════════════════════════════════════════════════════════════")

	if err := run(cfg); err != nil {
		slog.Error("❌ FATAL ERROR", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	slog.Info("🔄 Running database migrations...")
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	slog.Info("✅ Database migrations completed")

	store := database.NewStore(db)

	slog.Info("🌱 Seeding database with initial data...")
	if err := database.SeedAdmin(ctx, store, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("admin seeding failed: %w", err)
	}
	if err := database.SeedFile(ctx, store, cfg.CatalogFile, database.SeedCatalog); err != nil {
		return fmt.Errorf("catalog seeding failed: %w", err)
	}
	if err := database.SeedFile(ctx, store, cfg.BinsFile, database.SeedBins); err != nil {
		return fmt.Errorf("bins seeding failed: %w", err)
	}

	clk := clockwork.NewRealClock()

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run(ctx)
	slog.Info("✅ WebSocket hub started")

	notifier := notify.New(hub, initFCM(ctx, cfg), store)

	reg := registry.New(store, clk)
	sessions := session.New(store, reg, clk, cfg.ClaimPolicy, notifier)
	if _, err := sessions.Restore(ctx); err != nil {
		return fmt.Errorf("restoring sessions failed: %w", err)
	}
	processor := scan.New(store, sessions, reg, clk, cfg.RejectOfflineScans)

	monitor := liveness.New(reg, clk, cfg.HeartbeatTimeout, cfg.SweepInterval, notifier)
	go monitor.Run(ctx)

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: router.New(router.Deps{
			Store:     store,
			Registry:  reg,
			Sessions:  sessions,
			Processor: processor,
			Monitor:   monitor,
			Hub:       hub,
			JWTSecret: cfg.JWTSecret,
			BinAPIKey: cfg.BinAPIKey,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("🌐 Server listening", "port", cfg.Port,
			"claim_policy", cfg.ClaimPolicy, "heartbeat_timeout", cfg.HeartbeatTimeout)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	notifier.Wait()
	slog.Info("👋 Server stopped")
	return nil
}

// initFCM returns nil when push notifications are not configured, which the
// notifier treats as websocket-only.
func initFCM(ctx context.Context, cfg config.Config) notify.Pusher {
	if cfg.FirebaseCredentialsBase64 != "" {
		fcm, err := services.NewFCMServiceFromBase64(ctx, cfg.FirebaseCredentialsBase64)
		if err != nil {
			slog.Warn("⚠️  Failed to initialize FCM from base64 (push notifications disabled)", "err", err)
			return nil
		}
		slog.Info("✅ Firebase Cloud Messaging initialized from base64 credentials")
		return fcm
	}

	if cfg.FirebaseCredentialsFile == "" {
		slog.Info("ℹ️  FCM not configured (push notifications disabled)")
		return nil
	}
	fcm, err := services.NewFCMService(ctx, cfg.FirebaseCredentialsFile)
	if err != nil {
		slog.Warn("⚠️  Failed to initialize FCM from file (push notifications disabled)", "err", err)
		return nil
	}
	slog.Info("✅ Firebase Cloud Messaging initialized from file")
	return fcm
}
