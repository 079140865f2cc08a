// cmd/recoveryd/main.go
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deleguard/recovery-go/internal/appconfig"
	"github.com/deleguard/recovery-go/internal/authz"
	"github.com/deleguard/recovery-go/internal/config"
	"github.com/deleguard/recovery-go/internal/keycodec"
	"github.com/deleguard/recovery-go/internal/replay"
	"github.com/deleguard/recovery-go/internal/server"
	"github.com/deleguard/recovery-go/internal/store"
)

// adminIssuerName is the "iss" claim stamped into admin bearer tokens minted
// by this process. There is exactly one recoveryd per deployment, so a
// literal name is sufficient.
const adminIssuerName = "recoveryd"

func main() {
	mintAdminToken := flag.String("mint-admin-token", "", "mint an admin bearer token for the given subject and exit, instead of starting the server")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := appconfig.Load()
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	authority, err := authz.NewAuthority(cfg.AdminSigningKey, adminIssuerName)
	if err != nil {
		logger.Error("admin authority setup failed", "error", err)
		os.Exit(1)
	}

	if *mintAdminToken != "" {
		token, err := authority.Issue(*mintAdminToken)
		if err != nil {
			logger.Error("mint admin token failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	st, db, err := openStore(cfg)
	if err != nil {
		logger.Error("storage setup failed", "error", err)
		os.Exit(1)
	}

	guard := replay.Guard(replay.NewMemory())
	if db != nil {
		guard = replay.NewPostgres(db)
	}

	if err := bootstrapSigningKey(context.Background(), st, cfg.APSigningKeyPEM); err != nil {
		logger.Error("signing key bootstrap failed", "error", err)
		os.Exit(1)
	}

	fetcher := config.NewFetcher(nil)
	handler := server.New(cfg, st, guard, authority, fetcher, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           handler.MetricsRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("recoveryd starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()
	go func() {
		logger.Info("recoveryd metrics starting", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Error("metrics shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

// openStore selects the in-memory or PostgreSQL-backed Store depending on
// whether a database DSN was configured, running migrations in the
// PostgreSQL case. It also returns the underlying *sql.DB, non-nil only
// when PostgreSQL is in use, so the caller can share the pool with the
// replay guard.
func openStore(cfg appconfig.Config) (store.Store, *sql.DB, error) {
	if cfg.DatabaseDSN == "" {
		return store.NewMemory(), nil, nil
	}

	st, err := store.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	pooled, ok := st.(interface{ DB() *sql.DB })
	if !ok {
		return nil, nil, fmt.Errorf("postgres store does not expose its connection pool")
	}
	db := pooled.DB()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.MigratePostgres(ctx, db); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	return st, db, nil
}

// bootstrapSigningKey loads the AP's current token-signing key into the
// store on first startup, if the rotation is empty. Operators add
// subsequent keys through the admin key-rotation endpoint, not by changing
// this environment variable.
func bootstrapSigningKey(ctx context.Context, st store.Store, pemBytes []byte) error {
	if _, err := st.GetCurrentSigningKey(ctx); err == nil {
		return nil
	}

	priv, err := keycodec.ParsePEMPrivateKey(pemBytes)
	if err != nil {
		return fmt.Errorf("parse RECOVERY_AP_SIGNING_KEY: %w", err)
	}
	pubPEM, err := keycodec.EncodePEMPublicKey(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("encode bootstrap public key: %w", err)
	}

	now := time.Now().UTC()
	return st.AddSigningKey(ctx, store.SigningKey{
		ID:          "bootstrap",
		PrivateKey:  pemBytes,
		PublicKey:   pubPEM,
		CreatedAt:   now,
		ActivatedAt: now,
		ExpiresAt:   now.AddDate(5, 0, 0),
	})
}
