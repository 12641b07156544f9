// Command authd starts the credential-issuance HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/emberauth/emberauth"
	"github.com/emberauth/emberauth/internal/config"
	"github.com/emberauth/emberauth/internal/httpapi"
	"github.com/emberauth/emberauth/keyvault"
	"github.com/emberauth/emberauth/notify"
	"github.com/emberauth/emberauth/secrethash"
	"github.com/emberauth/emberauth/store/postgres"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	systemKey, err := cfg.SystemKey()
	if err != nil {
		logger.Fatal("system key", zap.Error(err))
	}
	vault, err := keyvault.New(systemKey)
	if err != nil {
		logger.Fatal("key vault", zap.Error(err))
	}

	if err := postgres.Migrate(ctx, cfg.DatabaseDSN); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis", zap.Error(err))
	}

	var sender notify.Sender
	if cfg.MailgunEndpoint != "" {
		sender, err = notify.NewMailgun(cfg.MailgunEndpoint, cfg.MailgunKey, cfg.MailFrom)
		if err != nil {
			logger.Fatal("mailgun", zap.Error(err))
		}
	} else {
		logger.Warn("no mailgun endpoint configured, outbound mail goes to the log")
		sender = &notify.LogSender{Logger: logger}
	}

	engineCfg := emberauth.Config{
		Issuer:         cfg.Issuer,
		PublicHost:     cfg.PublicHost,
		AccessTokenTTL: cfg.AccessTokenTTL,
		OTP:            emberauth.OTPConfig{Digits: cfg.OTPDigits, TTL: cfg.OTPTTL},
		Magic:          emberauth.MagicConfig{TTL: cfg.MagicTTL},
		Deletion:       emberauth.DeletionConfig{TTL: cfg.DeletionTTL},
		SecretHash:     secrethash.Default(),
		RedisPrefix:    cfg.RedisPrefix,
		Metrics:        emberauth.MetricsConfig{Enabled: true},
	}

	engine, err := emberauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithApps(postgres.NewAppRepo(db)).
		WithRefreshTokens(postgres.NewRefreshRepo(db)).
		WithSender(sender).
		WithVault(vault).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Fatal("engine", zap.Error(err))
	}

	if cfg.RefreshSweepInterval > 0 {
		go sweepRefreshTokens(ctx, engine, logger, cfg.RefreshSweepInterval)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      httpapi.New(engine, logger).Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}
}

// sweepRefreshTokens periodically removes expired refresh token records.
// Refresh checks expiry explicitly; the sweep only keeps the table small.
func sweepRefreshTokens(ctx context.Context, engine *emberauth.Engine, logger *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := engine.RemoveExpiredRefreshTokens(ctx)
			if err != nil {
				logger.Warn("refresh token sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("swept expired refresh tokens", zap.Int64("removed", removed))
			}
		}
	}
}
