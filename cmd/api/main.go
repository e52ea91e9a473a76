package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"authghost.org/internal/auth"
	"authghost.org/internal/config"
	"authghost.org/internal/httpapi"
	"authghost.org/internal/obs"
	"authghost.org/internal/store/pg"
	"authghost.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	defer obs.Sync()
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	store, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer store.DB().Close()

	engine, err := auth.NewEngine(store, []byte(cfg.SecretKey),
		auth.WithIssuer(cfg.Issuer),
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	if err != nil {
		log.Fatal("build token engine", zap.Error(err))
	}

	opts := []auth.ServiceOption{
		auth.WithLockoutPolicy(cfg.LockoutThreshold, cfg.LockoutDuration),
	}
	if cfg.LivePermissionChecks {
		opts = append(opts, auth.WithLivePermissionChecks())
	}
	if cfg.LiveSubscriptionChecks {
		opts = append(opts, auth.WithLiveSubscriptionChecks())
	}
	authn, err := auth.NewAuthenticator(store, engine, opts...)
	if err != nil {
		log.Fatal("build authenticator", zap.Error(err))
	}

	api := httpapi.New(
		httpapi.ReadyProbe{DB: store.DB()},
		version,
		authn,
		auth.NewDirectory(store),
		stream.New(),
	)

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.RateLimit(handler, cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("starting authghost-api",
			zap.String("version", version),
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment))
		obs.SetReady(true)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	obs.SetReady(false)
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	log.Info("stopped")
}
