package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Space2024/chitenv/internal/enrollment/handler"
	"github.com/Space2024/chitenv/internal/enrollment/metrics"
	"github.com/Space2024/chitenv/internal/enrollment/qr"
	"github.com/Space2024/chitenv/internal/enrollment/remote"
	"github.com/Space2024/chitenv/internal/enrollment/service"
	"github.com/Space2024/chitenv/internal/enrollment/session"
	"github.com/Space2024/chitenv/internal/platform/config"
	"github.com/Space2024/chitenv/internal/platform/httpserver"
	"github.com/Space2024/chitenv/internal/platform/logger"
	"github.com/Space2024/chitenv/internal/platform/middleware"
	"github.com/Space2024/chitenv/internal/platform/redis"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal/enrollment packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	m := metrics.New()

	rdb, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	// Image bytes never travel in the session cookie. They live in Redis when
	// one is configured, otherwise in process memory.
	var assets session.AssetStore
	var challenges session.ChallengeStore
	if rdb != nil {
		assets = session.NewRedisAssetStore(rdb, cfg.Session.ExpirationWindow)
		challenges = session.NewRedisChallengeStore(rdb, cfg.Session.ExpirationWindow)
		log.Info("using redis session stores")
	} else {
		assets = session.NewInMemoryAssetStore(cfg.Session.ExpirationWindow)
		challenges = session.NewInMemoryChallengeStore(cfg.Session.ExpirationWindow)
		log.Info("using in-memory session stores")
	}

	var client remote.Client
	if os.Getenv("CHITENV_MOCK_UPSTREAM") != "" {
		client = remote.NewMockClient()
		log.Warn("using mock upstream client")
	} else {
		client = remote.NewHTTPClient(cfg.Upstream, remote.WithLogger(log))
	}

	cookies := session.NewCookieStore(
		cfg.Session.CookieName,
		cfg.Session.ExpirationWindow,
		session.WithCookieLogger(log),
		session.WithExpiredHook(m.SessionsExpired.Inc),
	)

	svc := service.New(
		client,
		cookies,
		assets,
		qr.NewIssuer([]byte(cfg.QR.SigningKey), cfg.QR.TTL),
		qr.NewStore(),
		cfg.Session,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithChallengeStore(challenges),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Device)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	handler.New(svc, log).Register(r)

	srv := httpserver.New(cfg.Addr, r)

	log.Info("starting chitenv", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info("chitenv stopped")
}
