// Command keygate-server starts the account HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/keygate/internal/config"
	"github.com/and161185/keygate/internal/crypto"
	"github.com/and161185/keygate/internal/limiter"
	"github.com/and161185/keygate/internal/mail"
	"github.com/and161185/keygate/internal/migrate"
	"github.com/and161185/keygate/internal/repository/postgres"
	grpcserver "github.com/and161185/keygate/internal/server/grpc"
	httpserver "github.com/and161185/keygate/internal/server/http"
	"github.com/and161185/keygate/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schema, err := migrate.Up(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("schema ready", zap.Int64("version", schema))

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()
	store := postgres.NewStore(db)

	hasher, err := crypto.NewHasher(cfg.Argon)
	if err != nil {
		logger.Fatal("hasher", zap.Error(err))
	}

	dispatcher := mail.NewDispatcher(newSender(cfg, logger), logger, cfg.MailTimeout)

	lim, closeLim := newLimiter(ctx, cfg, db, logger)
	defer closeLim()

	// Services
	accounts := service.NewAccountService(store, hasher, dispatcher, service.DefaultOptions, logger)
	authz := service.NewAuthorizer(store)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := httpserver.NewMetrics(reg)
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpserver.NewRouter(httpserver.Deps{
		Accounts:   accounts,
		Authorizer: authz,
		Limiter:    lim,
		DB:         db,
		Metrics:    metrics,
		Log:        logger,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var health *grpcserver.Health
	if cfg.HealthAddr != "" {
		health = grpcserver.NewHealth(db, logger, 15*time.Second, cfg.Dev)
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
		go health.Watch(ctx)
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.HealthAddr))
			errCh <- health.Server().Serve(lis)
		}()
	}

	// Wait for stop
	exit := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		exit = 1
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if health != nil {
		health.Stop(cfg.ShutdownTimeout)
	}
	dispatcher.Wait()

	logger.Info("shutdown complete")
	if exit != 0 {
		os.Exit(exit)
	}
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func newSender(cfg *config.Config, log *zap.Logger) mail.Sender {
	if cfg.SMTPHost == "" {
		log.Warn("no -smtp-host configured, verification mail is logged instead of sent")
		return mail.NewLogSender(log)
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.MailTimeout,
	})
}

func limiterRules(cfg *config.Config) limiter.Rules {
	rules := limiter.Rules{}
	if cfg.AccountLimit > 0 {
		rules[limiter.BucketAccount] = limiter.Rule{Limit: cfg.AccountLimit, Window: time.Minute}
	}
	if cfg.DataLimit > 0 {
		rules[limiter.BucketData] = limiter.Rule{Limit: cfg.DataLimit, Window: time.Minute}
	}
	return rules
}

// newLimiter builds the configured backend. The returned func releases its resources.
func newLimiter(ctx context.Context, cfg *config.Config, db *postgres.DB, log *zap.Logger) (limiter.Limiter, func()) {
	switch cfg.Limiter {
	case config.LimiterRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, requests are admitted until it recovers", zap.Error(err))
		}
		return limiter.NewRedis(rdb, limiterRules(cfg)), func() { _ = rdb.Close() }
	case config.LimiterPG:
		pg := limiter.NewPG(db.Pool, limiterRules(cfg))
		go purgeLoop(ctx, pg, log)
		return pg, func() {}
	default:
		return limiter.Nop{}, func() {}
	}
}

// purgeLoop drops limiter rows whose window ended over an hour ago.
func purgeLoop(ctx context.Context, pg *limiter.PG, log *zap.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := pg.Purge(ctx, time.Now().Add(-time.Hour))
			if err != nil {
				log.Warn("limiter purge", zap.Error(err))
				continue
			}
			log.Debug("limiter purge", zap.Int64("rows", n))
		}
	}
}
