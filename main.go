package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	apirest "github.com/kasuganosora/baycode/api/rest"
	"github.com/kasuganosora/baycode/api/sse"
	"github.com/kasuganosora/baycode/audit"
	"github.com/kasuganosora/baycode/cache"
	"github.com/kasuganosora/baycode/clock"
	"github.com/kasuganosora/baycode/community/session"
	"github.com/kasuganosora/baycode/config"
	dbadapter "github.com/kasuganosora/baycode/db"
	"github.com/kasuganosora/baycode/hook"
	"github.com/kasuganosora/baycode/metrics"
	mw "github.com/kasuganosora/baycode/middleware"
	"github.com/kasuganosora/baycode/model"
	"github.com/kasuganosora/baycode/scheduler"
	"github.com/kasuganosora/baycode/store"
	"github.com/kasuganosora/baycode/store/kvstore"
	"github.com/kasuganosora/baycode/store/sqlstore"
)

// Storage modes for the community snapshot.
const (
	storageSQL    = "sql"
	storageCache  = "cache"
	storageMemory = "memory"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the Bay Code HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(*cobra.Command, []string) error {
			return runMigrate(cfgPath)
		},
	}

	root := &cobra.Command{
		Use:          "baycode",
		Short:        "Bay Code community server",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config/config.yaml", "path to the YAML config file")
	root.AddCommand(serve, migrate)
	return root
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Server.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openDB(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))
	return db, nil
}

func runMigrate(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	db, err := openDB(cfg, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}

func newAdapter(cfg config.StorageConfig, db *gorm.DB, c cache.Cache) (store.Adapter, error) {
	switch cfg.Mode {
	case storageSQL, "":
		return sqlstore.New(db), nil
	case storageCache:
		return kvstore.New(c, cfg.CacheKey), nil
	case storageMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: unknown mode %q", cfg.Mode)
	}
}

// newSessionStore keeps sessions in Redis when it is configured, since
// keys expire there on their own. Otherwise they go to the database so a
// restart does not sign everyone out.
func newSessionStore(cfg config.CacheConfig, db *gorm.DB, c cache.Cache) session.Store {
	if cfg.RedisAddr != "" {
		return session.NewCacheStore(c)
	}
	return sqlstore.NewSessions(db, clock.New())
}

func runServe(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "change-me" {
		logger.Warn("security.jwt_secret is the default; set BAYCODE_SECURITY_JWT_SECRET in production")
	}

	// ---- Database ----
	db, err := openDB(cfg, logger)
	if err != nil {
		return err
	}

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer c.Close()
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer pubsub.Close()
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	adapter, err := newAdapter(cfg.Storage, db, c)
	if err != nil {
		return err
	}

	// ---- Hooks: audit, metrics, chat fan-out ----
	hooks := hook.NewCenter()

	auditSvc := audit.New(db, logger.Named("audit"))
	defer auditSvc.Stop(context.Background())
	auditSvc.Attach(hooks)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)
	collector.Attach(hooks)

	sse.NewPublisher(pubsub, logger.Named("sse")).Attach(hooks)

	// ---- Community ----
	mgr, err := session.New(session.Deps{
		Config:   cfg,
		Adapter:  adapter,
		Sessions: newSessionStore(cfg.Cache, db, c),
		Hooks:    hooks,
		Logger:   logger.Named("community"),
	})
	if err != nil {
		return fmt.Errorf("community: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	logger.Info("community state loaded",
		zap.String("storage", cfg.Storage.Mode),
		zap.Int("accounts", mgr.Accounts().Len()),
		zap.Int("chat_messages", mgr.Chat().Len()))

	// ---- Scheduler ----
	sched := scheduler.New(logger.Named("scheduler"))
	defer sched.Stop()
	scheduler.AddCommunityJobs(sched, cfg.Scheduler, mgr, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), collector.Middleware(), mw.AuditContext())
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	apirest.Mount(r, mgr, logger)

	sseH := sse.NewHandler(pubsub, mgr, logger.Named("sse"))
	r.GET("/sse/chat", mw.Auth(mgr), sseH.ServeChat)

	r.GET("/metrics", mw.IPWhitelist(cfg.Server.MetricsAllowIPs), gin.WrapH(metrics.Handler(reg)))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	if err := mgr.Save(shutdownCtx); err != nil {
		logger.Error("final snapshot save failed", zap.Error(err))
	}
	return nil
}
