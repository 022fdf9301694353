package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/hido/api/handlers"
	"github.com/BaSui01/hido/audit"
	"github.com/BaSui01/hido/config"
	"github.com/BaSui01/hido/consensus"
	"github.com/BaSui01/hido/internal/cache"
	"github.com/BaSui01/hido/internal/database"
	"github.com/BaSui01/hido/internal/metrics"
	"github.com/BaSui01/hido/internal/server"
	"github.com/BaSui01/hido/internal/telemetry"
	"github.com/BaSui01/hido/policy"
	"github.com/BaSui01/hido/recommender"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装决策服务的全部组件
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector
	cache     *cache.Manager
	stores    *auditStores
	ledger    *audit.Ledger
	service   *consensus.Service
	watcher   *policy.Watcher

	httpManager    *server.Manager
	metricsManager *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化组件并启动 HTTP 与指标服务器
func (s *Server) Start(ctx context.Context) error {
	// 1. 遥测与指标
	providers, err := telemetry.Init(ctx, s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		s.telemetry = providers
	}
	s.collector = metrics.NewCollector("hido", s.logger)

	// 2. 审计账本
	if err := s.initAudit(ctx); err != nil {
		return fmt.Errorf("failed to init audit ledger: %w", err)
	}

	// 3. 决策引擎与服务
	if err := s.initService(); err != nil {
		return fmt.Errorf("failed to init decision service: %w", err)
	}

	// 4. 策略文件
	if err := s.initPolicy(ctx); err != nil {
		return fmt.Errorf("failed to init policy watcher: %w", err)
	}

	// 5. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("audit_enabled", s.ledger != nil),
		zap.Bool("policy_enabled", s.watcher != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initAudit(ctx context.Context) error {
	if !s.cfg.Audit.Enabled {
		s.logger.Info("audit ledger disabled")
		return nil
	}

	stores, err := openAuditStores(ctx, s.cfg, s.logger,
		database.WithStatsObserver(func(name string, stats database.PoolStats) {
			s.collector.RecordDBConnections(name, stats.OpenConnections, stats.Idle)
		}),
	)
	if err != nil {
		return err
	}
	s.stores = stores

	ledger, err := audit.NewLedger(ctx, stores.store, s.logger)
	if err != nil {
		return err
	}
	s.ledger = ledger

	if s.cfg.Audit.VerifyOnStart {
		report, err := ledger.Verify(ctx)
		if err != nil {
			s.logger.Error("audit chain verification failed",
				zap.Uint64("broken_at", report.BrokenAt),
				zap.String("reason", report.Reason),
				zap.Error(err))
			return err
		}
		s.logger.Info("audit chain verified", zap.Int("entries", report.Entries))
	}
	return nil
}

func (s *Server) initService() error {
	var engineOpts []consensus.EngineOption
	engineOpts = append(engineOpts, consensus.WithLogger(s.logger))

	rec, err := s.buildRecommender()
	if err != nil {
		return err
	}
	if rec != nil {
		engineOpts = append(engineOpts, consensus.WithRecommender(rec))
	}

	engine, err := consensus.NewDecisionEngine(s.cfg.Engine.ToEngineConfig(), engineOpts...)
	if err != nil {
		return err
	}

	observers := []consensus.Observer{s.collector}
	instruments, err := telemetry.NewDecisionInstruments(s.telemetry.Meter())
	if err != nil {
		s.logger.Warn("failed to create decision instruments", zap.Error(err))
	} else {
		observers = append(observers, instruments)
	}

	opts := []consensus.ServiceOption{
		consensus.WithObservers(observers...),
		consensus.WithServiceLogger(s.logger),
		consensus.WithTracer(s.telemetry.Tracer(consensus.TracerName)),
	}
	if s.ledger != nil {
		opts = append(opts, consensus.WithAuditSink(s.ledger))
	}
	s.service = consensus.NewService(engine, opts...)
	return nil
}

// buildRecommender 推荐器未启用时返回 nil。Redis 不可用时退化为无缓存推荐。
func (s *Server) buildRecommender() (recommender.Recommender, error) {
	rc := s.cfg.Recommender
	if !rc.Enabled {
		return nil, nil
	}

	inner, err := recommender.NewSimilarityRecommender(rc.ToSimilarityConfig(), s.logger)
	if err != nil {
		return nil, err
	}
	if rc.EmbeddingsFile != "" {
		embeddings, err := recommender.LoadEmbeddingsFile(rc.EmbeddingsFile)
		if err != nil {
			return nil, err
		}
		if err := inner.SetEmbeddings(embeddings); err != nil {
			return nil, err
		}
		s.logger.Info("recommender embeddings loaded",
			zap.String("path", rc.EmbeddingsFile),
			zap.Int("nodes", inner.EmbeddingCount()))
	}
	if !rc.CacheEnabled {
		return inner, nil
	}

	mgr, err := cache.NewManager(s.cfg.Redis, s.logger)
	if err != nil {
		s.logger.Warn("redis unavailable, recommender cache disabled", zap.Error(err))
		return inner, nil
	}
	s.cache = mgr
	return recommender.NewCachedRecommender(inner, mgr, rc.CacheTTL, s.logger).WithObserver(s.collector), nil
}

func (s *Server) initPolicy(ctx context.Context) error {
	pc := s.cfg.Policy
	if pc.Path == "" {
		s.logger.Info("no policy file configured, using built-in rules")
		return nil
	}

	watcher, err := policy.NewWatcher(pc.Path, s.service,
		policy.WithPollInterval(pc.WatchInterval),
		policy.WithDebounceDelay(pc.DebounceDelay),
		policy.WithWatcherLogger(s.logger),
		policy.WithReloadCallback(func(evt policy.ReloadEvent) {
			s.collector.RecordPolicyReload(evt.Error)
		}),
	)
	if err != nil {
		return err
	}
	if err := watcher.Load(); err != nil {
		return err
	}
	s.watcher = watcher

	if pc.WatchInterval > 0 {
		return watcher.Start(ctx)
	}
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// guard 启用 JWT 时写操作需要 operator 角色
func (s *Server) guard() handlers.Guard {
	if !s.cfg.Server.JWT.Enabled() {
		return nil
	}
	return handlers.RequireRole(handlers.RoleOperator, s.logger)
}

// routes 注册全部 API 路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.logger)
	if s.stores != nil && s.stores.pool != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", s.stores.pool.Ping))
	}
	if s.cache != nil {
		health.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion)

	guard := s.guard()
	handlers.NewVoterHandler(s.service, s.logger).RegisterRoutes(mux, guard)
	handlers.NewDecisionHandler(s.service, s.cfg.Server.CORSAllowedOrigins, s.logger).RegisterRoutes(mux)
	handlers.NewRuleHandler(s.service, s.logger).RegisterRoutes(mux, guard)
	if s.ledger != nil {
		handlers.NewAuditHandler(s.ledger, s.logger).RegisterRoutes(mux)
	}

	admin := handlers.NewAdminHandler(s.cfg, s.logger)
	if s.watcher != nil {
		admin.WithPolicy(s.watcher)
	}
	admin.RegisterRoutes(mux, guard)

	return mux
}

// handler 构建中间件链
func (s *Server) handler(ctx context.Context) http.Handler {
	sc := s.cfg.Server
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		CORS(sc.CORSAllowedOrigins),
	}
	if sc.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger))
	}
	if len(sc.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(sc.APIKeys, skipAuthPaths, sc.AllowQueryAPIKey, s.logger))
	}
	if sc.JWT.Enabled() {
		middlewares = append(middlewares, JWTAuth(sc.JWT, skipAuthPaths, s.logger))
	}
	return Chain(s.routes(), middlewares...)
}

func (s *Server) startHTTPServer() error {
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	sc := s.cfg.Server
	s.httpManager = server.NewManager(s.handler(rateLimiterCtx), server.Config{
		Addr:            fmt.Sprintf(":%d", sc.HTTPPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		IdleTimeout:     2 * sc.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: sc.ShutdownTimeout,
		TLSCertFile:     sc.TLSCertFile,
		TLSKeyFile:      sc.TLSKeyFile,
	}, s.logger)

	// 先停止接收请求，再依次释放下游资源
	s.httpManager.OnShutdown("rate_limiter", func(context.Context) error {
		cancel()
		return nil
	})
	if s.watcher != nil {
		s.httpManager.OnShutdown("policy_watcher", func(context.Context) error {
			s.watcher.Stop()
			return nil
		})
	}

	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	sc := s.cfg.Server
	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", sc.MetricsPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞直到 ctx 结束或任一服务器异常退出，然后优雅关闭全部组件
func (s *Server) Wait(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m == nil {
			continue
		}
		g.Go(func() error { return m.Run(gctx) })
	}
	err := g.Wait()
	s.closeResources(context.WithoutCancel(ctx))
	return err
}

// Shutdown 关闭已启动的服务器与资源，用于启动失败时的清理
func (s *Server) Shutdown(ctx context.Context) {
	s.logger.Info("starting graceful shutdown")
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m != nil && m.IsRunning() {
			if err := m.Shutdown(ctx); err != nil {
				s.logger.Error("server shutdown error", zap.Error(err))
			}
		}
	}
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.closeResources(ctx)
}

// closeResources 释放审计存储、缓存与遥测
func (s *Server) closeResources(ctx context.Context) {
	var errs []error
	if s.stores != nil {
		errs = append(errs, s.stores.close(ctx))
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("resource cleanup error", zap.Error(err))
	}
	s.logger.Info("graceful shutdown completed")
}
