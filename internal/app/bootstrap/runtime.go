package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/adapters/events"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/adapters/geoip"
	httpadapter "github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/anomaly"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/audit"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/blacklist"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/geo"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/ports"
	"github.com/viralforge/mesh/services/trust-compliance/M14-account-security-service/internal/totp"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	recorder   *audit.Recorder
	blacklist  *blacklist.Cache
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger.With("service", cfg.ServiceID))
	logger.Info("bootstrapping m14 account security service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	repos := postgres.NewRepositories(db)
	counters := cacheadapter.NewRedisActivityCounterStore(redisClient)

	verifier, err := security.NewJWTVerifier(cfg.JWTPublicKeyPEM)
	if err != nil {
		if !cfg.AllowEphemeralJWT {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init jwt verifier: %w", err)
		}
		logger.Warn("using ephemeral JWT verification key for local/dev runtime")
		verifier, err = security.NewEphemeralJWTVerifier()
		if err != nil {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init ephemeral jwt verifier: %w", err)
		}
	}

	cipher, err := security.NewAESCipher(cfg.EncryptionKey)
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init secret cipher: %w", err)
	}

	var provider ports.GeoProvider
	httpProvider := geoip.NewHTTPProvider(cfg.GeoProviderURL, cfg.GeoTimeout)
	provider = httpProvider
	var maxmind *geoip.MaxMindProvider
	if cfg.GeoIPDBPath != "" {
		maxmind, err = geoip.NewMaxMindProvider(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn("maxmind database unavailable, using HTTP provider only", "path", cfg.GeoIPDBPath, "error", err)
		} else {
			provider = geoip.NewFallbackProvider(httpProvider, maxmind)
		}
	}
	resolver := geo.NewResolver(provider, logger)

	recorder := audit.NewRecorder(repos.AuditLogs, repos.SecurityLogs, logger)

	blCache := blacklist.NewCache(repos.Blacklist, logger, blacklist.WithSecuritySink(recorder))
	if err := blCache.Initialize(ctx); err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("load blacklist: %w", err)
	}

	detectorCfg := anomaly.DefaultConfig()
	for _, code := range cfg.HighRiskCountries {
		detectorCfg.HighRiskCountries[code] = true
	}
	detector := anomaly.NewDetector(detectorCfg, resolver, repos.AuditLogs, recorder, logger)

	var publisher ports.EventPublisher
	var natsPublisher *eventadapter.NATSPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err = eventadapter.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init nats publisher: %w", err)
		}
		publisher = natsPublisher
	} else {
		publisher = eventadapter.NewLoggingPublisher(logger)
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			Issuer:          cfg.TOTPIssuer,
			BackupCodeCount: cfg.BackupCodeCount,
			AuditWindowDays: cfg.AuditWindowDays,
			ActivityWindow:  cfg.ActivityWindow,
		},
		Credentials: repos.Credentials,
		BackupCodes: repos.BackupCodes,
		Settings:    repos.Settings,
		Blacklist:   blCache,
		Counters:    counters,
		Resolver:    resolver,
		Detector:    detector,
		Recorder:    recorder,
		Engine:      totp.NewEngine(),
		Cipher:      cipher,
		Hasher:      security.NewBcryptHasher(cfg.BcryptCost),
		Publisher:   publisher,
	})

	handler := httpadapter.NewHandler(svc, blCache, verifier)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		recorder:   recorder,
		blacklist:  blCache,
		cleanupFn: func(ctx context.Context) {
			if maxmind != nil {
				_ = maxmind.Close()
			}
			if natsPublisher != nil {
				natsPublisher.Close()
			}
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorderDone := make(chan struct{})
	go func() {
		r.recorder.Run(ctx)
		close(recorderDone)
	}()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()

	// Give the recorder a chance to flush queued entries before closing stores.
	select {
	case <-recorderDone:
	case <-shutdownCtx.Done():
	}
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorderDone := make(chan struct{})
	go func() {
		r.recorder.Run(ctx)
		close(recorderDone)
	}()

	go r.blacklist.RunSweeper(ctx, r.cfg.SweepInterval)

	r.logger.Info("maintenance worker started",
		"sweep_interval", r.cfg.SweepInterval.String(),
		"cleanup_interval", r.cfg.CleanupInterval.String(),
		"retention_days", r.cfg.AuditRetentionDays,
	)
	r.recorder.RunCleaner(ctx, r.cfg.CleanupInterval, r.cfg.AuditRetentionDays)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-recorderDone:
	case <-shutdownCtx.Done():
	}
	r.cleanupFn(shutdownCtx)
	return nil
}
