// The pipeline-core daemon wires the staged request processor together:
// tool catalog, asset context provider, LLM gateway, conversation store,
// the four pipeline stages, the orchestrator, and the admin surface.
// The chat API that feeds ProcessRequest lives outside this binary.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/opsconductor/pipeline-core/internal/admin"
	"github.com/opsconductor/pipeline-core/internal/config"
	"github.com/opsconductor/pipeline-core/internal/pipeline/assets"
	"github.com/opsconductor/pipeline-core/internal/pipeline/catalog"
	"github.com/opsconductor/pipeline-core/internal/pipeline/convo"
	"github.com/opsconductor/pipeline-core/internal/pipeline/llmgw"
	"github.com/opsconductor/pipeline-core/internal/pipeline/notify"
	"github.com/opsconductor/pipeline-core/internal/pipeline/orchestrator"
	"github.com/opsconductor/pipeline-core/internal/pipeline/policy"
	"github.com/opsconductor/pipeline-core/internal/pipeline/stageab"
	"github.com/opsconductor/pipeline-core/internal/pipeline/stagec"
	"github.com/opsconductor/pipeline-core/internal/pipeline/staged"
	"github.com/opsconductor/pipeline-core/internal/pipeline/stagee"
	"github.com/opsconductor/pipeline-core/pkg/infrastructure/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pipeline-core:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("PIPELINE_CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Route OTel's own diagnostics through the same zap core.
	otel.SetLogger(zapr.NewLogger(logger.Named("otel")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, stopWatch, err := buildCatalog(ctx, cfg.Catalog, logger)
	if err != nil {
		return err
	}
	if stopWatch != nil {
		defer stopWatch()
	}
	logger.Info("tool catalog loaded", zap.Int("tools", cat.Count()))

	assetClient, err := assets.NewClient(assets.Config{
		BaseURL:          cfg.AssetService.URL,
		Timeout:          cfg.AssetService.Timeout,
		CacheTTL:         cfg.AssetService.CacheTTL,
		CacheSize:        cfg.AssetService.CacheSize,
		FailureThreshold: cfg.Resilience.FailureThreshold,
		CooldownSeconds:  int(cfg.Resilience.CooldownPeriod / time.Second),
	}, logger.Named("assets"))
	if err != nil {
		return err
	}

	provider, err := llmgw.NewProvider(ctx, llmgw.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		Region:   cfg.LLM.Region,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return err
	}
	gateway := llmgw.NewGateway(provider, llmgw.BudgetConfig{
		MaxModelLen:   cfg.LLM.MaxModelLen,
		OutputReserve: cfg.LLM.OutputReserve,
		SafetyMargin:  cfg.LLM.SafetyMargin,
	}, cfg.Resilience.FailureThreshold, int(cfg.Resilience.CooldownPeriod/time.Second), logger.Named("llmgw"))

	convoStore := buildConversationStore(cfg.Conversation, logger)

	policyEngine, err := policy.NewEngine(ctx)
	if err != nil {
		return err
	}

	ab := stageab.New(gateway, cat, assetClient, policyEngine, cfg.Pipeline.MaxSelectedTools, logger.Named("stageab"))
	c := stagec.New(gateway, cat, 1800, logger.Named("stagec"))
	d := staged.New(gateway, assetClient, policyEngine, cfg.Pipeline.ConfidenceThreshold, cfg.Pipeline.MaxClarificationAttempts, logger.Named("staged"))
	if cfg.Notifications.SlackToken != "" {
		d.SetNotifier(notify.NewSlackNotifier(cfg.Notifications.SlackToken, cfg.Notifications.SlackChannel, logger.Named("notify")))
	}

	registry := stagee.NewRegistry()
	e := stagee.New(registry, cfg.Pipeline.StepConcurrencyCap, logger.Named("stagee"))

	orch := orchestrator.New(ab, c, d, e, convoStore, assetClient, logger.Named("orchestrator")).
		WithDeadline(cfg.Pipeline.Deadline)

	metricsLog := logrus.New()
	metricsLog.SetLevel(logrus.WarnLevel)
	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, metricsLog)
	metricsServer.StartAsync()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Stop(shutdownCtx)
	}()

	adminServer := &http.Server{
		Addr:    ":" + cfg.Server.AdminPort,
		Handler: admin.NewServer(orch, cat, logger.Named("admin")).Handler(),
	}
	go func() {
		logger.Info("admin surface listening", zap.String("addr", adminServer.Addr))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return adminServer.Shutdown(shutdownCtx)
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// buildCatalog loads the tool catalog from the configured store. The
// filesystem corpus optionally watches for edits and reloads in place.
func buildCatalog(ctx context.Context, cfg config.CatalogConfig, logger *zap.Logger) (*catalog.Catalog, func(), error) {
	switch cfg.Source {
	case "sql":
		db, err := sqlx.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open catalog database: %w", err)
		}
		if err := catalog.Migrate(ctx, db); err != nil {
			return nil, nil, err
		}
		cat, err := catalog.Load(catalog.NewSQLLoader(db))
		if err != nil {
			return nil, nil, err
		}
		return cat, func() { db.Close() }, nil

	case "filesystem":
		loader := catalog.NewFilesystemLoader(cfg.CorpusDir)
		cat, err := catalog.Load(loader)
		if err != nil {
			return nil, nil, err
		}
		if !cfg.WatchReload {
			return cat, nil, nil
		}
		stopWatch, err := catalog.WatchAndReload(cat, loader, logger.Named("catalog"))
		if err != nil {
			return nil, nil, err
		}
		return cat, stopWatch, nil

	default:
		return nil, nil, fmt.Errorf("unsupported catalog source %q", cfg.Source)
	}
}

func buildConversationStore(cfg config.ConversationConfig, logger *zap.Logger) convo.Store {
	if cfg.RedisAddr == "" {
		return convo.NewMemoryStore(cfg.MaxMessages)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return convo.NewRedisStore(client, cfg.MaxMessages, 24*time.Hour, logger.Named("convo"))
}
