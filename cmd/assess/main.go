package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/procurewatch/risk-engine/internal/infrastructure/cache"
	"github.com/procurewatch/risk-engine/internal/infrastructure/config"
	"github.com/procurewatch/risk-engine/internal/infrastructure/database"
	"github.com/procurewatch/risk-engine/internal/infrastructure/repository"
	"github.com/procurewatch/risk-engine/internal/infrastructure/telemetry"
	"github.com/procurewatch/risk-engine/internal/metrics"
	"github.com/procurewatch/risk-engine/internal/service/anomaly"
	"github.com/procurewatch/risk-engine/internal/service/assessment"
	"github.com/procurewatch/risk-engine/internal/service/baseline"
	"github.com/procurewatch/risk-engine/internal/service/indicators"
	"github.com/procurewatch/risk-engine/internal/service/scoring"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		idFile     = flag.String("ids", "", "File with one tender UUID per line; arguments take precedence")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tenderIDs, err := resolveTenderIDs(flag.Args(), *idFile)
	if err != nil {
		logger.Fatal("invalid tender ids", zap.Error(err))
	}
	if len(tenderIDs) == 0 {
		logger.Fatal("no tender ids given; pass UUIDs as arguments or via -ids")
	}

	pool, err := database.NewPool(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer pool.Close()

	repo := repository.NewTenderRepository(pool, logger)

	// The engine runs without Redis, recomputing baselines on every lookup.
	var baselineCache baseline.Cache
	if redisCache, err := cache.NewRedisCache(&cfg.Redis, logger); err != nil {
		logger.Warn("redis unavailable, baselines will not be cached", zap.Error(err))
	} else {
		baselineCache = redisCache
		defer redisCache.Close() //nolint:errcheck
	}

	collector := metrics.NewCollector()
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		if err := collector.Register(reg); err != nil {
			logger.Fatal("registering metrics", zap.Error(err))
		}
		go serveMetrics(cfg.Metrics.Addr, reg, logger)
	}

	baselines := baseline.NewProvider(repo, baselineCache, cfg.Baseline, logger)
	baselines.OnRecompute(collector.BaselineRecomputed)

	registry, err := indicators.NewDefaultRegistry(indicators.Deps{
		Reader:    repo,
		Baselines: baselines,
	}, cfg.Indicators, logger)
	if err != nil {
		logger.Fatal("building indicator catalog", zap.Error(err))
	}

	detector, closeModels, err := buildDetector(cfg, logger)
	if err != nil {
		logger.Fatal("building anomaly ensemble", zap.Error(err))
	}
	defer closeModels()

	svc := assessment.NewService(
		registry,
		scoring.NewAggregator(cfg.Scoring, logger),
		detector,
		repo,
		cfg.Assessment,
		collector,
		logger,
	)

	assessments, summary, err := svc.AssessBatch(ctx, tenderIDs)
	if err != nil {
		logger.Error("batch did not finish cleanly", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, a := range assessments {
		if a == nil {
			continue
		}
		if err := enc.Encode(a); err != nil {
			logger.Error("encoding assessment", zap.Error(err))
		}
	}
	if err := enc.Encode(summary); err != nil {
		logger.Error("encoding summary", zap.Error(err))
	}

	if summary.Failed > 0 {
		os.Exit(1)
	}
}

// buildDetector wires the anomaly ensemble from whichever model artifacts are
// deployed. A method whose artifact fails to load stays in the ensemble as
// unavailable so its weight is redistributed and the gap is visible.
func buildDetector(cfg *config.Config, logger *zap.Logger) (*anomaly.HybridDetector, func(), error) {
	var adapters []anomaly.MethodAdapter
	closeFn := func() {}

	if path := cfg.Models.IsolationForestPath; path != "" {
		forest, err := anomaly.NewIsolationForest(path)
		if err != nil {
			logger.Warn("isolation forest artifact failed to load", zap.Error(err))
		}
		adapters = append(adapters, forest)
	}
	if dir := cfg.Models.AutoencoderDir; dir != "" {
		ae, err := anomaly.NewAutoencoder(dir)
		if err != nil {
			logger.Warn("autoencoder bundle failed to load", zap.Error(err))
		} else {
			closeFn = ae.Close
		}
		adapters = append(adapters, ae)
	}
	if path := cfg.Models.LOFPath; path != "" {
		lof, err := anomaly.NewLocalOutlierFactor(path)
		if err != nil {
			logger.Warn("lof artifact failed to load", zap.Error(err))
		}
		adapters = append(adapters, lof)
	}
	if path := cfg.Models.OneClassSVMPath; path != "" {
		svm, err := anomaly.NewOneClassSVM(path)
		if err != nil {
			logger.Warn("ocsvm artifact failed to load", zap.Error(err))
		}
		adapters = append(adapters, svm)
	}

	if len(adapters) == 0 {
		logger.Warn("no anomaly model artifacts configured, assessments carry the composite index only")
		return nil, closeFn, nil
	}

	detector, err := anomaly.NewHybridDetector(adapters, cfg.Anomaly, cfg.Models.FeatureNames, logger)
	if err != nil {
		return nil, closeFn, err
	}
	return detector, closeFn, nil
}

func resolveTenderIDs(args []string, idFile string) ([]uuid.UUID, error) {
	raw := args
	if len(raw) == 0 && idFile != "" {
		data, err := os.ReadFile(idFile)
		if err != nil {
			return nil, fmt.Errorf("reading id file: %w", err)
		}
		raw = strings.Fields(string(data))
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid tender id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("metrics listener started", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}
