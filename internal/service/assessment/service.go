package assessment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	domainerrors "github.com/procurewatch/risk-engine/internal/domain/errors"
	"github.com/procurewatch/risk-engine/internal/domain/risk"
	"github.com/procurewatch/risk-engine/internal/metrics"
	"github.com/procurewatch/risk-engine/internal/service/anomaly"
	"github.com/procurewatch/risk-engine/internal/service/indicators"
	"github.com/procurewatch/risk-engine/internal/service/scoring"
)

// FeatureReader fetches the precomputed feature vector for a tender. Feature
// extraction is owned by the ingest pipeline; the engine only consumes its
// output.
type FeatureReader interface {
	GetFeatureVector(ctx context.Context, tenderID uuid.UUID) ([]float64, error)
}

// Config carries the facade tunables.
type Config struct {
	// TenderTimeout bounds one tender's full assessment
	TenderTimeout time.Duration `koanf:"tender_timeout"`
	// BatchWorkers bounds concurrent tenders in a batch run
	BatchWorkers int `koanf:"batch_workers"`
	// RateLimit caps assessments per second across callers; zero disables it
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
	// HighRiskCutoff marks a composite score worth flagging in batch summaries
	HighRiskCutoff float64 `koanf:"high_risk_cutoff"`
}

// DefaultConfig returns the stock facade settings.
func DefaultConfig() Config {
	return Config{
		TenderTimeout:  10 * time.Second,
		BatchWorkers:   4,
		RateLimit:      50,
		RateBurst:      100,
		HighRiskCutoff: 70,
	}
}

// Assessment is the combined output for one tender: the rule-based composite,
// the anomaly ensemble's view, and the raw indicator results behind both.
type Assessment struct {
	TenderID   uuid.UUID              `json:"tender_id"`
	CRI        *risk.CRIScore         `json:"cri"`
	Anomaly    *risk.AnomalyScore     `json:"anomaly,omitempty"`
	Indicators []risk.IndicatorResult `json:"indicators"`
	// Partial marks assessments cut short by the per-tender timeout; the CRI
	// confidence is downgraded accordingly.
	Partial bool          `json:"partial"`
	Elapsed time.Duration `json:"elapsed"`
}

// BatchSummary aggregates one batch run.
type BatchSummary struct {
	Total         int           `json:"total"`
	Succeeded     int           `json:"succeeded"`
	Partial       int           `json:"partial"`
	Failed        int           `json:"failed"`
	HighRisk      int           `json:"high_risk"`
	MeanComposite float64       `json:"mean_composite"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Service is the engine's front door: it runs the indicator catalog, folds the
// results into a CRI, and attaches the anomaly ensemble's assessment.
type Service struct {
	registry   *indicators.Registry
	aggregator *scoring.Aggregator
	detector   *anomaly.HybridDetector
	features   FeatureReader
	cfg        Config
	limiter    *rate.Limiter
	collector  *metrics.Collector
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewService wires the facade. detector and features may be nil when the
// anomaly half is not deployed; assessments then carry the CRI alone.
func NewService(
	registry *indicators.Registry,
	aggregator *scoring.Aggregator,
	detector *anomaly.HybridDetector,
	features FeatureReader,
	cfg Config,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Service{
		registry:   registry,
		aggregator: aggregator,
		detector:   detector,
		features:   features,
		cfg:        cfg,
		limiter:    limiter,
		collector:  collector,
		tracer:     otel.Tracer("risk-engine/assessment"),
		logger:     logger,
	}
}

// Assess runs one tender through the full pipeline. A timeout mid-run yields
// the partial indicator set with downgraded confidence rather than an error;
// a missing feature vector yields a CRI-only assessment.
func (s *Service) Assess(ctx context.Context, tenderID uuid.UUID) (*Assessment, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, domainerrors.Wrap(err, "rate limit wait")
		}
	}

	ctx, span := s.tracer.Start(ctx, "assessment.Assess",
		trace.WithAttributes(attribute.String("tender_id", tenderID.String())))
	defer span.End()

	start := time.Now()
	if s.cfg.TenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TenderTimeout)
		defer cancel()
	}

	results, err := s.registry.RunAll(ctx, tenderID)
	partial := false
	if err != nil {
		if !domainerrors.IsType(err, domainerrors.ErrorTypeTimeout) {
			s.observe("error", start)
			return nil, err
		}
		partial = true
		s.logger.Warn("assessment timed out, keeping partial results",
			zap.String("tender_id", tenderID.String()),
			zap.Int("completed", len(results)),
			zap.Int("registered", s.registry.Len()))
	}

	cri := s.aggregator.Aggregate(tenderID, results)
	if partial && s.registry.Len() > 0 {
		// Confidence reflects coverage of the full catalog, not just of the
		// indicators that managed to finish.
		cri.Confidence *= float64(len(results)) / float64(s.registry.Len())
	}
	if s.collector != nil {
		for _, r := range results {
			if r.Triggered {
				s.collector.IndicatorTriggered(r.Name, string(r.Category))
			}
		}
	}

	out := &Assessment{
		TenderID:   tenderID,
		CRI:        cri,
		Indicators: results,
		Partial:    partial,
	}
	s.attachAnomaly(ctx, out)

	out.Elapsed = time.Since(start)
	span.SetAttributes(
		attribute.Float64("composite", cri.Composite),
		attribute.Bool("partial", partial))
	outcome := "ok"
	if partial {
		outcome = "partial"
	}
	s.observe(outcome, start)
	return out, nil
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.collector != nil {
		s.collector.ObserveAssessment(outcome, time.Since(start))
	}
}

// attachAnomaly adds the ensemble's view when models and features are there.
// Its absence is degraded service, not failure.
func (s *Service) attachAnomaly(ctx context.Context, out *Assessment) {
	if s.detector == nil || s.features == nil {
		return
	}
	features, err := s.features.GetFeatureVector(ctx, out.TenderID)
	if err != nil {
		if domainerrors.IsType(err, domainerrors.ErrorTypeNotFound) {
			s.logger.Debug("no feature vector, skipping anomaly detection",
				zap.String("tender_id", out.TenderID.String()))
		} else {
			s.logger.Warn("feature vector fetch failed, skipping anomaly detection",
				zap.String("tender_id", out.TenderID.String()), zap.Error(err))
		}
		return
	}
	anomalyScore, err := s.detector.Detect(out.TenderID, features)
	if err != nil {
		s.logger.Warn("anomaly detection unavailable",
			zap.String("tender_id", out.TenderID.String()), zap.Error(err))
		if s.collector != nil {
			s.collector.MethodUnavailable("ensemble")
		}
		return
	}
	out.Anomaly = anomalyScore
	if s.collector != nil {
		for _, m := range anomalyScore.Methods {
			if !m.Available {
				s.collector.MethodUnavailable(m.Method)
			}
		}
	}
}

// AssessBatch runs many tenders through a bounded worker pool. Individual
// failures do not stop the batch; the summary counts them.
func (s *Service) AssessBatch(ctx context.Context, tenderIDs []uuid.UUID) ([]*Assessment, BatchSummary, error) {
	ctx, span := s.tracer.Start(ctx, "assessment.AssessBatch",
		trace.WithAttributes(attribute.Int("batch_size", len(tenderIDs))))
	defer span.End()

	start := time.Now()
	workers := s.cfg.BatchWorkers
	if workers < 1 {
		workers = 1
	}

	assessments := make([]*Assessment, len(tenderIDs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				a, err := s.Assess(ctx, tenderIDs[idx])
				if err != nil {
					s.logger.Error("batch assessment failed",
						zap.String("tender_id", tenderIDs[idx].String()),
						zap.Error(err))
					continue
				}
				assessments[idx] = a
			}
		}()
	}
feed:
	for idx := range tenderIDs {
		select {
		case jobs <- idx:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	summary := BatchSummary{Total: len(tenderIDs), Elapsed: time.Since(start)}
	compositeSum := 0.0
	for _, a := range assessments {
		if a == nil {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		if a.Partial {
			summary.Partial++
		}
		compositeSum += a.CRI.Composite
		if a.CRI.Composite >= s.cfg.HighRiskCutoff {
			summary.HighRisk++
		}
	}
	if summary.Succeeded > 0 {
		summary.MeanComposite = compositeSum / float64(summary.Succeeded)
	}

	s.logger.Info("batch assessment finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
		zap.Int("high_risk", summary.HighRisk),
		zap.Duration("elapsed", summary.Elapsed))

	if err := ctx.Err(); err != nil {
		return assessments, summary, domainerrors.NewTimeoutError("batch cancelled before all tenders were assessed")
	}
	return assessments, summary, nil
}
