package indicators

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainerrors "github.com/procurewatch/risk-engine/internal/domain/errors"
	"github.com/procurewatch/risk-engine/internal/domain/risk"
)

// Registry owns the indicator catalog and dispatches evaluation. Registration
// happens at startup; evaluation is read-only and safe to run concurrently.
type Registry struct {
	byName  map[string]Indicator
	ordered []Indicator
	logger  *zap.Logger

	// maxParallel bounds concurrent indicator evaluations within one run;
	// each indicator's work is a handful of data-store reads.
	maxParallel int
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byName:      make(map[string]Indicator),
		logger:      logger,
		maxParallel: 8,
	}
}

// Register adds an indicator. A duplicate name is a configuration bug and
// fails loudly.
func (r *Registry) Register(ind Indicator) error {
	if ind == nil {
		return domainerrors.NewConfigurationError("NIL_INDICATOR", "cannot register nil indicator")
	}
	if ind.Weight() <= 0 {
		return domainerrors.NewConfigurationError("INVALID_WEIGHT",
			fmt.Sprintf("indicator %q has non-positive weight %v", ind.Name(), ind.Weight()))
	}
	if _, exists := r.byName[ind.Name()]; exists {
		return domainerrors.NewConfigurationError("DUPLICATE_INDICATOR",
			fmt.Sprintf("indicator %q already registered", ind.Name()))
	}
	r.byName[ind.Name()] = ind
	r.ordered = append(r.ordered, ind)
	return nil
}

// Names returns registered indicator names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, ind := range r.ordered {
		names[i] = ind.Name()
	}
	return names
}

// Len returns the number of registered indicators.
func (r *Registry) Len() int { return len(r.ordered) }

// RunAll evaluates every registered indicator against one tender, each exactly
// once. Invocations are independent and failure-isolated. The full result set,
// non-triggered results included, is returned so callers can audit "why not".
// When the context expires mid-run the results gathered so far are returned
// together with a timeout error; the caller decides how to downgrade.
func (r *Registry) RunAll(ctx context.Context, tenderID uuid.UUID) ([]risk.IndicatorResult, error) {
	return r.run(ctx, tenderID, r.ordered)
}

// RunCategory evaluates only the indicators of one category.
func (r *Registry) RunCategory(ctx context.Context, tenderID uuid.UUID, category risk.Category) ([]risk.IndicatorResult, error) {
	var subset []Indicator
	for _, ind := range r.ordered {
		if ind.Category() == category {
			subset = append(subset, ind)
		}
	}
	return r.run(ctx, tenderID, subset)
}

// RunSingle evaluates one indicator by name.
func (r *Registry) RunSingle(ctx context.Context, name string, tenderID uuid.UUID) (*risk.IndicatorResult, error) {
	ind, ok := r.byName[name]
	if !ok {
		return nil, domainerrors.NewNotFoundError(fmt.Sprintf("indicator %q", name))
	}
	res, err := r.evaluate(ctx, ind, tenderID)
	if errors.Is(err, domainerrors.ErrTenderNotFound) {
		return nil, domainerrors.ErrTenderNotFound
	}
	return &res, nil
}

func (r *Registry) run(ctx context.Context, tenderID uuid.UUID, indicators []Indicator) ([]risk.IndicatorResult, error) {
	if len(indicators) == 0 {
		return nil, nil
	}

	type slot struct {
		idx int
		res risk.IndicatorResult
		err error
	}
	done := make(chan slot, len(indicators))
	sem := make(chan struct{}, r.maxParallel)

	var wg sync.WaitGroup
	for idx, ind := range indicators {
		wg.Add(1)
		go func(idx int, ind Indicator) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			res, err := r.evaluate(ctx, ind, tenderID)
			done <- slot{idx: idx, res: res, err: err}
		}(idx, ind)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	collected := make([]*risk.IndicatorResult, len(indicators))
	timedOut := false
	notFound := false
collect:
	for {
		select {
		case s, ok := <-done:
			if !ok {
				break collect
			}
			if errors.Is(s.err, domainerrors.ErrTenderNotFound) {
				notFound = true
			}
			res := s.res
			collected[s.idx] = &res
		case <-ctx.Done():
			timedOut = true
			// Drain whatever already finished without waiting for the rest.
			for {
				select {
				case s, ok := <-done:
					if !ok {
						break collect
					}
					if errors.Is(s.err, domainerrors.ErrTenderNotFound) {
						notFound = true
					}
					res := s.res
					collected[s.idx] = &res
				default:
					break collect
				}
			}
		}
	}

	// Every indicator reads the same store, so a single not-found means the
	// tender does not exist: the assessment is unavailable, not low-confidence.
	if notFound {
		return nil, domainerrors.ErrTenderNotFound
	}

	results := make([]risk.IndicatorResult, 0, len(indicators))
	for _, res := range collected {
		if res != nil {
			results = append(results, *res)
		}
	}
	if timedOut {
		return results, domainerrors.NewTimeoutError(
			fmt.Sprintf("evaluation cancelled after %d of %d indicators", len(results), len(indicators)))
	}
	return results, nil
}

// evaluate runs one indicator with defensive isolation: indicators convert
// their own degenerate cases per contract, but a panic or an unexpected error
// here must not take the rest of the run down. The calculation error is
// returned alongside the fallback result so the caller can tell a missing
// tender apart from an indicator that failed on its own.
func (r *Registry) evaluate(ctx context.Context, ind Indicator, tenderID uuid.UUID) (out risk.IndicatorResult, calcErr error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("indicator panicked",
				zap.String("indicator", ind.Name()),
				zap.String("tender_id", tenderID.String()),
				zap.Any("panic", rec))
			out = failedResult(ind, tenderID, fmt.Sprintf("internal failure: %v", rec))
			calcErr = nil
		}
	}()

	res, err := ind.Calculate(ctx, tenderID)
	if err != nil {
		r.logger.Warn("indicator failed",
			zap.String("indicator", ind.Name()),
			zap.String("tender_id", tenderID.String()),
			zap.Error(err))
		return failedResult(ind, tenderID, err.Error()), err
	}
	return *res, nil
}

func failedResult(ind Indicator, tenderID uuid.UUID, reason string) risk.IndicatorResult {
	return risk.IndicatorResult{
		TenderID:           tenderID,
		Name:               ind.Name(),
		Category:           ind.Category(),
		Score:              0,
		Weight:             ind.Weight(),
		EffectiveThreshold: ind.BaseThreshold(),
		Triggered:          false,
		Confidence:         risk.ConfidenceLow,
		Degenerate:         true,
		Evidence:           risk.Evidence{}.With("degenerate_reason", reason),
		Description:        "indicator could not be evaluated",
	}
}

// NewDefaultRegistry builds a registry holding the full catalog.
func NewDefaultRegistry(deps Deps, cfg CatalogConfig, logger *zap.Logger) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = logger
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := NewRegistry(logger)
	catalog := []Indicator{
		NewSingleBidder(deps, cfg),
		NewHHIConcentration(deps, cfg),
		NewBidderEntropy(deps, cfg),
		NewLowBidderCount(deps, cfg),
		NewWinningBidZScore(deps, cfg),
		NewBidCoV(deps, cfg),
		NewSecondBidGapRatio(deps, cfg),
		NewEstimateDeviation(deps, cfg),
		NewShortSubmissionWindow(deps, cfg),
		NewSubmissionClustering(deps, cfg),
		NewQuietPeriodPublication(deps, cfg),
		NewInstitutionWinRate(deps, cfg),
		NewRepeatCoBidding(deps, cfg),
		NewNonCompetitiveProcedureRate(deps, cfg),
		NewContractModificationPattern(deps, cfg),
		NewDisqualificationRate(deps, cfg),
	}
	for _, ind := range catalog {
		if err := r.Register(ind); err != nil {
			return nil, err
		}
	}
	return r, nil
}
