// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package proximity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wneessen/feature-proximity/internal/arcgis"
	"github.com/wneessen/feature-proximity/internal/logger"
	"github.com/wneessen/feature-proximity/internal/metrics"
)

// DefaultConcurrency is the number of datasets queried in parallel by RunAll
const DefaultConcurrency = 4

// Fetcher fetches all raw features of a query. *arcgis.Paginator satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context, spec arcgis.QuerySpec) ([]arcgis.RawFeature, error)
}

// Runner executes a QueryPlan
type Runner interface {
	Run(ctx context.Context, plan QueryPlan) Result
}

// Result is the outcome of a dataset query. If Err is set, Features holds whatever could be
// assembled before the error occurred.
type Result struct {
	Dataset  string
	Features []Feature
	Err      error
	Duration time.Duration
	Cached   bool
}

// Engine runs dataset queries
type Engine struct {
	fetcher     Fetcher
	logger      *logger.Logger
	concurrency int
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithConcurrency limits the number of datasets RunAll queries in parallel. Values <= 0
// restore the default.
func WithConcurrency(limit int) EngineOption {
	return func(e *Engine) {
		if limit <= 0 {
			limit = DefaultConcurrency
		}
		e.concurrency = limit
	}
}

func NewEngine(fetcher Fetcher, log *logger.Logger, opts ...EngineOption) *Engine {
	engine := &Engine{
		fetcher:     fetcher,
		logger:      log,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// ProximityQuery runs a single phase query for spec and returns the assembled features
func (e *Engine) ProximityQuery(ctx context.Context, spec arcgis.QuerySpec) ([]Feature, error) {
	result := e.Run(ctx, QueryPlan{Spec: spec})
	return result.Features, result.Err
}

// Run executes all phases of the plan in order. A proximity phase without a radius is skipped
// without contacting the service. The first failing phase ends the plan.
func (e *Engine) Run(ctx context.Context, plan QueryPlan) Result {
	start := time.Now()
	dataset := plan.Dataset()
	log := e.logger.With(slog.String("dataset", dataset))

	phases := make([]PhaseResult, 0, 2)
	var err error
	for _, phase := range plan.Phases() {
		raw, fetchErr := e.fetcher.FetchAll(ctx, phase.Spec)
		if errors.Is(fetchErr, arcgis.ErrNoRadius) {
			log.Debug("no search radius given, skipping query phase", slog.String("phase", string(phase.Phase)))
			continue
		}
		phases = append(phases, PhaseResult{Phase: phase.Phase, Features: raw})
		if fetchErr != nil {
			err = fmt.Errorf("%s phase failed: %w", phase.Phase, fetchErr)
			break
		}
	}

	features := Assemble(phases, plan.assembleOptions())
	duration := time.Since(start)
	metrics.DatasetDuration.WithLabelValues(dataset).Observe(duration.Seconds())
	if err != nil {
		metrics.DatasetFailures.WithLabelValues(dataset).Inc()
		log.Warn("dataset query failed", logger.Err(err), slog.Int("partial", len(features)))
	} else {
		log.Debug("dataset query completed", slog.Int("count", len(features)), slog.Duration("duration", duration))
	}

	return Result{Dataset: dataset, Features: features, Err: err, Duration: duration}
}

// Concurrency returns the number of plans RunAll runs in parallel
func (e *Engine) Concurrency() int {
	return e.concurrency
}

// RunAll runs all plans with bounded parallelism. See RunAll.
func (e *Engine) RunAll(ctx context.Context, plans []QueryPlan) []Result {
	return RunAll(ctx, e, plans, e.concurrency)
}

// RunAll runs all plans with runner, at most limit at a time. The results are returned in plan
// order. A failing plan never cancels its siblings, its error is reported in its Result.
func RunAll(ctx context.Context, runner Runner, plans []QueryPlan, limit int) []Result {
	results := make([]Result, len(plans))

	var group errgroup.Group
	if limit > 0 {
		group.SetLimit(limit)
	}
	for i, plan := range plans {
		group.Go(func() error {
			results[i] = runner.Run(ctx, plan)
			return nil
		})
	}
	_ = group.Wait()

	return results
}
