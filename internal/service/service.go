// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package service wires configuration, transport, query engine, caches and presentation into
// the runnable feature-proximity application.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/text/language"

	"github.com/wneessen/feature-proximity/internal/arcgis"
	"github.com/wneessen/feature-proximity/internal/attrmap"
	"github.com/wneessen/feature-proximity/internal/cache"
	"github.com/wneessen/feature-proximity/internal/config"
	"github.com/wneessen/feature-proximity/internal/geocode"
	nominatim "github.com/wneessen/feature-proximity/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/feature-proximity/internal/geometry"
	"github.com/wneessen/feature-proximity/internal/http"
	"github.com/wneessen/feature-proximity/internal/logger"
	"github.com/wneessen/feature-proximity/internal/metrics"
	"github.com/wneessen/feature-proximity/internal/presenter"
	"github.com/wneessen/feature-proximity/internal/proximity"
)

const (
	geocodeMissTTL = time.Minute * 5
	watchJobName   = "dataset_query_job"
)

var (
	// ErrNoCenter is returned if a request carries neither coordinates nor an address
	ErrNoCenter = errors.New("either coordinates or an address are required")
	// ErrNoDatasets is returned if no dataset is configured
	ErrNoDatasets = errors.New("no datasets configured")
)

// Request describes a single query run over one or many datasets
type Request struct {
	// Center is used if no Address is given
	Center  *geometry.Point
	Address string
	// RadiusMiles overrides the configured default radius if positive
	RadiusMiles float64
	// Datasets limits the run to the named datasets. All datasets are queried if empty.
	Datasets []string
	// MaxResults overrides the configured result limits if positive
	MaxResults int
}

// AllFailedError is returned if every dataset of a run failed
type AllFailedError struct {
	Count int
}

func (e *AllFailedError) Error() string {
	return fmt.Sprintf("all %d dataset queries failed", e.Count)
}

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	http      *http.Client
	engine    *proximity.Engine
	runner    proximity.Runner
	store     cache.Cache
	geocoder  geocode.Geocoder
	presenter *presenter.Presenter
	output    io.Writer
	now       func() time.Time
}

func New(conf *config.Config, log *logger.Logger) (*Service, error) {
	if conf == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if len(conf.Datasets) == 0 {
		return nil, ErrNoDatasets
	}

	pres, err := presenter.New(conf.Output.Format, conf.Output.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}
	lang, err := language.Parse(conf.Geocoder.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geocoder language: %w", err)
	}
	store, err := selectCache(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	client := http.New(log,
		http.WithTimeout(conf.HTTP.Timeout),
		http.WithRetryPolicy(http.RetryPolicy{
			MaxRetries: conf.HTTP.MaxRetries,
			BaseDelay:  conf.HTTP.BaseDelay,
			MaxDelay:   conf.HTTP.MaxDelay,
		}),
	)
	paginator := arcgis.NewPaginator(client, log,
		arcgis.WithRecordCeiling(conf.Query.RecordCeiling),
		arcgis.WithPageDelay(conf.Query.PageDelay),
	)

	engine := proximity.NewEngine(paginator, log, proximity.WithConcurrency(conf.Query.Concurrency))
	var runner proximity.Runner = engine
	if store != nil {
		runner = proximity.NewCachedEngine(runner, store, conf.Cache.TTL, log)
	}

	// geocoding results share the result cache if one is configured
	geoStore := store
	if geoStore == nil {
		geoStore = cache.NewMemory()
	}

	service := &Service{
		config:    conf,
		logger:    log,
		http:      client,
		engine:    engine,
		runner:    runner,
		store:     store,
		geocoder:  geocode.NewCachedGeocoder(nominatim.New(client, lang), geoStore, conf.Geocoder.CacheTTL,
			geocodeMissTTL, log),
		presenter: pres,
		output:    os.Stdout,
		now:       time.Now,
	}
	return service, nil
}

// Close releases the result cache
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Query resolves the center of the request and runs all selected datasets against it
func (s *Service) Query(ctx context.Context, req Request) (presenter.Report, error) {
	center, address, err := s.resolveCenter(ctx, req)
	if err != nil {
		return presenter.Report{}, err
	}
	plans, err := s.Plans(req, center)
	if err != nil {
		return presenter.Report{}, err
	}

	radius := s.radius(req)
	s.logger.Debug("querying datasets", slog.Int("datasets", len(plans)), slog.Float64("lat", center.Lat),
		slog.Float64("lon", center.Lon), slog.Float64("radius_miles", radius))
	results := proximity.RunAll(ctx, s.runner, plans, s.engine.Concurrency())
	return s.presenter.BuildReport(center, address, radius, results, s.now()), nil
}

// RunOnce runs a single query and renders the report to the output of the Service. Failing
// datasets are part of the report, an error is only returned if all of them failed.
func (s *Service) RunOnce(ctx context.Context, req Request) error {
	report, err := s.Query(ctx, req)
	if err != nil {
		return err
	}
	if err = s.presenter.Render(s.output, report); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	failed := 0
	for _, ds := range report.Datasets {
		if ds.Error != "" {
			failed++
		}
	}
	if failed > 0 && failed == len(report.Datasets) {
		return &AllFailedError{Count: failed}
	}
	return nil
}

// Watch re-runs the query on the configured interval until the context is cancelled. The
// first run starts immediately. If a metrics address is configured, the Prometheus metrics
// are served while watching.
func (s *Service) Watch(ctx context.Context, req Request) error {
	// fail early on requests that can never succeed
	if _, err := s.Plans(req, geometry.Point{}); err != nil {
		return err
	}
	if req.Address == "" && req.Center == nil {
		return ErrNoCenter
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.config.Watch.Interval),
		gocron.NewTask(func(ctx context.Context) {
			if err := s.RunOnce(ctx, req); err != nil {
				s.logger.Error("scheduled dataset query failed", logger.Err(err))
			}
		}),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName(watchJobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", watchJobName, err)
	}
	scheduler.Start()

	metricsErr := make(chan error, 1)
	if s.config.Metrics.Addr != "" {
		go func() {
			s.logger.Info("serving metrics", slog.String("addr", s.config.Metrics.Addr))
			metricsErr <- metrics.Serve(ctx, s.config.Metrics.Addr)
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-metricsErr:
		if err != nil {
			s.logger.Error("metrics server failed", logger.Err(err))
		}
		<-ctx.Done()
	}
	return scheduler.Shutdown()
}

// Plans returns the query plans of all datasets selected by the request
func (s *Service) Plans(req Request, center geometry.Point) ([]proximity.QueryPlan, error) {
	datasets, err := s.config.SelectDatasets(req.Datasets...)
	if err != nil {
		return nil, err
	}
	radius := s.radius(req)
	plans := make([]proximity.QueryPlan, 0, len(datasets))
	for _, ds := range datasets {
		plans = append(plans, s.plan(ds, center, radius, req.MaxResults))
	}
	return plans, nil
}

func (s *Service) plan(ds config.Dataset, center geometry.Point, radius float64, maxResults int) proximity.QueryPlan {
	pageSize := ds.PageSize
	if pageSize <= 0 {
		pageSize = s.config.Query.PageSize
	}
	spec := arcgis.QuerySpec{
		Dataset:               ds.Name,
		ServiceURL:            ds.ServiceURL,
		LayerID:               ds.LayerID,
		Center:                center,
		RequestedRadiusMiles:  radius,
		ServiceMaxRadiusMiles: ds.MaxRadiusMiles,
		PageSize:              pageSize,
		RequireRadius:         ds.RequireRadius,
		Method:                arcgis.Method(ds.Method),
		Where:                 ds.Where,
		OutFields:             ds.OutFields,
	}
	if ds.ContainmentOnly {
		spec.SpatialRelation = arcgis.RelationContains
	}

	switch {
	case maxResults > 0:
	case ds.MaxResults > 0:
		maxResults = ds.MaxResults
	default:
		maxResults = s.config.Query.MaxResults
	}

	return proximity.QueryPlan{
		Spec:        spec,
		Containment: ds.Containment,
		IDFields:    ds.IDFields,
		Aliases:     attrmap.Table(ds.Aliases),
		MaxResults:  maxResults,
	}
}

func (s *Service) radius(req Request) float64 {
	if req.RadiusMiles > 0 {
		return req.RadiusMiles
	}
	return s.config.Query.RadiusMiles
}

// resolveCenter returns the query center of the request and, for address requests, the
// display name of the geocoded address
func (s *Service) resolveCenter(ctx context.Context, req Request) (geometry.Point, string, error) {
	if req.Address == "" {
		if req.Center == nil {
			return geometry.Point{}, "", ErrNoCenter
		}
		if !req.Center.Valid() {
			return geometry.Point{}, "", fmt.Errorf("invalid coordinates: %f, %f", req.Center.Lat, req.Center.Lon)
		}
		return *req.Center, "", nil
	}

	loc, err := s.geocoder.Search(ctx, req.Address)
	if err != nil {
		return geometry.Point{}, "", fmt.Errorf("failed to geocode address: %w", err)
	}
	if !loc.Found {
		return geometry.Point{}, "", fmt.Errorf("address not found: %s", req.Address)
	}
	s.logger.Debug("address successfully resolved", slog.String("address", loc.DisplayName),
		slog.Bool("cache_hit", loc.CacheHit))
	return loc.Point, loc.DisplayName, nil
}

func selectCache(conf *config.Config) (cache.Cache, error) {
	switch conf.Cache.Backend {
	case config.CacheMemory:
		return cache.NewMemory(), nil
	case config.CacheValkey:
		return cache.NewValkey(conf.Cache.ValkeyAddr)
	case config.CacheNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", conf.Cache.Backend)
	}
}
