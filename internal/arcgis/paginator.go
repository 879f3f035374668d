// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package arcgis

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/wneessen/feature-proximity/internal/logger"
	"github.com/wneessen/feature-proximity/internal/metrics"
)

const (
	// DefaultRecordCeiling bounds the number of records fetched for a single query
	DefaultRecordCeiling = 100_000
	// DefaultPageDelay is the pause between two page requests
	DefaultPageDelay = 100 * time.Millisecond
)

// Fetcher performs a single JSON request. *http.Client of this module satisfies it.
type Fetcher interface {
	Get(ctx context.Context, endpoint string, target any, query url.Values, headers map[string]string) (int, error)
	PostForm(ctx context.Context, endpoint string, target any, form url.Values, headers map[string]string) (int, error)
}

// Paginator drives layer queries page by page until the service has no more records.
type Paginator struct {
	fetcher   Fetcher
	logger    *logger.Logger
	ceiling   int
	pageDelay time.Duration
	sleep     func(context.Context, time.Duration) bool
}

// PaginatorOption configures a Paginator
type PaginatorOption func(*Paginator)

// WithRecordCeiling sets the maximum number of records fetched per query. Values <= 0 restore
// the default.
func WithRecordCeiling(ceiling int) PaginatorOption {
	return func(p *Paginator) {
		if ceiling <= 0 {
			ceiling = DefaultRecordCeiling
		}
		p.ceiling = ceiling
	}
}

// WithPageDelay sets the courtesy delay between two page requests. Zero disables the delay.
func WithPageDelay(delay time.Duration) PaginatorOption {
	return func(p *Paginator) {
		if delay < 0 {
			delay = 0
		}
		p.pageDelay = delay
	}
}

// NewPaginator returns a Paginator that uses fetcher for all requests
func NewPaginator(fetcher Fetcher, log *logger.Logger, opts ...PaginatorOption) *Paginator {
	p := &Paginator{
		fetcher:   fetcher,
		logger:    log,
		ceiling:   DefaultRecordCeiling,
		pageDelay: DefaultPageDelay,
		sleep:     sleepOrDone,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchAll fetches all pages of the query described by spec.
//
// A remote error object aborts the query with a *RemoteServiceError. A response without a
// features array ends the query without error. If the context is cancelled, no further pages
// are requested and the records fetched so far are returned together with the context error.
// In all error cases the records fetched before the error are returned.
func (p *Paginator) FetchAll(ctx context.Context, spec QuerySpec) ([]RawFeature, error) {
	log := p.logger.With(slog.String("dataset", spec.Dataset), slog.String("relation", string(spec.Relation())))
	cursor := NewCursor(spec)

	var features []RawFeature
	for {
		if err := ctx.Err(); err != nil {
			return features, fmt.Errorf("query cancelled at offset %d: %w", cursor.Offset, err)
		}

		request, err := Build(spec, cursor)
		if err != nil {
			return features, err
		}
		page, err := p.fetchPage(ctx, request)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return features, fmt.Errorf("query cancelled at offset %d: %w", cursor.Offset, ctxErr)
			}
			return features, fmt.Errorf("failed to fetch page at offset %d: %w", cursor.Offset, err)
		}

		if page.Error != nil {
			remoteErr := &RemoteServiceError{
				Dataset: spec.Dataset,
				Code:    page.Error.Code,
				Message: page.Error.Message,
				Details: page.Error.Details,
			}
			log.Warn("feature service returned an error", slog.Int("offset", cursor.Offset),
				slog.Int("code", page.Error.Code), slog.String("message", page.Error.Message))
			return features, remoteErr
		}
		if page.Features == nil {
			malformed := &MalformedResponseError{Dataset: spec.Dataset, Offset: cursor.Offset,
				Reason: "response has no features array"}
			log.Warn("treating malformed response as end of data", logger.Err(malformed))
			return features, nil
		}

		features = append(features, page.Features...)
		metrics.PagesFetched.WithLabelValues(spec.Dataset).Inc()
		metrics.FeaturesFetched.WithLabelValues(spec.Dataset).Add(float64(len(page.Features)))
		log.Debug("fetched feature page", slog.Int("offset", cursor.Offset), slog.Int("count", len(page.Features)),
			slog.Int("total", len(features)), slog.Bool("exceeded_transfer_limit", page.ExceededTransferLimit))

		if len(features) >= p.ceiling {
			log.Warn("record ceiling reached, stopping pagination", slog.Int("ceiling", p.ceiling),
				slog.Int("total", len(features)))
			return features[:p.ceiling], nil
		}
		if !hasMore(page, cursor) {
			return features, nil
		}

		cursor = cursor.Next(len(page.Features))
		if p.pageDelay > 0 && !p.sleep(ctx, p.pageDelay) {
			return features, fmt.Errorf("query cancelled at offset %d: %w", cursor.Offset, ctx.Err())
		}
	}
}

func (p *Paginator) fetchPage(ctx context.Context, request Request) (*Response, error) {
	page := new(Response)
	var err error
	switch request.Method {
	case MethodPost:
		_, err = p.fetcher.PostForm(ctx, request.Endpoint, page, request.Params, nil)
	default:
		_, err = p.fetcher.Get(ctx, request.Endpoint, page, request.Params, nil)
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

// hasMore reports whether another page should be requested. An empty page always ends
// the query, even if the service claims to have more records.
func hasMore(page *Response, cursor PageCursor) bool {
	if len(page.Features) == 0 {
		return false
	}
	return page.ExceededTransferLimit || len(page.Features) == cursor.PageSize
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
