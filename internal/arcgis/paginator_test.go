// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/url"
	"os"
	"reflect"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/feature-proximity/internal/http"
	"github.com/wneessen/feature-proximity/internal/logger"
	"github.com/wneessen/feature-proximity/internal/testhelper"
)

// fakeFetcher answers each call with the next body of its list. Once the list is exhausted
// the last body is repeated.
type fakeFetcher struct {
	bodies  []string
	err     error
	calls   []url.Values
	methods []string
	onCall  func(call int)
}

func (f *fakeFetcher) Get(_ context.Context, _ string, target any, query url.Values, _ map[string]string) (int, error) {
	return f.respond(stdhttp.MethodGet, target, query)
}

func (f *fakeFetcher) PostForm(_ context.Context, _ string, target any, form url.Values, _ map[string]string) (int, error) {
	return f.respond(stdhttp.MethodPost, target, form)
}

func (f *fakeFetcher) respond(method string, target any, params url.Values) (int, error) {
	f.calls = append(f.calls, params)
	f.methods = append(f.methods, method)
	if f.onCall != nil {
		f.onCall(len(f.calls))
	}
	if f.err != nil {
		return 0, f.err
	}
	idx := min(len(f.calls)-1, len(f.bodies)-1)
	return stdhttp.StatusOK, json.Unmarshal([]byte(f.bodies[idx]), target)
}

func TestNewPaginator(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := NewPaginator(&fakeFetcher{}, testLogger())
		if p.ceiling != DefaultRecordCeiling {
			t.Errorf("expected default ceiling %d, got %d", DefaultRecordCeiling, p.ceiling)
		}
		if p.pageDelay != DefaultPageDelay {
			t.Errorf("expected default page delay %s, got %s", DefaultPageDelay, p.pageDelay)
		}
	})
	t.Run("options", func(t *testing.T) {
		p := NewPaginator(&fakeFetcher{}, testLogger(), WithRecordCeiling(10), WithPageDelay(time.Second))
		if p.ceiling != 10 || p.pageDelay != time.Second {
			t.Errorf("unexpected paginator settings: ceiling=%d delay=%s", p.ceiling, p.pageDelay)
		}
	})
	t.Run("invalid options restore defaults", func(t *testing.T) {
		p := NewPaginator(&fakeFetcher{}, testLogger(), WithRecordCeiling(-1), WithPageDelay(-time.Second))
		if p.ceiling != DefaultRecordCeiling || p.pageDelay != 0 {
			t.Errorf("unexpected paginator settings: ceiling=%d delay=%s", p.ceiling, p.pageDelay)
		}
	})
}

func TestPaginator_FetchAll(t *testing.T) {
	t.Run("pagination equals a single unbounded response", func(t *testing.T) {
		paged := &fakeFetcher{bodies: fixtures(t, "page1.json", "page2.json", "page3.json")}
		single := &fakeFetcher{bodies: fixtures(t, "all.json")}

		spec := testSpec()
		got, err := NewPaginator(paged, testLogger(), WithPageDelay(0)).FetchAll(t.Context(), spec)
		if err != nil {
			t.Fatalf("failed to fetch paged features: %s", err)
		}
		spec.PageSize = 1000
		want, err := NewPaginator(single, testLogger(), WithPageDelay(0)).FetchAll(t.Context(), spec)
		if err != nil {
			t.Fatalf("failed to fetch unbounded features: %s", err)
		}
		if len(got) != 5 {
			t.Fatalf("expected 5 features, got %d", len(got))
		}
		if !reflect.DeepEqual(featureIDs(got), featureIDs(want)) {
			t.Errorf("expected paged ids %v to equal unbounded ids %v", featureIDs(got), featureIDs(want))
		}
		if len(paged.calls) != 3 || len(single.calls) != 1 {
			t.Errorf("expected 3 and 1 calls, got %d and %d", len(paged.calls), len(single.calls))
		}
		for i, offset := range []string{"0", "2", "4"} {
			if got := paged.calls[i].Get("resultOffset"); got != offset {
				t.Errorf("expected call %d to use offset %s, got %s", i, offset, got)
			}
		}
	})
	t.Run("full page continues without transfer limit flag", func(t *testing.T) {
		fetcher := &fakeFetcher{bodies: []string{
			pageJSON(false, 1, 2),
			pageJSON(false, 3),
		}}
		got, err := NewPaginator(fetcher, testLogger(), WithPageDelay(0)).FetchAll(t.Context(), testSpec())
		if err != nil {
			t.Fatalf("failed to fetch features: %s", err)
		}
		if len(got) != 3 || len(fetcher.calls) != 2 {
			t.Errorf("expected 3 features in 2 calls, got %d in %d", len(got), len(fetcher.calls))
		}
	})
	t.Run("empty page stops even if transfer limit is exceeded", func(t *testing.T) {
		fetcher := &fakeFetcher{bodies: []string{pageJSON(true, 1, 2), pageJSON(true)}}
		got, err := NewPaginator(fetcher, testLogger(), WithPageDelay(0)).FetchAll(t.Context(), testSpec())
		if err != nil {
			t.Fatalf("failed to fetch features: %s", err)
		}
		if len(got) != 2 || len(fetcher.calls) != 2 {
			t.Errorf("expected 2 features in 2 calls, got %d in %d", len(got), len(fetcher.calls))
		}
	})
	t.Run("short page advances by received records", func(t *testing.T) {
		fetcher := &fakeFetcher{bodies: []string{pageJSON(true, 1), pageJSON(false, 2)}}
		if _, err := NewPaginator(fetcher, testLogger(), WithPageDelay(0)).FetchAll(t.Context(), testSpec()); err != nil {
			t.Fatalf("failed to fetch features: %s", err)
		}
		if got := fetcher.calls[1].Get("resultOffset"); got != "1" {
			t.Errorf("expected second offset to be 1, got %s", got)
		}
	})
	t.Run("record ceiling stops a misbehaving service", func(t *testing.T) {
		fetcher := &fakeFetcher{bodies: []string{pageJSON(true, 1, 2)}}
		got, err := NewPaginator(fetcher, testLogger(), WithPageDelay(0), WithRecordCeiling(5)).
			FetchAll(t.Context(), testSpec())
		if err != nil {
			t.Fatalf("expected ceiling not to be an error, got %s", err)
		}
		if len(got) != 5 {
			t.Errorf("expected 5 features, got %d", len(got))
		}
		if len(fetcher.calls) != 3 {
			t.Errorf("expected 3 calls, got %d", len(fetcher.calls))
		}
	})
	t.Run("remote error returns partial result", func(t *testing.T) {
		fetcher := &fakeFetcher{bodies: fixtures(t, "page1.json", "error.json")}
		got, err := NewPaginator(fetcher, testLogger(), WithPageDelay(0)).FetchAll(t.Context(), testSpec())
		var remoteErr *RemoteServiceError
		if !errors.As(err, &remoteErr) {
			t.Fatalf("expected RemoteServiceError, got %v", err)
		}
		if remoteErr.Code != 400 || remoteErr.Dataset != "hydrants" || len(remoteErr.Details) != 1 {
			t.Errorf("unexpected remote error: %+v", remoteErr)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 partial features, got %d", len(got))
		}
	})
	t.Run("remote error on first page", func(t *testing.T) {
		fetcher := &fakeFetcher{bodies: fixtures(t, "error.json")}
		got, err := NewPaginator(fetcher, testLogger()).FetchAll(t.Context(), testSpec())
		var remoteErr *RemoteServiceError
		if !errors.As(err, &remoteErr) {
			t.Fatalf("expected RemoteServiceError, got %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no features, got %d", len(got))
		}
	})
	t.Run("missing features array ends the query", func(t *testing.T) {
		fetcher := &fakeFetcher{bodies: fixtures(t, "page1.json", "nofeatures.json")}
		got, err := NewPaginator(fetcher, testLogger(), WithPageDelay(0)).FetchAll(t.Context(), testSpec())
		if err != nil {
			t.Fatalf("expected missing features not to be an error, got %s", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 features, got %d", len(got))
		}
	})
	t.Run("transport error", func(t *testing.T) {
		fetcher := &fakeFetcher{err: &http.StatusError{Code: 500, Status: "500 Internal Server Error"}}
		_, err := NewPaginator(fetcher, testLogger()).FetchAll(t.Context(), testSpec())
		var statusErr *http.StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected StatusError, got %v", err)
		}
	})
	t.Run("invalid spec does not call the service", func(t *testing.T) {
		fetcher := &fakeFetcher{bodies: fixtures(t, "all.json")}
		spec := testSpec()
		spec.LayerID = ""
		_, err := NewPaginator(fetcher, testLogger()).FetchAll(t.Context(), spec)
		var specErr *InvalidSpecError
		if !errors.As(err, &specErr) {
			t.Fatalf("expected InvalidSpecError, got %v", err)
		}
		if len(fetcher.calls) != 0 {
			t.Errorf("expected no calls, got %d", len(fetcher.calls))
		}
	})
	t.Run("post method sends a form", func(t *testing.T) {
		fetcher := &fakeFetcher{bodies: fixtures(t, "all.json")}
		spec := testSpec()
		spec.Method = MethodPost
		spec.PageSize = 100
		if _, err := NewPaginator(fetcher, testLogger()).FetchAll(t.Context(), spec); err != nil {
			t.Fatalf("failed to fetch features: %s", err)
		}
		if len(fetcher.methods) != 1 || fetcher.methods[0] != stdhttp.MethodPost {
			t.Errorf("expected a single POST request, got %v", fetcher.methods)
		}
	})
}

func TestPaginator_FetchAll_cancel(t *testing.T) {
	t.Run("cancellation between pages returns partial result", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		fetcher := &fakeFetcher{
			bodies: fixtures(t, "page1.json", "page2.json", "page3.json"),
			onCall: func(call int) {
				if call == 2 {
					cancel()
				}
			},
		}
		got, err := NewPaginator(fetcher, testLogger(), WithPageDelay(0)).FetchAll(ctx, testSpec())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(got) != 4 {
			t.Errorf("expected 4 partial features, got %d", len(got))
		}
		if len(fetcher.calls) != 2 {
			t.Errorf("expected no request after cancellation, got %d calls", len(fetcher.calls))
		}
	})
	t.Run("cancellation during page delay", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			fetcher := &fakeFetcher{bodies: fixtures(t, "page1.json", "page2.json")}
			paginator := NewPaginator(fetcher, testLogger(), WithPageDelay(time.Minute))
			go func() {
				time.Sleep(30 * time.Second)
				cancel()
			}()
			got, err := paginator.FetchAll(ctx, testSpec())
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
			if len(got) != 2 || len(fetcher.calls) != 1 {
				t.Errorf("expected 2 features in 1 call, got %d in %d", len(got), len(fetcher.calls))
			}
		})
	})
	t.Run("already cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		fetcher := &fakeFetcher{bodies: fixtures(t, "all.json")}
		got, err := NewPaginator(fetcher, testLogger()).FetchAll(ctx, testSpec())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(got) != 0 || len(fetcher.calls) != 0 {
			t.Errorf("expected no features and no calls, got %d and %d", len(got), len(fetcher.calls))
		}
	})
}

func TestPaginator_FetchAll_pageDelay(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		fetcher := &fakeFetcher{bodies: fixtures(t, "page1.json", "page2.json", "page3.json")}
		start := time.Now()
		got, err := NewPaginator(fetcher, testLogger()).FetchAll(t.Context(), testSpec())
		if err != nil {
			t.Fatalf("failed to fetch features: %s", err)
		}
		if len(got) != 5 {
			t.Fatalf("expected 5 features, got %d", len(got))
		}
		if elapsed := time.Since(start); elapsed != 2*DefaultPageDelay {
			t.Errorf("expected two page delays of %s, got %s in total", DefaultPageDelay, elapsed)
		}
	})
}

func TestPaginator_FetchAll_httpClient(t *testing.T) {
	t.Run("pages served through the HTTP client", func(t *testing.T) {
		pages := map[string]string{"0": "page1.json", "2": "page2.json", "4": "page3.json"}
		client := http.New(testLogger())
		client.Transport = testhelper.MockRoundTripper{Fn: func(req *stdhttp.Request) (*stdhttp.Response, error) {
			file, ok := pages[req.URL.Query().Get("resultOffset")]
			if !ok {
				return nil, fmt.Errorf("unexpected offset: %s", req.URL.Query().Get("resultOffset"))
			}
			body, err := os.Open("testdata/" + file)
			if err != nil {
				return nil, err
			}
			return &stdhttp.Response{StatusCode: stdhttp.StatusOK, Body: body, Header: make(stdhttp.Header)}, nil
		}}
		got, err := NewPaginator(client, testLogger(), WithPageDelay(0)).FetchAll(t.Context(), testSpec())
		if err != nil {
			t.Fatalf("failed to fetch features: %s", err)
		}
		if !reflect.DeepEqual(featureIDs(got), []string{"1", "2", "3", "4", "5"}) {
			t.Errorf("unexpected feature ids: %v", featureIDs(got))
		}
	})
	t.Run("online feature service", func(t *testing.T) {
		testhelper.PerformIntegrationTests(t)
		spec := QuerySpec{
			Dataset:              "counties",
			ServiceURL:           testhelper.TestOnlineAPIURL,
			LayerID:              "0",
			Center:               testSpec().Center,
			RequestedRadiusMiles: 10,
			PageSize:             5,
		}
		got, err := NewPaginator(http.New(testLogger()), testLogger()).FetchAll(t.Context(), spec)
		if err != nil {
			t.Fatalf("failed to fetch features: %s", err)
		}
		if len(got) == 0 {
			t.Error("expected at least one county within 10 miles")
		}
	})
}

func testLogger() *logger.Logger {
	return logger.NewLogger(slog.LevelDebug, io.Discard)
}

func fixtures(t *testing.T, files ...string) []string {
	t.Helper()
	bodies := make([]string, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile("testdata/" + file)
		if err != nil {
			t.Fatalf("failed to read fixture: %s", err)
		}
		bodies = append(bodies, string(data))
	}
	return bodies
}

func pageJSON(exceeded bool, ids ...int) string {
	features := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		features = append(features, map[string]any{
			"attributes": map[string]any{"OBJECTID": id},
			"geometry":   map[string]any{"x": -75, "y": 40},
		})
	}
	data, _ := json.Marshal(map[string]any{"features": features, "exceededTransferLimit": exceeded})
	return string(data)
}

func featureIDs(features []RawFeature) []string {
	ids := make([]string, 0, len(features))
	for _, f := range features {
		id, _ := f.ID()
		ids = append(ids, id)
	}
	return ids
}
