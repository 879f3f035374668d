// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package arcgis

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/wneessen/feature-proximity/internal/geometry"
)

const testServiceURL = "https://services.example.com/arcgis/rest/services/Hydrants/FeatureServer"

func testSpec() QuerySpec {
	return QuerySpec{
		Dataset:              "hydrants",
		ServiceURL:           testServiceURL,
		LayerID:              "0",
		Center:               geometry.Point{Lat: 40, Lon: -75},
		RequestedRadiusMiles: 5,
		PageSize:             2,
	}
}

func TestQuerySpec_EffectiveRadiusMiles(t *testing.T) {
	tests := []struct {
		name      string
		requested float64
		max       float64
		want      float64
	}{
		{"below service maximum", 2, 5, 2},
		{"above service maximum", 10, 5, 5},
		{"equal to service maximum", 5, 5, 5},
		{"no service maximum", 25, 0, 25},
		{"negative service maximum", 25, -1, 25},
		{"no radius", 0, 5, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := QuerySpec{RequestedRadiusMiles: tc.requested, ServiceMaxRadiusMiles: tc.max}
			if got := spec.EffectiveRadiusMiles(); got != tc.want {
				t.Errorf("expected effective radius %f, got %f", tc.want, got)
			}
		})
	}
	t.Run("clamp property", func(t *testing.T) {
		rng := rand.New(rand.NewPCG(3, 4))
		for range 1000 {
			maxRadius := rng.Float64()*50 + 0.1
			spec := QuerySpec{RequestedRadiusMiles: maxRadius + rng.Float64()*100, ServiceMaxRadiusMiles: maxRadius}
			if got := spec.EffectiveRadiusMiles(); got != maxRadius {
				t.Fatalf("expected radius to be clamped to %f, got %f", maxRadius, got)
			}
		}
	})
}

func TestQuerySpec_Endpoint(t *testing.T) {
	tests := []struct {
		name    string
		service string
		layer   string
		want    string
	}{
		{"plain", testServiceURL, "0", testServiceURL + "/0/query"},
		{"trailing slash", testServiceURL + "/", "3", testServiceURL + "/3/query"},
		{"escaped layer", testServiceURL, "a b", testServiceURL + "/a%20b/query"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := QuerySpec{ServiceURL: tc.service, LayerID: tc.layer}
			if got := spec.Endpoint(); got != tc.want {
				t.Errorf("expected endpoint %q, got %q", tc.want, got)
			}
		})
	}
}

func TestNewCursor(t *testing.T) {
	t.Run("page size from spec", func(t *testing.T) {
		cursor := NewCursor(testSpec())
		if cursor.Offset != 0 || cursor.PageSize != 2 {
			t.Errorf("unexpected cursor: %+v", cursor)
		}
	})
	t.Run("default page size", func(t *testing.T) {
		cursor := NewCursor(QuerySpec{})
		if cursor.PageSize != DefaultPageSize {
			t.Errorf("expected default page size %d, got %d", DefaultPageSize, cursor.PageSize)
		}
	})
	t.Run("next advances by received records", func(t *testing.T) {
		cursor := PageCursor{Offset: 10, PageSize: 5}.Next(3)
		if cursor.Offset != 13 || cursor.PageSize != 5 {
			t.Errorf("unexpected cursor: %+v", cursor)
		}
	})
}

func TestBuild(t *testing.T) {
	t.Run("proximity query parameters", func(t *testing.T) {
		req, err := Build(testSpec(), PageCursor{Offset: 4, PageSize: 2})
		if err != nil {
			t.Fatalf("failed to build request: %s", err)
		}
		if req.Endpoint != testServiceURL+"/0/query" {
			t.Errorf("unexpected endpoint: %s", req.Endpoint)
		}
		if req.Method != MethodGet {
			t.Errorf("expected default method GET, got %s", req.Method)
		}
		want := map[string]string{
			"f":                 "json",
			"where":             "1=1",
			"outFields":         "*",
			"geometry":          `{"x":-75,"y":40,"spatialReference":{"wkid":4326}}`,
			"geometryType":      "esriGeometryPoint",
			"spatialRel":        "esriSpatialRelIntersects",
			"distance":          "8046.70",
			"units":             "esriSRUnit_Meter",
			"inSR":              "4326",
			"outSR":             "4326",
			"returnGeometry":    "true",
			"resultRecordCount": "2",
			"resultOffset":      "4",
		}
		for key, val := range want {
			if got := req.Params.Get(key); got != val {
				t.Errorf("expected parameter %s to be %q, got %q", key, val, got)
			}
		}
		if len(req.Params) != len(want) {
			t.Errorf("expected %d parameters, got %d", len(want), len(req.Params))
		}
	})
	t.Run("geometry parameter is valid JSON", func(t *testing.T) {
		spec := testSpec()
		spec.Center = geometry.Point{Lat: 39.95258, Lon: -75.16522}
		req, err := Build(spec, NewCursor(spec))
		if err != nil {
			t.Fatalf("failed to build request: %s", err)
		}
		var geom struct {
			X   float64 `json:"x"`
			Y   float64 `json:"y"`
			Ref struct {
				WKID int `json:"wkid"`
			} `json:"spatialReference"`
		}
		if err = json.Unmarshal([]byte(req.Params.Get("geometry")), &geom); err != nil {
			t.Fatalf("failed to decode geometry parameter: %s", err)
		}
		if geom.X != -75.16522 || geom.Y != 39.95258 || geom.Ref.WKID != WKID {
			t.Errorf("unexpected geometry parameter: %+v", geom)
		}
	})
	t.Run("radius is clamped before the request is built", func(t *testing.T) {
		spec := testSpec()
		spec.RequestedRadiusMiles = 10
		spec.ServiceMaxRadiusMiles = 3
		req, err := Build(spec, NewCursor(spec))
		if err != nil {
			t.Fatalf("failed to build request: %s", err)
		}
		meters, err := strconv.ParseFloat(req.Params.Get("distance"), 64)
		if err != nil {
			t.Fatalf("failed to parse distance: %s", err)
		}
		if math.Abs(meters-3*geometry.MetersPerMile) > 0.01 {
			t.Errorf("expected clamped distance of %f meters, got %f", 3*geometry.MetersPerMile, meters)
		}
	})
	t.Run("containment query carries no distance", func(t *testing.T) {
		spec := testSpec()
		spec.SpatialRelation = RelationContains
		spec.RequestedRadiusMiles = 0
		req, err := Build(spec, NewCursor(spec))
		if err != nil {
			t.Fatalf("failed to build request: %s", err)
		}
		if req.Params.Has("distance") || req.Params.Has("units") {
			t.Error("expected containment query to carry no buffer distance")
		}
		if req.Params.Get("spatialRel") != "esriSpatialRelIntersects" {
			t.Errorf("unexpected spatial relation: %s", req.Params.Get("spatialRel"))
		}
	})
	t.Run("custom where clause, out fields and method", func(t *testing.T) {
		spec := testSpec()
		spec.Where = "STATUS = 'ACTIVE'"
		spec.OutFields = "OBJECTID,NAME"
		spec.Method = MethodPost
		req, err := Build(spec, NewCursor(spec))
		if err != nil {
			t.Fatalf("failed to build request: %s", err)
		}
		if req.Params.Get("where") != spec.Where || req.Params.Get("outFields") != spec.OutFields {
			t.Errorf("unexpected where/outFields: %s / %s", req.Params.Get("where"), req.Params.Get("outFields"))
		}
		if req.Method != MethodPost {
			t.Errorf("expected method POST, got %s", req.Method)
		}
	})
	t.Run("zero page size falls back to spec", func(t *testing.T) {
		req, err := Build(testSpec(), PageCursor{})
		if err != nil {
			t.Fatalf("failed to build request: %s", err)
		}
		if req.Params.Get("resultRecordCount") != "2" {
			t.Errorf("expected page size 2, got %s", req.Params.Get("resultRecordCount"))
		}
	})
	t.Run("no radius short-circuits", func(t *testing.T) {
		spec := testSpec()
		spec.RequestedRadiusMiles = 0
		_, err := Build(spec, NewCursor(spec))
		if !errors.Is(err, ErrNoRadius) {
			t.Errorf("expected ErrNoRadius, got %v", err)
		}
	})
}

func TestBuild_invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*QuerySpec)
		field  string
	}{
		{"missing service url", func(s *QuerySpec) { s.ServiceURL = "" }, "service_url"},
		{"relative service url", func(s *QuerySpec) { s.ServiceURL = "services/Hydrants" }, "service_url"},
		{"missing layer", func(s *QuerySpec) { s.LayerID = " " }, "layer_id"},
		{"invalid center", func(s *QuerySpec) { s.Center = geometry.Point{Lat: 91, Lon: 0} }, "center"},
		{"required radius missing", func(s *QuerySpec) {
			s.RequestedRadiusMiles = 0
			s.RequireRadius = true
		}, "radius"},
		{"required radius negative", func(s *QuerySpec) {
			s.RequestedRadiusMiles = -2
			s.RequireRadius = true
		}, "radius"},
		{"unknown relation", func(s *QuerySpec) { s.SpatialRelation = "touches" }, "spatial_relation"},
		{"unknown method", func(s *QuerySpec) { s.Method = "DELETE" }, "method"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := testSpec()
			tc.modify(&spec)
			_, err := Build(spec, NewCursor(spec))
			var specErr *InvalidSpecError
			if !errors.As(err, &specErr) {
				t.Fatalf("expected InvalidSpecError, got %v", err)
			}
			if specErr.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, specErr.Field)
			}
		})
	}
	t.Run("negative offset", func(t *testing.T) {
		_, err := Build(testSpec(), PageCursor{Offset: -1, PageSize: 2})
		var specErr *InvalidSpecError
		if !errors.As(err, &specErr) {
			t.Fatalf("expected InvalidSpecError, got %v", err)
		}
	})
}

func TestRawFeature_DecodeGeometry(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    geometry.Kind
		wantErr error
	}{
		{"point", `{"x":-75.1,"y":40.2}`, geometry.KindPoint, nil},
		{"point with z", `{"x":-75.1,"y":40.2,"z":12}`, geometry.KindPoint, nil},
		{"polyline", `{"paths":[[[-75,40],[-75.1,40.1]]]}`, geometry.KindPolyline, nil},
		{"polygon", `{"rings":[[[-75,40],[-75.1,40],[-75.1,40.1]]]}`, geometry.KindPolygon, nil},
		{"empty polygon", `{"rings":[]}`, geometry.KindPolygon, nil},
		{"missing", ``, 0, ErrNoGeometry},
		{"null", `null`, 0, ErrNoGeometry},
		{"multipoint", `{"points":[[-75,40]]}`, 0, ErrUnknownGeometry},
		{"point without y", `{"x":-75}`, 0, ErrUnknownGeometry},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			feature := RawFeature{Geometry: json.RawMessage(tc.raw)}
			geom, err := feature.DecodeGeometry()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("failed to decode geometry: %s", err)
			}
			if geom.Kind() != tc.want {
				t.Errorf("expected geometry kind %s, got %s", tc.want, geom.Kind())
			}
		})
	}
	t.Run("invalid JSON", func(t *testing.T) {
		feature := RawFeature{Geometry: json.RawMessage(`{"x":"NaN"}`)}
		if _, err := feature.DecodeGeometry(); err == nil {
			t.Error("expected decoding to fail")
		}
	})
	t.Run("coordinates are swapped into lat/lon", func(t *testing.T) {
		feature := RawFeature{Geometry: json.RawMessage(`{"paths":[[[-75,40],[1],[-75.1,40.1,5,0]]]}`)}
		geom, err := feature.DecodeGeometry()
		if err != nil {
			t.Fatalf("failed to decode geometry: %s", err)
		}
		line, ok := geom.(geometry.Polyline)
		if !ok {
			t.Fatalf("expected polyline, got %T", geom)
		}
		if len(line.Paths) != 1 || len(line.Paths[0]) != 2 {
			t.Fatalf("expected a single path with 2 positions, got %v", line.Paths)
		}
		if line.Paths[0][1] != (geometry.Point{Lat: 40.1, Lon: -75.1}) {
			t.Errorf("unexpected position: %+v", line.Paths[0][1])
		}
	})
}

func TestRawFeature_ID(t *testing.T) {
	tests := []struct {
		name   string
		attrs  map[string]any
		fields []string
		want   string
		found  bool
	}{
		{"objectid", map[string]any{"OBJECTID": float64(7)}, nil, "7", true},
		{"fid", map[string]any{"FID": float64(12)}, nil, "12", true},
		{"lower case", map[string]any{"objectid": float64(3)}, nil, "3", true},
		{"custom field", map[string]any{"PARCEL_ID": "A-12", "OBJECTID": float64(1)}, []string{"PARCEL_ID"}, "A-12", true},
		{"no id", map[string]any{"NAME": "x"}, nil, "", false},
		{
			"case variants resolve in byte order",
			map[string]any{"Parcel_Id": "B-2", "PARCEL_ID": "A-1", "parcel_id": "C-3"},
			[]string{"Parcel_ID"}, "A-1", true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for range 20 {
				id, ok := RawFeature{Attributes: tc.attrs}.ID(tc.fields...)
				if ok != tc.found || id != tc.want {
					t.Fatalf("expected id %q (%t), got %q (%t)", tc.want, tc.found, id, ok)
				}
			}
		})
	}
}

func TestErrors(t *testing.T) {
	specErr := &InvalidSpecError{Field: "layer_id", Reason: "is required"}
	if specErr.Error() != "invalid query spec: layer_id is required" {
		t.Errorf("unexpected error string: %s", specErr)
	}
	remoteErr := &RemoteServiceError{Dataset: "hydrants", Code: 400, Message: "bad", Details: []string{"a", "b"}}
	if remoteErr.Error() != `dataset "hydrants": feature service error 400: bad (a; b)` {
		t.Errorf("unexpected error string: %s", remoteErr)
	}
	malformed := &MalformedResponseError{Dataset: "hydrants", Offset: 4, Reason: "no features"}
	if malformed.Error() != `malformed response for dataset "hydrants" at offset 4: no features` {
		t.Errorf("unexpected error string: %s", malformed)
	}
}
