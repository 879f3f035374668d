// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package arcgis implements the query side of the ArcGIS feature service REST protocol: it builds
// spatial layer queries around a center point and pages through the results.
package arcgis

import (
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/wneessen/feature-proximity/internal/geometry"
)

const (
	// DefaultPageSize is the number of records requested per page if the spec does not set one
	DefaultPageSize = 1000
	// DefaultWhere selects all records of a layer
	DefaultWhere = "1=1"
	// DefaultOutFields requests all attributes of a record
	DefaultOutFields = "*"
	// WKID is the well-known id of WGS84, used for input and output geometries
	WKID = 4326
)

// SpatialRelation selects how the query geometry relates to the features of a layer
type SpatialRelation string

const (
	// RelationIntersects selects all features within the buffer radius around the center
	RelationIntersects SpatialRelation = "intersects"
	// RelationContains selects all features that contain the center itself. No buffer is sent.
	RelationContains SpatialRelation = "contains"
)

// Method is the HTTP method used to send a query
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// ErrNoRadius is returned by Build for a proximity query without a positive radius on a dataset
// that does not require one. Callers treat the query as empty without contacting the service.
var ErrNoRadius = errors.New("no search radius given")

// QuerySpec describes one spatial query against a feature service layer.
type QuerySpec struct {
	// Dataset is a human readable name used for logging and metrics
	Dataset    string
	ServiceURL string
	LayerID    string
	Center     geometry.Point

	RequestedRadiusMiles float64
	// ServiceMaxRadiusMiles caps the requested radius. Zero or less disables the cap.
	ServiceMaxRadiusMiles float64

	PageSize        int
	SpatialRelation SpatialRelation
	// RequireRadius turns a missing radius into an InvalidSpecError instead of ErrNoRadius
	RequireRadius bool
	Method        Method

	Where     string
	OutFields string
}

// EffectiveRadiusMiles returns the requested radius clamped to the service maximum
func (s QuerySpec) EffectiveRadiusMiles() float64 {
	if s.ServiceMaxRadiusMiles > 0 {
		return math.Min(s.RequestedRadiusMiles, s.ServiceMaxRadiusMiles)
	}
	return s.RequestedRadiusMiles
}

// Relation returns the spatial relation of the spec, defaulting to RelationIntersects
func (s QuerySpec) Relation() SpatialRelation {
	if s.SpatialRelation == "" {
		return RelationIntersects
	}
	return s.SpatialRelation
}

// Endpoint returns the query endpoint of the layer
func (s QuerySpec) Endpoint() string {
	return strings.TrimRight(s.ServiceURL, "/") + "/" + url.PathEscape(s.LayerID) + "/query"
}

// PageCursor tracks the position of a paginated query
type PageCursor struct {
	Offset   int
	PageSize int
}

// NewCursor returns the cursor of the first page of the given spec
func NewCursor(spec QuerySpec) PageCursor {
	size := spec.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return PageCursor{PageSize: size}
}

// Next returns the cursor advanced by the number of records received
func (c PageCursor) Next(received int) PageCursor {
	return PageCursor{Offset: c.Offset + received, PageSize: c.PageSize}
}

// Request is a ready to send layer query
type Request struct {
	Endpoint string
	Method   Method
	Params   url.Values
}

// Build turns the spec and cursor into the wire parameters of a layer query. It does not
// perform any I/O.
func Build(spec QuerySpec, cursor PageCursor) (Request, error) {
	if strings.TrimSpace(spec.ServiceURL) == "" {
		return Request{}, &InvalidSpecError{Field: "service_url", Reason: "is required"}
	}
	if _, err := url.ParseRequestURI(spec.ServiceURL); err != nil {
		return Request{}, &InvalidSpecError{Field: "service_url", Reason: err.Error()}
	}
	if strings.TrimSpace(spec.LayerID) == "" {
		return Request{}, &InvalidSpecError{Field: "layer_id", Reason: "is required"}
	}
	if !spec.Center.Valid() {
		return Request{}, &InvalidSpecError{Field: "center", Reason: "is not a valid WGS84 coordinate"}
	}
	if cursor.PageSize <= 0 {
		cursor.PageSize = NewCursor(spec).PageSize
	}
	if cursor.Offset < 0 {
		return Request{}, &InvalidSpecError{Field: "offset", Reason: "must not be negative"}
	}

	params := url.Values{}
	params.Set("f", "json")
	params.Set("where", valueOr(spec.Where, DefaultWhere))
	params.Set("outFields", valueOr(spec.OutFields, DefaultOutFields))
	params.Set("geometry", pointGeometry(spec.Center))
	params.Set("geometryType", "esriGeometryPoint")
	params.Set("spatialRel", "esriSpatialRelIntersects")
	params.Set("inSR", strconv.Itoa(WKID))
	params.Set("outSR", strconv.Itoa(WKID))
	params.Set("returnGeometry", "true")
	params.Set("resultRecordCount", strconv.Itoa(cursor.PageSize))
	params.Set("resultOffset", strconv.Itoa(cursor.Offset))

	switch spec.Relation() {
	case RelationContains:
	case RelationIntersects:
		radius := spec.EffectiveRadiusMiles()
		if radius <= 0 || math.IsNaN(radius) {
			if spec.RequireRadius {
				return Request{}, &InvalidSpecError{Field: "radius", Reason: "must be greater than zero"}
			}
			return Request{}, ErrNoRadius
		}
		params.Set("distance", strconv.FormatFloat(radius*geometry.MetersPerMile, 'f', 2, 64))
		params.Set("units", "esriSRUnit_Meter")
	default:
		return Request{}, &InvalidSpecError{Field: "spatial_relation", Reason: "unsupported relation " +
			strconv.Quote(string(spec.SpatialRelation))}
	}

	method := spec.Method
	switch method {
	case "":
		method = MethodGet
	case MethodGet, MethodPost:
	default:
		return Request{}, &InvalidSpecError{Field: "method", Reason: "unsupported HTTP method " +
			strconv.Quote(string(spec.Method))}
	}

	return Request{Endpoint: spec.Endpoint(), Method: method, Params: params}, nil
}

func pointGeometry(p geometry.Point) string {
	var sb strings.Builder
	sb.WriteString(`{"x":`)
	sb.WriteString(strconv.FormatFloat(p.Lon, 'f', -1, 64))
	sb.WriteString(`,"y":`)
	sb.WriteString(strconv.FormatFloat(p.Lat, 'f', -1, 64))
	sb.WriteString(`,"spatialReference":{"wkid":`)
	sb.WriteString(strconv.Itoa(WKID))
	sb.WriteString(`}}`)
	return sb.String()
}

func valueOr(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
