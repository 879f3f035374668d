// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package proximity composes pagination, geometry and result assembly into proximity queries
// against one or many feature service datasets.
package proximity

import (
	"strconv"

	"github.com/wneessen/feature-proximity/internal/arcgis"
	"github.com/wneessen/feature-proximity/internal/attrmap"
	"github.com/wneessen/feature-proximity/internal/cache"
	"github.com/wneessen/feature-proximity/internal/geometry"
)

// Phase names the query phase a feature was fetched in
type Phase string

const (
	// PhaseContainment fetches the features containing the center
	PhaseContainment Phase = "containment"
	// PhaseProximity fetches the features within the search radius
	PhaseProximity Phase = "proximity"
)

// Feature is an assembled query result
type Feature struct {
	ID         string            `json:"id,omitempty" yaml:"id,omitempty"`
	Dataset    string            `json:"dataset" yaml:"dataset"`
	Phase      Phase             `json:"phase" yaml:"phase"`
	Geometry   geometry.Geometry `json:"-" yaml:"-"`
	Attributes map[string]any    `json:"attributes" yaml:"attributes"`
	// Mapped holds the attributes resolved through the alias table of the dataset
	Mapped        map[string]any `json:"mapped,omitempty" yaml:"mapped,omitempty"`
	DistanceMiles float64        `json:"distance_miles" yaml:"distance_miles"`
	IsContaining  bool           `json:"is_containing" yaml:"is_containing"`
}

// QueryPlan describes all phases of a dataset query
type QueryPlan struct {
	// Spec is the proximity query. Its Dataset names the plan.
	Spec arcgis.QuerySpec
	// Containment adds a containment phase that runs before the proximity phase. Features
	// found by both phases are reported once, as found by the containment phase.
	Containment bool
	IDFields    []string
	Aliases     attrmap.Table
	MaxResults  int
}

// PhaseSpec is a single phase of a QueryPlan
type PhaseSpec struct {
	Phase Phase
	Spec  arcgis.QuerySpec
}

// PhaseResult holds the raw features fetched by one phase
type PhaseResult struct {
	Phase    Phase
	Features []arcgis.RawFeature
}

// Dataset returns the name of the dataset the plan queries
func (p QueryPlan) Dataset() string {
	return p.Spec.Dataset
}

// Phases returns the phases of the plan in execution order
func (p QueryPlan) Phases() []PhaseSpec {
	if p.Spec.Relation() == arcgis.RelationContains {
		return []PhaseSpec{{Phase: PhaseContainment, Spec: p.Spec}}
	}

	phases := make([]PhaseSpec, 0, 2)
	if p.Containment {
		spec := p.Spec
		spec.SpatialRelation = arcgis.RelationContains
		phases = append(phases, PhaseSpec{Phase: PhaseContainment, Spec: spec})
	}
	spec := p.Spec
	spec.SpatialRelation = arcgis.RelationIntersects
	return append(phases, PhaseSpec{Phase: PhaseProximity, Spec: spec})
}

// RadiusMiles returns the radius results are filtered by. A containment only plan has no radius.
func (p QueryPlan) RadiusMiles() float64 {
	if p.Spec.Relation() == arcgis.RelationContains {
		return 0
	}
	return p.Spec.EffectiveRadiusMiles()
}

// CacheKey returns the result cache key of the plan
func (p QueryPlan) CacheKey() string {
	return cache.Key(p.Dataset(), p.Spec.Center, p.RadiusMiles(),
		p.Spec.LayerID,
		"containment="+strconv.FormatBool(p.Containment),
		"max="+strconv.Itoa(p.MaxResults),
	)
}

func (p QueryPlan) assembleOptions() AssembleOptions {
	return AssembleOptions{
		Dataset:     p.Dataset(),
		Center:      p.Spec.Center,
		RadiusMiles: p.RadiusMiles(),
		MaxResults:  p.MaxResults,
		IDFields:    p.IDFields,
		Aliases:     p.Aliases,
	}
}
