// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter renders dataset query results in the configured output format.
package presenter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/wneessen/feature-proximity/internal/attrmap"
	"github.com/wneessen/feature-proximity/internal/config"
	"github.com/wneessen/feature-proximity/internal/geometry"
	"github.com/wneessen/feature-proximity/internal/proximity"
	tpl "github.com/wneessen/feature-proximity/internal/template"
)

// nameAliases are tried if a dataset has no "name" alias configured
var nameAliases = []string{"NAME", "Name", "name", "FULLNAME", "LABEL"}

// Report is the rendered view of a complete run
type Report struct {
	Center      geometry.Point `json:"center" yaml:"center"`
	Address     string         `json:"address,omitempty" yaml:"address,omitempty"`
	RadiusMiles float64        `json:"radius_miles" yaml:"radius_miles"`
	GeneratedAt time.Time      `json:"generated_at" yaml:"generated_at"`
	Datasets    []DatasetView  `json:"datasets" yaml:"datasets"`
}

// DatasetView wraps the result of a dataset query with presentation-related fields
type DatasetView struct {
	Name     string        `json:"name" yaml:"name"`
	Count    int           `json:"count" yaml:"count"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Cached   bool          `json:"cached" yaml:"cached"`
	Duration time.Duration `json:"duration_ns" yaml:"duration"`
	Features []FeatureView `json:"features" yaml:"features"`
}

// FeatureView wraps a feature with presentation-related fields
type FeatureView struct {
	proximity.Feature `yaml:",inline"`

	Name         string        `json:"name,omitempty" yaml:"name,omitempty"`
	GeometryView *GeometryView `json:"geometry,omitempty" yaml:"geometry,omitempty"`
}

// GeometryView is a GeoJSON style representation of a geometry
type GeometryView struct {
	Type        string       `json:"type" yaml:"type"`
	Coordinates orb.Geometry `json:"coordinates" yaml:"coordinates"`
}

type Presenter struct {
	format string
	row    *template.Template
}

// New returns a Presenter for the given output format. The row template is only used for
// the text format.
func New(format, rowTpl string) (*Presenter, error) {
	format = strings.ToLower(format)
	p := &Presenter{format: format}
	switch format {
	case config.FormatText:
		row, err := tpl.New("row", rowTpl)
		if err != nil {
			return nil, err
		}
		p.row = row
	case config.FormatJSON, config.FormatGeoJSON, config.FormatYAML:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return p, nil
}

// BuildReport converts the dataset results into a Report
func (p *Presenter) BuildReport(center geometry.Point, address string, radius float64, results []proximity.Result,
	now time.Time,
) Report {
	report := Report{
		Center:      center,
		Address:     address,
		RadiusMiles: radius,
		GeneratedAt: now,
		Datasets:    make([]DatasetView, 0, len(results)),
	}
	for _, result := range results {
		view := DatasetView{
			Name:     result.Dataset,
			Count:    len(result.Features),
			Cached:   result.Cached,
			Duration: result.Duration,
			Features: make([]FeatureView, 0, len(result.Features)),
		}
		if result.Err != nil {
			view.Error = result.Err.Error()
		}
		for _, feature := range result.Features {
			view.Features = append(view.Features, viewFromFeature(feature))
		}
		report.Datasets = append(report.Datasets, view)
	}
	return report
}

// Render writes the report to w in the format of the Presenter
func (p *Presenter) Render(w io.Writer, report Report) error {
	switch p.format {
	case config.FormatJSON:
		return p.renderJSON(w, report)
	case config.FormatGeoJSON:
		return p.renderGeoJSON(w, report)
	case config.FormatYAML:
		return p.renderYAML(w, report)
	default:
		return p.renderText(w, report)
	}
}

func viewFromFeature(feature proximity.Feature) FeatureView {
	view := FeatureView{Feature: feature}
	if name, ok := feature.Mapped["name"]; ok {
		view.Name = attrmap.FormatValue(name)
	} else if name, ok := attrmap.LookupString(feature.Attributes, nameAliases...); ok {
		view.Name = name
	}
	if g := geometry.ToOrb(feature.Geometry); g != nil {
		view.GeometryView = &GeometryView{Type: g.GeoJSONType(), Coordinates: g}
	}
	return view
}

func (p *Presenter) renderText(w io.Writer, report Report) error {
	header := fmt.Sprintf("Features within %.2f mi of %.6f, %.6f", report.RadiusMiles, report.Center.Lat,
		report.Center.Lon)
	if report.Address != "" {
		header += " (" + report.Address + ")"
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return fmt.Errorf("failed to write text output: %w", err)
	}

	for _, ds := range report.Datasets {
		line := fmt.Sprintf("\n[%s] %d feature(s) in %s", ds.Name, ds.Count, ds.Duration.Round(time.Millisecond))
		if ds.Cached {
			line += " (cached)"
		}
		if ds.Error != "" {
			line += " - error: " + ds.Error
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write text output: %w", err)
		}
		for _, feature := range ds.Features {
			if err := p.row.Execute(w, feature); err != nil {
				return fmt.Errorf("failed to render text template: %w", err)
			}
			if _, err := fmt.Fprintln(w); err != nil {
				return fmt.Errorf("failed to write text output: %w", err)
			}
		}
	}
	return nil
}

func (p *Presenter) renderJSON(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

func (p *Presenter) renderGeoJSON(w io.Writer, report Report) error {
	features := make([]proximity.Feature, 0)
	for _, ds := range report.Datasets {
		for _, view := range ds.Features {
			features = append(features, view.Feature)
		}
	}
	data, err := proximity.EncodeFeatures(features)
	if err != nil {
		return err
	}
	if _, err = w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write GeoJSON output: %w", err)
	}
	return nil
}

func (p *Presenter) renderYAML(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode YAML output: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode YAML output: %w", err)
	}
	return nil
}
