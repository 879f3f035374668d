// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kkyr/fig"
)

const (
	configEnv = "FEATUREPROXIMITY"
	// DefaultRowTpl renders a single feature of the text output
	DefaultRowTpl = `{{pad .Dataset 14}} {{pad .ID 10}} {{pad .Name 32}} ` +
		`{{if .IsContaining}}containing{{else}}{{milesFormat .DistanceMiles}}{{end}}`
	DefaultLayerID = "0"
)

// Cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheValkey = "valkey"
)

// Output formats
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatGeoJSON = "geojson"
	FormatYAML    = "yaml"
)

// Config represents the application's configuration structure.
type Config struct {
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	HTTP struct {
		Timeout    time.Duration `fig:"timeout" default:"30s"`
		MaxRetries int           `fig:"max_retries" default:"3"`
		BaseDelay  time.Duration `fig:"base_delay" default:"500ms"`
		MaxDelay   time.Duration `fig:"max_delay" default:"30s"`
	} `fig:"http"`

	Query struct {
		RadiusMiles   float64       `fig:"radius_miles" default:"1"`
		PageSize      int           `fig:"page_size" default:"1000"`
		PageDelay     time.Duration `fig:"page_delay" default:"100ms"`
		RecordCeiling int           `fig:"record_ceiling" default:"100000"`
		// Zero means no limit
		MaxResults  int `fig:"max_results"`
		Concurrency int `fig:"concurrency" default:"4"`
	} `fig:"query"`

	Cache struct {
		// Allowed values: none, memory, valkey
		Backend    string        `fig:"backend" default:"memory"`
		TTL        time.Duration `fig:"ttl" default:"10m"`
		ValkeyAddr string        `fig:"valkey_addr" default:"localhost:6379"`
	} `fig:"cache"`

	Output struct {
		// Allowed values: text, json, geojson, yaml
		Format   string `fig:"format" default:"text"`
		Template string `fig:"template"`
	} `fig:"output"`

	Watch struct {
		Interval time.Duration `fig:"interval" default:"5m"`
	} `fig:"watch"`

	Metrics struct {
		// Metrics are only served in watch mode and only if an address is set
		Addr string `fig:"addr"`
	} `fig:"metrics"`

	Geocoder struct {
		Language string        `fig:"language" default:"en"`
		CacheTTL time.Duration `fig:"cache_ttl" default:"24h"`
	} `fig:"geocoder"`

	Datasets []Dataset `fig:"datasets"`
}

// Dataset is a feature service layer that can be queried
type Dataset struct {
	Name       string `fig:"name"`
	ServiceURL string `fig:"service_url"`
	LayerID    string `fig:"layer_id"`
	// Zero means the service does not cap the search radius
	MaxRadiusMiles float64 `fig:"max_radius_miles"`
	RequireRadius  bool    `fig:"require_radius"`
	// Containment runs a containment query before the proximity query
	Containment bool `fig:"containment"`
	// ContainmentOnly skips the proximity query
	ContainmentOnly bool     `fig:"containment_only"`
	Method          string   `fig:"method"`
	PageSize        int      `fig:"page_size"`
	Where           string   `fig:"where"`
	OutFields       string   `fig:"out_fields"`
	IDFields        []string `fig:"id_fields"`
	// Aliases maps canonical attribute names to the attribute names the dataset might use
	Aliases    map[string][]string `fig:"aliases"`
	MaxResults int                 `fig:"max_results"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

// LoadEnv loads the given dotenv files into the environment, so that they can override the
// configuration file. Files that do not exist are ignored. Variables that are already set
// take precedence.
func LoadEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("invalid HTTP timeout: %s", c.HTTP.Timeout)
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("invalid HTTP max retries: %d", c.HTTP.MaxRetries)
	}
	if c.HTTP.MaxDelay < c.HTTP.BaseDelay {
		c.HTTP.MaxDelay = c.HTTP.BaseDelay
	}
	if c.Query.RadiusMiles < 0 {
		return fmt.Errorf("invalid query radius: %f", c.Query.RadiusMiles)
	}
	if c.Query.PageSize < 1 {
		return fmt.Errorf("invalid query page size: %d", c.Query.PageSize)
	}
	if c.Query.RecordCeiling < 1 {
		return fmt.Errorf("invalid query record ceiling: %d", c.Query.RecordCeiling)
	}
	if c.Query.MaxResults < 0 {
		return fmt.Errorf("invalid query max results: %d", c.Query.MaxResults)
	}
	if c.Query.Concurrency < 1 {
		return fmt.Errorf("invalid query concurrency: %d", c.Query.Concurrency)
	}

	c.Cache.Backend = strings.ToLower(c.Cache.Backend)
	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheValkey:
		if c.Cache.ValkeyAddr == "" {
			return errors.New("valkey cache backend requires a valkey address")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s", c.Cache.Backend)
	}

	c.Output.Format = strings.ToLower(c.Output.Format)
	switch c.Output.Format {
	case FormatText, FormatJSON, FormatGeoJSON, FormatYAML:
	default:
		return fmt.Errorf("invalid output format: %s", c.Output.Format)
	}
	if c.Output.Template == "" {
		c.Output.Template = DefaultRowTpl
	}
	if c.Watch.Interval < time.Second {
		return fmt.Errorf("invalid watch interval: %s", c.Watch.Interval)
	}

	seen := make(map[string]struct{}, len(c.Datasets))
	for i := range c.Datasets {
		ds := &c.Datasets[i]
		if err := ds.validate(); err != nil {
			return fmt.Errorf("invalid dataset #%d: %w", i+1, err)
		}
		// names are selected case-insensitively
		name := strings.ToLower(ds.Name)
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate dataset name: %s", ds.Name)
		}
		seen[name] = struct{}{}
	}

	return nil
}

// SelectDatasets returns the datasets with the given names in the given order. All datasets
// are returned if no names are given.
func (c *Config) SelectDatasets(names ...string) ([]Dataset, error) {
	if len(names) == 0 {
		return c.Datasets, nil
	}
	selected := make([]Dataset, 0, len(names))
	for _, name := range names {
		found := false
		for _, ds := range c.Datasets {
			if strings.EqualFold(ds.Name, name) {
				selected = append(selected, ds)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown dataset: %s", name)
		}
	}
	return selected, nil
}

func (d *Dataset) validate() error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(d.ServiceURL) == "" {
		return fmt.Errorf("%s: service_url is required", d.Name)
	}
	if d.LayerID == "" {
		d.LayerID = DefaultLayerID
	}
	d.Method = strings.ToUpper(d.Method)
	switch d.Method {
	case "":
		d.Method = "GET"
	case "GET", "POST":
	default:
		return fmt.Errorf("%s: invalid method: %s", d.Name, d.Method)
	}
	if d.MaxRadiusMiles < 0 {
		return fmt.Errorf("%s: invalid max radius: %f", d.Name, d.MaxRadiusMiles)
	}
	if d.PageSize < 0 {
		return fmt.Errorf("%s: invalid page size: %d", d.Name, d.PageSize)
	}
	if d.MaxResults < 0 {
		return fmt.Errorf("%s: invalid max results: %d", d.Name, d.MaxResults)
	}
	return nil
}
