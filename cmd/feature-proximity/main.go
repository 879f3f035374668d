// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package main implements the feature-proximity command.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/wneessen/feature-proximity/internal/config"
	"github.com/wneessen/feature-proximity/internal/geometry"
	"github.com/wneessen/feature-proximity/internal/logger"
	"github.com/wneessen/feature-proximity/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type Options struct {
	Config     string   `short:"c" long:"config" description:"Path to the config file"`
	Lat        string   `long:"lat" description:"Latitude of the query center"`
	Lon        string   `long:"lon" description:"Longitude of the query center"`
	Address    string   `short:"a" long:"address" description:"Address to geocode into the query center"`
	Radius     float64  `short:"r" long:"radius" description:"Search radius in miles. Uses the configured radius if not set"`
	Datasets   []string `short:"d" long:"dataset" description:"Dataset to query, can be repeated. Queries all datasets if not set"`
	Format     string   `short:"f" long:"format" description:"Output format" choice:"text" choice:"json" choice:"geojson" choice:"yaml"`
	MaxResults int      `short:"m" long:"max-results" description:"Maximum number of features per dataset"`
	Watch      bool     `short:"w" long:"watch" description:"Re-run the query on the configured interval"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Initialize Logger
	log := logger.NewLogger(slog.LevelError)

	// Environment files override the config file
	if err := config.LoadEnv(".env"); err != nil {
		log.Error("failed to load env file", logger.Err(err))
		os.Exit(1)
	}
	conf, err := loadConfig(opts.Config)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}
	if opts.Format != "" {
		conf.Output.Format = opts.Format
		if err = conf.Validate(); err != nil {
			log.Error("invalid output format", logger.Err(err))
			os.Exit(1)
		}
	}

	req, err := buildRequest(opts)
	if err != nil {
		log.Error("invalid query", logger.Err(err))
		os.Exit(1)
	}

	log = logger.NewLogger(conf.LogLevel)
	serv, err := service.New(conf, log)
	if err != nil {
		log.Error("failed to initialize feature-proximity service", logger.Err(err))
		os.Exit(1)
	}
	defer func() {
		if err := serv.Close(); err != nil {
			log.Error("failed to close feature-proximity service", logger.Err(err))
		}
	}()

	if !opts.Watch {
		if err = serv.RunOnce(ctx, req); err != nil {
			log.Error("query failed", logger.Err(err))
			cancel()
			os.Exit(1) //nolint:gocritic
		}
		return
	}

	log.Info("starting feature-proximity watch", slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Watch(ctx, req); err != nil {
		log.Error("failed to watch datasets", logger.Err(err))
	}
	log.Info("shutting down feature-proximity watch")
}

// loadConfig reads the given config file, the config file in the default location or the
// environment, in that order
func loadConfig(confPath string) (*config.Config, error) {
	if confPath != "" {
		return config.NewFromFile(filepath.Dir(confPath), filepath.Base(confPath))
	}
	if path, file := findConfigFile(); path != "" && file != "" {
		return config.NewFromFile(path, file)
	}
	return config.New()
}

func buildRequest(opts Options) (service.Request, error) {
	req := service.Request{
		Address:     opts.Address,
		RadiusMiles: opts.Radius,
		Datasets:    opts.Datasets,
		MaxResults:  opts.MaxResults,
	}
	if opts.Radius < 0 {
		return req, fmt.Errorf("invalid radius: %f", opts.Radius)
	}
	if opts.Lat == "" && opts.Lon == "" {
		return req, nil
	}

	lat, err := strconv.ParseFloat(opts.Lat, 64)
	if err != nil {
		return req, fmt.Errorf("failed to parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(opts.Lon, 64)
	if err != nil {
		return req, fmt.Errorf("failed to parse longitude: %w", err)
	}
	req.Center = &geometry.Point{Lat: lat, Lon: lon}
	return req, nil
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", "feature-proximity", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
