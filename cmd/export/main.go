package main

import (
	"context"
	"os"

	"github.com/woozymasta/geoshapes/internal/app"
	"github.com/woozymasta/geoshapes/internal/config"
	"github.com/woozymasta/geoshapes/internal/export"
	"github.com/woozymasta/geoshapes/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger       `group:"Logger options"`
	Store  config.StoreOptions `group:"Store options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Kind       string `short:"k" long:"kind"   description:"Shapes to export" choice:"markers" choice:"polylines" choice:"polygons" choice:"all" default:"all"`
	Format     string `short:"f" long:"format" description:"Document format"  choice:"kml" choice:"geojson" default:"kml"`
	Output     string `short:"o" long:"out"    description:"Output file path. Writes to stdout if empty"`
	Minify     bool   `short:"m" long:"minify" description:"Minify the document"`
}

func main() {
	_ = godotenv.Load(".env")

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.LoadOrDefault(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	opts.Store.Apply(&cfg.Store)

	ctx := context.Background()
	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("Failed to open store")
	}
	defer a.Close()

	if err := a.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load shapes")
	}

	fc, name, err := a.Collection(opts.Kind)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to select shapes")
	}

	exportOpts := export.Options{Name: name, Minify: opts.Minify}
	var data []byte
	if opts.Format == "geojson" {
		data, err = export.ToGeoJSON(fc, exportOpts)
	} else {
		data, err = export.ToMarkup(fc, exportOpts)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to export shapes")
	}

	if opts.Output == "" {
		_, _ = os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(opts.Output, data, 0644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}

	log.Info().
		Str("kind", opts.Kind).
		Str("format", opts.Format).
		Str("out", opts.Output).
		Int("features", len(fc.Features)).
		Msg("Export done")
}
