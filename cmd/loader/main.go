package main

import (
	"context"
	"os"

	"github.com/woozymasta/geoshapes/internal/app"
	"github.com/woozymasta/geoshapes/internal/config"
	"github.com/woozymasta/geoshapes/internal/graceful"
	"github.com/woozymasta/geoshapes/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger       `group:"Logger options"`
	Store  config.StoreOptions `group:"Store options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Seed       string `short:"s" long:"seed"   env:"SEED_SOURCE" description:"Markup file or URL to ingest"`
	Force      bool   `short:"f" long:"force"                    description:"Replace an existing cache"`
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
	if opts.Seed != "" {
		cfg.Seed.Source = opts.Seed
	}
	if cfg.Seed.Source == "" {
		log.Fatal().Msg("No seed source given, use --seed or seed.source")
	}

	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("Failed to open store")
	}

	log.Info().
		Str("source", cfg.Seed.Source).
		Str("driver", cfg.Store.Driver).
		Bool("force", opts.Force).
		Msg("Starting loader")

	fc, err := a.SeedFrom(ctx, cfg.Seed.Source, opts.Force)
	if err != nil {
		_ = a.Close()
		log.Fatal().Err(err).Msg("Failed to ingest seed")
	}

	// Load persists every shape extracted from the cache as its own record.
	if err := a.Load(ctx); err != nil {
		_ = a.Close()
		log.Fatal().Err(err).Msg("Failed to load shapes")
	}
	if err := a.Flush(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to flush writes")
	}

	st := a.Status()
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close store")
	}

	log.Info().
		Int("features", len(fc.Features)).
		Int("markers", st.Markers).
		Int("polylines", st.Polylines).
		Int("polygons", st.Polygons).
		Int64("write_failures", st.WriteFailures).
		Msg("Loader finished successfully")
}
