package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/woozymasta/geoshapes/internal/app"
	"github.com/woozymasta/geoshapes/internal/config"
	"github.com/woozymasta/geoshapes/internal/graceful"
	"github.com/woozymasta/geoshapes/internal/ingest"
	"github.com/woozymasta/geoshapes/internal/logger"
	"github.com/woozymasta/geoshapes/internal/server"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger       `group:"Logger options"`
	Store  config.StoreOptions `group:"Store options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"   env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"   env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	Seed       string `short:"s" long:"seed"   env:"SEED_SOURCE"    description:"Markup file or URL ingested on first start"`
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

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.LoadOrDefault(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	opts.Store.Apply(&cfg.Store)
	if opts.Seed != "" {
		cfg.Seed.Source = opts.Seed
	}

	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("Failed to open store")
	}
	defer a.Close()

	if cfg.Seed.Source != "" {
		_, err := a.SeedFrom(ctx, cfg.Seed.Source, false)
		var perr *ingest.ParseError
		if err != nil && !errors.As(err, &perr) {
			log.Error().Err(err).Str("source", cfg.Seed.Source).Msg("Failed to seed shapes")
		}
	}

	if err := a.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to load shapes")
	}

	srvCtx := server.NewServerContext(a)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           srvCtx.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}
	}()

	log.Info().
		Str("addr", listenAddr).
		Str("driver", cfg.Store.Driver).
		Msg("Web server started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server failed")
		return
	}

	log.Info().Msg("Web server stopped")
}
