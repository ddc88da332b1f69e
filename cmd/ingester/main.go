package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"momo-player/internal/catalog"
	"momo-player/internal/config"
	database "momo-player/internal/db"
	"momo-player/internal/ingest"
	plog "momo-player/internal/log"
	"momo-player/internal/media"
	"momo-player/internal/storage"
)

func main() {
	prefix := flag.String("prefix", "videos/", "Bucket prefix to scan")
	category := flag.String("category", "", "Category for new videos (defaults to catalog.category, then \"Library\")")
	validate := flag.Bool("validate", false, "Reject files ffprobe cannot read")
	force := flag.Bool("force", false, "Re-read files that already have a row")
	watch := flag.Duration("watch", 0, "Rescan at this interval instead of exiting")
	dump := flag.String("dump", "", "Write the resulting catalog as YAML to this file (- for stdout)")
	publish := flag.String("publish", "", "Upload the resulting catalog to this bucket key")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := plog.WithComponent("main")
		boot.Fatal().Err(err).Msg("load config")
	}
	plog.Configure(plog.Config{Level: cfg.Server.LogLevel, Service: "momo-ingester"})
	logger := plog.WithComponent("main")

	store, err := storage.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("init storage")
	}
	db, err := database.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("migrate database")
	}

	name := *category
	if name == "" {
		name = cfg.Catalog.Category
	}
	if name == "" {
		name = "Library"
	}

	opts := ingest.Options{Prefix: *prefix, Category: name, Force: *force, TempDir: cfg.Player.CacheDir}
	if *validate {
		opts.Probe = media.Probe
	}
	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("create temp dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingest.RegisterMetrics()
	worker := ingest.New(store, db.DB, opts)
	if err := worker.Run(ctx, *watch); err != nil {
		logger.Error().Err(err).Msg("ingest failed")
		return
	}

	if *dump != "" {
		c, err := ingest.Export(db.DB)
		if err != nil {
			logger.Fatal().Err(err).Msg("export catalog")
		}
		data, err := catalog.Marshal(c)
		if err != nil {
			logger.Fatal().Err(err).Msg("encode catalog")
		}
		if *dump == "-" {
			_, err = os.Stdout.Write(data)
		} else {
			err = os.WriteFile(*dump, data, 0o644)
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("write catalog")
		}
	}
	if *publish != "" {
		if err := ingest.PublishCatalog(store, db.DB, *publish); err != nil {
			logger.Fatal().Err(err).Msg("publish catalog")
		}
		logger.Info().Str("key", *publish).Msg("catalog published")
	}
}
