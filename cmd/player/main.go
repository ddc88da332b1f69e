package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	apiserver "momo-player/internal/api/server"
	"momo-player/internal/catalog"
	"momo-player/internal/config"
	database "momo-player/internal/db"
	"momo-player/internal/engine"
	plog "momo-player/internal/log"
	"momo-player/internal/media"
	"momo-player/internal/models"
	"momo-player/internal/player"
	"momo-player/internal/storage"
)

func main() {
	// Flags override config.yaml values
	simulate := flag.Bool("simulate", false, "Dry run: print the playlist schedule without playing")
	backend := flag.String("backend", "", "Override player backend (sim, mpv)")
	category := flag.String("category", "", "Override catalog category")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := plog.WithComponent("main")
		boot.Fatal().Err(err).Msg("load config")
	}
	plog.Configure(plog.Config{Level: cfg.Server.LogLevel})
	logger := plog.WithComponent("main")

	if *simulate {
		cfg.Player.DryRun = true
	}
	if *backend != "" {
		cfg.Player.Backend = *backend
	}
	if *category != "" {
		cfg.Catalog.Category = *category
	}

	store, err := storage.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("init storage")
	}

	cat, err := loadCatalog(cfg, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("load catalog")
	}

	// A dry run works on a throwaway database so nothing is persisted.
	var db *database.Client
	if cfg.Player.DryRun {
		logger.Info().Msg("dry run: no playback, database and storage untouched")
		db, err = database.NewInMemory()
	} else {
		db, err = database.New(cfg)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Player.DryRun {
		eng, err := engine.New(cfg, nil, db, cat)
		if err != nil {
			logger.Fatal().Err(err).Msg("init engine")
		}
		defer eng.Close()
		fallback := cfg.Player.SimDuration.Seconds()
		eng.RunSimulation(os.Stdout, time.Now(), func(src string) float64 {
			if d, err := media.Probe(ctx, src); err == nil && d > 0 {
				return d
			}
			return fallback
		})
		return
	}

	eng, err := engine.New(cfg, store, db, cat)
	if err != nil {
		logger.Fatal().Err(err).Msg("init engine")
	}

	el, err := media.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open player backend")
	}
	defer el.Close()

	player.RegisterMetrics()
	engine.RegisterMetrics()

	srv := apiserver.New(cfg, eng)
	defer srv.Close()

	logger.Info().
		Str("backend", cfg.Player.Backend).
		Str("addr", cfg.Server.Addr).
		Msg("starting momo player")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx, el) })
	g.Go(func() error { return srv.Run(gctx, cfg.Server.Addr) })
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("player stopped")
		return
	}
	logger.Info().Msg("player stopped")
}

// loadCatalog reads catalog.path when set, otherwise catalog.key from the
// bucket.
func loadCatalog(cfg *config.Config, store *storage.Client) (*models.Catalog, error) {
	if cfg.Catalog.Path != "" {
		return catalog.LoadFile(cfg.Catalog.Path)
	}
	return catalog.LoadObject(store, cfg.Catalog.Key)
}
