package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"auctionsearch/internal/cache"
	"auctionsearch/internal/config"
	"auctionsearch/internal/events"
	"auctionsearch/internal/http/handlers"
	applog "auctionsearch/internal/log"
	"auctionsearch/internal/repos"
	"auctionsearch/internal/services"
	"auctionsearch/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		applog.Setup("info", false)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Optional file logging
	var extra []io.Writer
	var fileErr error
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fileErr = err
		} else {
			defer f.Close()
			extra = append(extra, f)
		}
	}
	applog.Setup(cfg.Log.Level, cfg.Log.Pretty, extra...)
	if fileErr != nil {
		log.Warn().Err(fileErr).Str("file", cfg.Log.File).Msg("could not open log file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Str("dsn", cfg.DBDSN).Msg("failed to open replica store")
	}
	defer db.Close()
	itemRepo := repos.NewItemRepo(db)

	client := upstream.NewClient(upstream.Config{
		BaseURL:    cfg.Upstream.BaseURL,
		ItemsPath:  cfg.Upstream.ItemsPath,
		RetryDelay: cfg.Upstream.RetryDelay,
		Timeout:    cfg.Upstream.Timeout,
	})

	searchSvc := services.NewSearchService(itemRepo)
	syncSvc := services.NewSyncService(itemRepo, client)
	syncSvc.OnStart = cfg.Sync.OnStart
	syncSvc.Interval = cfg.Sync.Interval

	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Msg("search cache disabled")
		} else {
			defer rdb.Close()
			pages := cache.NewSearchCache(rdb, cfg.Redis.TTL)
			searchSvc.Cache = pages
			syncSvc.Cache = pages
			log.Info().Str("addr", cfg.Redis.Addr).Msg("search cache enabled")
		}
	}

	var listener *events.Listener
	if cfg.NATS.URL != "" {
		listener, err = events.NewListener(cfg.NATS.URL, cfg.NATS.Subjects, syncSvc)
		if err != nil {
			log.Warn().Err(err).Msg("event-driven sync disabled")
		} else {
			defer listener.Close()
		}
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler,
	})
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New())
	app.Use(helmet.New())

	deps := handlers.NewDeps(itemRepo, searchSvc, syncSvc)
	deps.Mount(app, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		return syncSvc.Loop(gctx)
	})
	if listener != nil {
		g.Go(func() error {
			return listener.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("auctionsearch exited")
		return
	}
	log.Info().Msg("auctionsearch stopped")
}
