package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/diewo77/holzhandel-admin/internal/config"
	"github.com/diewo77/holzhandel-admin/internal/db"
	"github.com/diewo77/holzhandel-admin/internal/events"
	"github.com/diewo77/holzhandel-admin/internal/locks"
	"github.com/diewo77/holzhandel-admin/internal/logging"
	"github.com/diewo77/holzhandel-admin/internal/policy"
	"github.com/diewo77/holzhandel-admin/internal/render"
	"github.com/diewo77/holzhandel-admin/internal/storage"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.App.Dev)

	dbConn, err := db.Connect(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}

	if *migrateOnlyFlag {
		if err := db.Migrate(dbConn, cfg, log); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
		log.Info("migrations completed")
		return
	}
	if *seedOnlyFlag {
		if err := db.Seed(dbConn, cfg, log); err != nil {
			log.WithError(err).Fatal("seeding failed")
		}
		log.Info("seeding completed")
		return
	}

	if err := db.Migrate(dbConn, cfg, log); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	if cfg.App.Seed {
		if err := db.Seed(dbConn, cfg, log); err != nil {
			log.WithError(err).Fatal("seeding failed")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initialize infrastructure")
	}
	defer cleanup()
	deps.DB = dbConn
	deps.Config = cfg
	deps.Logger = log

	app := NewApp(cfg, dbConn, policy.NewRouterConfig(deps), log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Server.Port, "dev": cfg.App.Dev}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
	log.Info("server stopped gracefully")
}

// buildDeps selects storage, renderer, locker and publisher from config.
// The returned cleanup closes the clients that were opened.
func buildDeps(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (policy.Deps, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.WithError(err).Warn("close client")
			}
		}
	}
	fail := func(err error) (policy.Deps, func(), error) {
		cleanup()
		return policy.Deps{}, func() {}, err
	}

	var d policy.Deps

	switch cfg.Storage.Driver {
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.Storage.CredentialsJSON)
		if err != nil {
			return fail(err)
		}
		gcs, err := storage.NewGCSStore(ctx, client, cfg.Storage.Bucket, cfg.Storage.Prefix)
		if err != nil {
			_ = client.Close()
			return fail(err)
		}
		closers = append(closers, gcs.Close)
		d.Store = gcs
	default:
		local, err := storage.NewLocalStore(cfg.Storage.Dir)
		if err != nil {
			return fail(err)
		}
		d.Store = local
	}
	log.WithField("driver", cfg.Storage.Driver).Info("document storage ready")

	var (
		html *render.HTMLRenderer
		err  error
	)
	if cfg.Renderer.TemplatePath != "" {
		html, err = render.NewHTMLRendererFromFile(cfg.Renderer.TemplatePath)
	} else {
		html, err = render.NewHTMLRenderer()
	}
	if err != nil {
		return fail(err)
	}
	d.HTML = html

	var pdf render.PDFRenderer = render.NewGotenbergRenderer(cfg.Renderer.GotenbergURL, html, &http.Client{})
	if cfg.Renderer.Driver == config.RendererMaroto {
		pdf = render.NewMarotoRenderer()
	}
	d.PDF = render.NewRetrying(pdf, cfg.Renderer.Timeout, cfg.Renderer.Retries, log)
	log.WithField("driver", cfg.Renderer.Driver).Info("pdf renderer ready")

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fail(err)
		}
		closers = append(closers, rdb.Close)
		d.Locker = locks.NewRedisLocker(rdb)
		log.WithField("addr", cfg.Redis.Addr).Info("redis invoice lock enabled")
	} else {
		d.Locker = locks.NewMemoryLocker()
	}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.Topic != "" {
		pub, err := events.NewPubSubPublisher(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic, cfg.PubSub.CredentialsJSON)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pub.Close)
		d.Publisher = pub
		log.WithField("topic", cfg.PubSub.Topic).Info("pubsub events enabled")
	} else {
		d.Publisher = events.LogPublisher{Logger: log}
	}

	return d, cleanup, nil
}
