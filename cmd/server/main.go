// Command server runs the social backend HTTP API.
//
// @title        Social Backend API
// @version      1.0
// @description  Feeds, follow graph, engagement, ephemeral stories, notifications and direct messages.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-social-backend/internal/config"
	httpapi "github.com/tbourn/go-social-backend/internal/http"
	"github.com/tbourn/go-social-backend/internal/jobs"
	"github.com/tbourn/go-social-backend/internal/media"
	"github.com/tbourn/go-social-backend/internal/observability"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}

	cfg := config.MustLoad()

	log.Logger = sysutil.SetupLogger(sysutil.LogOptions{
		Level:   cfg.Log.Level,
		Pretty:  cfg.Log.Pretty,
		NoColor: sysutil.IsTruthy(os.Getenv("NO_COLOR")),
		Service: cfg.OTEL.ServiceName,
		Version: version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DB.Driver, cfg.DB.DSN())
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	store, err := openMediaStore(ctx, cfg.Media)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Media.Backend).Msg("media store unavailable")
	}

	bus := realtime.NewBus()

	var reaper *jobs.Reaper
	if cfg.Stories.ReaperEnabled {
		reaper = jobs.NewReaper(services.NewStoryService(db, bus, nil), cfg.Stories.ReaperSchedule, cfg.Stories.Retention)
		if err := reaper.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("story reaper failed to start")
		}
	}

	gin.SetMode(cfg.Server.GinMode)
	r := gin.New()
	versions := httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Bus: bus, Media: store}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.DB.Driver).Str("media", cfg.Media.Backend).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if reaper != nil {
		reaper.Stop(shutdownCtx)
	}
	versions.Close()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}

// openMediaStore builds the configured upload backend. Local files are
// served by the router under /media unless a public base URL points
// elsewhere.
func openMediaStore(ctx context.Context, mc config.MediaConfig) (media.Store, error) {
	switch mc.Backend {
	case "s3":
		s, err := media.NewS3Store(ctx, media.S3Options{
			Bucket:        mc.S3Bucket,
			Region:        mc.S3Region,
			Endpoint:      mc.S3Endpoint,
			PublicBaseURL: mc.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := media.NewLocalStore(mc.Dir, sysutil.FirstNonEmpty(mc.PublicBaseURL, "/media"))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
