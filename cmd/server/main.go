package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/beatsync/server/internal/adapters/http"
	"github.com/beatsync/server/internal/adapters/geo"
	"github.com/beatsync/server/internal/adapters/music"
	"github.com/beatsync/server/internal/adapters/storage"
	"github.com/beatsync/server/internal/adapters/ws"
	"github.com/beatsync/server/internal/app"
	"github.com/beatsync/server/internal/config"
	"github.com/beatsync/server/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	blobs := storage.NewLocalBlobStore("./data/blobs", fmt.Sprintf("http://localhost:%d", cfg.Port), cfg.Secret, cfg.Storage.PresignTTL)
	registry := app.NewRegistry(blobs, log.Logger)

	var musicProvider app.MusicProvider
	if cfg.Music.BaseURL != "" {
		musicProvider = music.NewHTTPProvider(cfg.Music.BaseURL, cfg.Music.APIKey, cfg.Music.Timeout)
	}

	var locations app.LocationResolver
	if cfg.Geo.BaseURL != "" {
		locations = geo.NewHTTPResolver(cfg.Geo.BaseURL, cfg.Geo.Timeout)
	}

	defaultTracks := config.NewStaticTrackProvider(cfg.Room.DefaultTrackURLs)
	dispatcher := app.NewDispatcher(registry, musicProvider, defaultTracks, locations, log.Logger)

	store := snapshotStore(cfg)
	backup := app.NewBackupManager(registry, store, cfg.Backup.Interval, log.Logger)
	if cfg.Backup.RestoreOnBoot {
		backup.RestoreFromStore(ctx)
	}
	backup.Start(ctx)

	wsCfg := ws.DefaultConfig()
	wsCfg.ReadLimitBytes = cfg.WebSocket.ReadLimitBytes
	wsCfg.PongWait = cfg.WebSocket.PongWait
	wsCfg.PingPeriod = cfg.WebSocket.PingPeriod
	wsController := ws.NewController(registry, dispatcher, wsCfg, log.Logger)

	audioSources := make([]domain.AudioSource, len(cfg.Room.DefaultTrackURLs))
	for i, url := range cfg.Room.DefaultTrackURLs {
		audioSources[i] = domain.AudioSource{URL: url}
	}

	r := router.SetupRouter(cfg, router.Deps{
		Registry:      registry,
		Dispatcher:    dispatcher,
		Blobs:         blobs,
		WSController:  wsController,
		DefaultTracks: audioSources,
		StartedAt:     time.Now(),
	})

	config.Watch(func(next *config.Config) {
		log.Info().Msg("config file changed; running settings are not reapplied")
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Info().Str("addr", addr).Msg("beatsync server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	backup.SnapshotNow(shutdownCtx)
	backup.Stop()
	registry.Shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}

func snapshotStore(cfg *config.Config) app.SnapshotStore {
	if cfg.Redis.Addr == "" {
		return storage.NewFileSnapshotStore(cfg.Backup.FilePath)
	}
	client := storage.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.MaxRetries, cfg.Redis.PoolSize, cfg.Redis.MinIdleConns)
	return storage.NewRedisSnapshotStore(client, cfg.Redis.SnapshotKey)
}
