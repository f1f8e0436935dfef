// MerPlayer backend: loads the playlist, enriches covers and drives playback
// for browser or MPD surfaces.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mercury-player/merplayer/internal/config"
	"github.com/mercury-player/merplayer/internal/domain/artwork"
	"github.com/mercury-player/merplayer/internal/domain/player"
	"github.com/mercury-player/merplayer/internal/domain/playlist"
	"github.com/mercury-player/merplayer/internal/infra/cache"
	"github.com/mercury-player/merplayer/internal/infra/enrichment"
	"github.com/mercury-player/merplayer/internal/infra/graphql"
	"github.com/mercury-player/merplayer/internal/infra/mpd"
	"github.com/mercury-player/merplayer/internal/logging"
	"github.com/mercury-player/merplayer/internal/platform"
	"github.com/mercury-player/merplayer/internal/transport/socketio"
	"github.com/mercury-player/merplayer/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}
	defer logCloser.Close()

	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", version.GetInfo().String())
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("addr", cfg.Addr).
		Str("api", cfg.APIBaseURL).
		Str("strategy", cfg.Strategy).
		Str("cache", cfg.CacheBackend).
		Str("mpd_host", cfg.MPDHost).
		Bool("packaged", cfg.Packaged).
		Msg("Configuration")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("MerPlayer stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
	log.Info().Msg("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	kv, err := openCacheStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()
	metadata := cache.NewMetadata(kv)

	strategy, err := enrichment.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}

	bridge := newBridge(cfg)

	store := player.NewStore()
	store.SetVolume(cfg.DefaultVolume)

	var fetcher enrichment.Fetcher
	if strategy == enrichment.StrategyLocal {
		fetcher = enrichment.NewLocalFetcher(bridge)
	} else {
		fetcher = enrichment.NewHTTPFetcher(enrichment.WithBaseURL(cfg.PublicBaseURL))
	}
	enricher := enrichment.NewEnricher(
		enrichment.WithStrategy(strategy),
		enrichment.WithFetcher(fetcher),
		enrichment.WithExtractor(artwork.NewExtractor(artwork.WithMaxDimension(cfg.CoverMaxSize))),
		enrichment.WithCache(metadata),
		enrichment.WithCoverSink(store),
		enrichment.WithTimeouts(cfg.FetchTimeout, cfg.FallbackTimeout),
		enrichment.WithConcurrency(cfg.EnrichConcurrency),
	)

	catalogue := graphql.NewClient(cfg.APIBaseURL,
		graphql.WithEndpoint(cfg.GraphQLEndpoint),
		graphql.WithTimeout(cfg.APITimeout),
	)
	defer catalogue.Close()

	hosted := playlist.NewHTTPFileSource(cfg.PublicBaseURL, cfg.PlaylistPath, cfg.APITimeout)
	defer hosted.Close()

	loader := playlist.NewLoader(
		playlist.NewRemoteSource(catalogue),
		playlist.NewBundledSource(bridge, cfg.PlaylistPath),
		hosted,
	)

	svc := player.NewService(store, loader, enricher, metadata)
	defer svc.Close()

	socketServer, err := socketio.NewServer(store,
		socketio.WithReloader(svc),
		socketio.WithMaxRemote(cfg.SocketMaxRemote),
	)
	if err != nil {
		return fmt.Errorf("create socket.io server: %w", err)
	}
	defer socketServer.Close()

	routes := &api{
		store:     store,
		reloader:  svc,
		socket:    socketServer,
		staticDir: cfg.StaticDir,
	}
	if sr, ok := kv.(cache.StatsReporter); ok {
		routes.cacheStats = sr
	}

	if cfg.MPDHost != "" {
		mpdClient := mpd.NewClient(cfg.MPDHost, cfg.MPDPort, cfg.MPDPassword)
		if err := mpdClient.Connect(); err != nil {
			return fmt.Errorf("connect to MPD: %w", err)
		}
		defer mpdClient.Close()
		log.Info().Str("host", cfg.MPDHost).Int("port", cfg.MPDPort).Msg("MPD connection verified")

		surface := mpd.NewSurface(mpdClient, store, mpd.WithBaseURL(cfg.PublicBaseURL))
		surface.Attach()
		go surface.Run(ctx)
		routes.mpdPing = mpdClient.Ping
	} else {
		store.RegisterSurface(socketServer)
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      routes.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// The hosted playlist source may point back at this server, so the first
	// load runs once the listener is up.
	go func() {
		if err := svc.Reload(ctx, cfg.ClearCache); err != nil {
			log.Error().Err(err).Msg("Initial playlist load failed")
		}
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	return nil
}

// openCacheStore opens the configured key-value backend.
func openCacheStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case "memory":
		return cache.NewMemoryStore(), nil
	case "redis":
		r := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := r.Open(ctx); err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		return r, nil
	default:
		db := cache.NewDB(cfg.CachePath)
		if err := db.Open(); err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return db, nil
	}
}

// newBridge resolves bundled resources: the desktop shell layout when
// packaged, otherwise the served static directory if there is one.
func newBridge(cfg *config.Config) platform.Bridge {
	if !cfg.Packaged && cfg.StaticDir != "" {
		return platform.NewDesktopAt(cfg.StaticDir)
	}
	return platform.NewDesktop(cfg.Packaged, cfg.ResourcesPath)
}
