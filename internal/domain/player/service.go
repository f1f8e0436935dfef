package player

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mercury-player/merplayer/internal/domain/playlist"
	"github.com/mercury-player/merplayer/internal/domain/track"
)

// PlaylistLoader produces the normalized playlist.
type PlaylistLoader interface {
	Load(ctx context.Context) (*playlist.Result, error)
}

// TrackEnricher resolves covers for a whole playlist.
type TrackEnricher interface {
	EnrichAll(ctx context.Context, tracks []track.Track, onEach func(track.Enriched)) []track.Enriched
}

// CacheClearer wipes the metadata cache.
type CacheClearer interface {
	Clear(ctx context.Context) (int, error)
}

// Service loads playlists into the store and runs cover enrichment in the
// background. The store is usable as soon as the playlist is loaded;
// enriched tracks replace their placeholders as they finish.
type Service struct {
	store    *Store
	loader   PlaylistLoader
	enricher TrackEnricher
	cache    CacheClearer

	// reload serialises Reload calls.
	reload sync.Mutex

	mu     sync.Mutex
	base   context.Context
	stop   context.CancelFunc
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new player service. enricher and cache may be nil.
func NewService(store *Store, loader PlaylistLoader, enricher TrackEnricher, cache CacheClearer) *Service {
	base, stop := context.WithCancel(context.Background())
	return &Service{
		store:    store,
		loader:   loader,
		enricher: enricher,
		cache:    cache,
		base:     base,
		stop:     stop,
	}
}

// Store returns the player store.
func (s *Service) Store() *Store {
	return s.store
}

// Load loads the playlist at startup.
func (s *Service) Load(ctx context.Context) error {
	return s.Reload(ctx, false)
}

// Reload replaces the playlist with a freshly loaded one, optionally wiping
// the metadata cache first. Any enrichment still running for the previous
// playlist is cancelled. If every source fails the store keeps its current
// playlist, enrichment resumes for its unresolved tracks and the error is
// returned.
func (s *Service) Reload(ctx context.Context, clearCache bool) error {
	s.reload.Lock()
	defer s.reload.Unlock()

	s.cancelEnrichment()

	if clearCache && s.cache != nil {
		if _, err := s.cache.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to clear metadata cache")
		}
	}

	res, err := s.loader.Load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load playlist")
		s.resumeEnrichment()
		return err
	}

	initial := make([]track.Enriched, len(res.Tracks))
	for i, t := range res.Tracks {
		initial[i] = track.Enrich(t, "")
	}
	s.store.Initialize(initial)

	if s.enricher != nil && len(res.Tracks) > 0 {
		s.startEnrichment(res.Tracks)
	}
	return nil
}

func (s *Service) startEnrichment(tracks []track.Track) {
	s.mu.Lock()
	ctx, cancel := context.WithCancel(s.base)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()

		s.enricher.EnrichAll(ctx, tracks, func(e track.Enriched) {
			if ctx.Err() != nil {
				return
			}
			s.store.UpdateTrack(e)
		})
	}()
}

// resumeEnrichment restarts enrichment for store tracks that have no
// runtime cover yet.
func (s *Service) resumeEnrichment() {
	if s.enricher == nil {
		return
	}
	var pending []track.Track
	for _, e := range s.store.Snapshot().Playlist {
		if e.RuntimeCover == "" {
			pending = append(pending, e.Track)
		}
	}
	if len(pending) == 0 {
		return
	}
	log.Info().Int("tracks", len(pending)).Msg("Resuming enrichment for kept playlist")
	s.startEnrichment(pending)
}

// cancelEnrichment stops the running enrichment and waits for it to exit.
func (s *Service) cancelEnrichment() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Wait blocks until the current enrichment run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels background enrichment and waits for it.
func (s *Service) Close() {
	s.stop()
	s.cancelEnrichment()
}
