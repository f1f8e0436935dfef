package enrichment

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mercury-player/merplayer/internal/domain/artwork"
	"github.com/mercury-player/merplayer/internal/domain/track"
	"github.com/mercury-player/merplayer/internal/infra/cache"
)

// Enricher resolves the runtime cover of one track at a time. It never
// returns an error: every failure degrades to the declared cover or the
// placeholder.
type Enricher struct {
	strategy        Strategy
	fetcher         Fetcher
	extractor       *artwork.Extractor
	cache           *cache.Metadata
	sink            CoverSink
	external        []string
	fetchTimeout    time.Duration
	fallbackTimeout time.Duration
	concurrency     int
}

// Option is a functional option for configuring the enricher
type Option func(*Enricher)

// WithStrategy sets the enrichment strategy.
func WithStrategy(s Strategy) Option {
	return func(e *Enricher) {
		e.strategy = s
	}
}

// WithFetcher sets the audio fetcher. The default is an HTTPFetcher.
func WithFetcher(f Fetcher) Option {
	return func(e *Enricher) {
		e.fetcher = f
	}
}

// WithExtractor sets the cover extractor.
func WithExtractor(x *artwork.Extractor) Option {
	return func(e *Enricher) {
		e.extractor = x
	}
}

// WithCache sets the metadata cache. Without one every track is fetched.
func WithCache(c *cache.Metadata) Option {
	return func(e *Enricher) {
		e.cache = c
	}
}

// WithCoverSink sets where covers for the current song are pushed early.
func WithCoverSink(s CoverSink) Option {
	return func(e *Enricher) {
		e.sink = s
	}
}

// WithExternalCoverPatterns replaces the URL substrings that skip extraction.
func WithExternalCoverPatterns(patterns ...string) Option {
	return func(e *Enricher) {
		e.external = patterns
	}
}

// WithTimeouts bounds the primary and fallback fetches. Zero leaves a path
// bounded only by the caller's context.
func WithTimeouts(primary, fallback time.Duration) Option {
	return func(e *Enricher) {
		e.fetchTimeout = primary
		e.fallbackTimeout = fallback
	}
}

// WithConcurrency limits simultaneous enrichments in EnrichAll. Zero or less
// means no limit.
func WithConcurrency(n int) Option {
	return func(e *Enricher) {
		e.concurrency = n
	}
}

// NewEnricher creates a new track enricher
func NewEnricher(opts ...Option) *Enricher {
	e := &Enricher{
		strategy:        StrategyRemote,
		external:        DefaultExternalCoverPatterns,
		fetchTimeout:    DefaultFetchTimeout,
		fallbackTimeout: DefaultFallbackTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.fetcher == nil {
		e.fetcher = NewHTTPFetcher()
	}
	if e.extractor == nil {
		e.extractor = artwork.NewExtractor()
	}

	return e
}

// Strategy returns the configured strategy.
func (e *Enricher) Strategy() Strategy {
	return e.strategy
}

// Enrich resolves the runtime cover for t.
func (e *Enricher) Enrich(ctx context.Context, t track.Track) track.Enriched {
	if e.strategy == StrategyNone {
		return track.Enrich(t, t.Cover)
	}

	if t.URL == "" {
		log.Warn().Int("id", t.ID).Str("title", t.Title).Msg("Track has no URL, skipping enrichment")
		return track.Enrich(t, t.Cover)
	}

	if e.isExternal(t.URL) {
		log.Debug().Str("url", t.URL).Msg("External cover provider, skipping extraction")
		return track.Enrich(t, t.Cover)
	}

	if e.cache != nil {
		if cached, ok := e.cache.Lookup(ctx, t); ok {
			log.Debug().Str("url", t.URL).Msg("Metadata cache hit")
			// Entries are keyed by locator; the id belongs to this playlist.
			cached.ID = t.ID
			return cached
		}
	}

	result, ok := e.resolve(ctx, t)
	if !ok {
		// Cancelled by the caller: report the best guess but keep it out of
		// the cache and the store.
		return result
	}

	if e.sink != nil && e.sink.UpdateCoverIfCurrent(t.ID, result.RuntimeCover) {
		log.Debug().Int("id", t.ID).Msg("Pushed cover to current song")
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, result); err != nil {
			log.Warn().Err(err).Str("url", t.URL).Msg("Failed to cache enriched track")
		}
	}

	return result
}

// resolve runs the primary fetch and, when it fails, the fallback fetch.
// ok is false when ctx ended before a result could be trusted.
func (e *Enricher) resolve(ctx context.Context, t track.Track) (track.Enriched, bool) {
	data, err := e.fetch(ctx, t.URL, ModePrimary, e.fetchTimeout)
	if err == nil {
		res := e.extractor.Extract(data)
		if res.Found() {
			log.Debug().Str("url", t.URL).Msg("Extracted embedded cover")
		}
		return track.Enrich(mergeTags(t, res), res.Cover), true
	}
	if ctx.Err() != nil {
		return track.Enrich(t, fallbackCover(t)), false
	}

	log.Warn().Err(err).Str("url", t.URL).Msg("Primary fetch failed, retrying cover extraction")

	data, err = e.fetch(ctx, t.URL, ModeFallback, e.fallbackTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return track.Enrich(t, fallbackCover(t)), false
		}
		log.Warn().Err(err).Str("url", t.URL).Msg("Fallback fetch failed, using declared cover")
		return track.Enrich(t, fallbackCover(t)), true
	}

	res := e.extractor.Extract(data)
	return track.Enrich(t, res.Cover), true
}

func (e *Enricher) fetch(ctx context.Context, url string, mode Mode, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return e.fetcher.Fetch(ctx, url, mode)
}

func (e *Enricher) isExternal(url string) bool {
	for _, p := range e.external {
		if p != "" && strings.Contains(url, p) {
			return true
		}
	}
	return false
}

// EnrichAll enriches every track concurrently. Results keep the input order.
// onEach, if set, is called as each track finishes, possibly from several
// goroutines at once.
func (e *Enricher) EnrichAll(ctx context.Context, tracks []track.Track, onEach func(track.Enriched)) []track.Enriched {
	out := make([]track.Enriched, len(tracks))

	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}

	start := time.Now()
	for i, t := range tracks {
		g.Go(func() error {
			out[i] = e.Enrich(ctx, t)
			if onEach != nil {
				onEach(out[i])
			}
			return nil
		})
	}
	g.Wait()

	log.Info().
		Int("tracks", len(tracks)).
		Str("strategy", string(e.strategy)).
		Dur("elapsed", time.Since(start)).
		Msg("Playlist enrichment finished")

	return out
}

// mergeTags fills title and artist from tags where the record has none.
func mergeTags(t track.Track, res artwork.Result) track.Track {
	if res.Title != "" && (t.Title == "" || t.Title == track.Unknown) {
		t.Title = res.Title
	}
	if res.Artist != "" && (t.Artist == "" || t.Artist == track.Unknown) {
		t.Artist = res.Artist
	}
	return t
}

func fallbackCover(t track.Track) string {
	if t.Cover != "" {
		return t.Cover
	}
	return track.Placeholder
}
