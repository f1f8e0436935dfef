package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mercury-player/merplayer/internal/domain/track"
)

// Namespace prefixes every metadata cache key in the underlying store.
const Namespace = "metadata_cache_"

// Metadata maps a track locator to the enriched track last computed for it.
// Concurrent writes to the same key are last-writer-wins.
type Metadata struct {
	store  Store
	prefix string
}

// NewMetadata wraps store with the metadata namespace.
func NewMetadata(store Store) *Metadata {
	return &Metadata{store: store, prefix: Namespace}
}

// Key returns the store key for a track locator.
func (m *Metadata) Key(url string) string {
	return m.prefix + url
}

// Get returns the cached record for url. Unreadable entries count as misses.
func (m *Metadata) Get(ctx context.Context, url string) (track.Enriched, bool, error) {
	key := m.Key(url)
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil || !ok {
		return track.Enriched{}, false, err
	}

	var e track.Enriched
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cache entry")
		return track.Enriched{}, false, nil
	}
	return e, true, nil
}

// Lookup returns the cached record for t only if it can be trusted: the
// cached declared cover must equal t's declared cover, and be non-empty.
func (m *Metadata) Lookup(ctx context.Context, t track.Track) (track.Enriched, bool) {
	if t.URL == "" || t.Cover == "" {
		return track.Enriched{}, false
	}

	cached, ok, err := m.Get(ctx, t.URL)
	if err != nil {
		log.Warn().Err(err).Str("url", t.URL).Msg("Cache read failed")
		return track.Enriched{}, false
	}
	if !ok {
		return track.Enriched{}, false
	}
	if cached.Cover != t.Cover {
		log.Debug().
			Str("url", t.URL).
			Str("cached", cached.Cover).
			Str("current", t.Cover).
			Msg("Stale cache entry")
		return track.Enriched{}, false
	}
	return cached, true
}

// Put stores e under its locator.
func (m *Metadata) Put(ctx context.Context, e track.Enriched) error {
	if e.URL == "" {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return m.store.Set(ctx, m.Key(e.URL), string(b))
}

// Keys lists every key in the metadata namespace.
func (m *Metadata) Keys(ctx context.Context) ([]string, error) {
	return m.store.Keys(ctx, m.prefix)
}

// Clear removes every namespaced entry and reports how many were removed.
// Keys outside the namespace are left alone.
func (m *Metadata) Clear(ctx context.Context) (int, error) {
	keys, err := m.Keys(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.store.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	log.Info().Int("entries", len(keys)).Msg("Metadata cache cleared")
	return len(keys), nil
}
