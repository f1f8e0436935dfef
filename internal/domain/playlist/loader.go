// Package playlist obtains the raw playlist from the first available source
// and normalizes it into tracks.
package playlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mercury-player/merplayer/internal/domain/track"
)

var (
	// ErrNoSource is returned when the loader has no sources configured.
	ErrNoSource = errors.New("no playlist source configured")

	// ErrAllSourcesFailed wraps the individual failures when every source failed.
	ErrAllSourcesFailed = errors.New("all playlist sources failed")
)

// Source produces raw playlist records.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]track.RawTrack, error)
}

// Result is a normalized playlist and where it came from.
type Result struct {
	Source   string
	Tracks   []track.Track
	Warnings []error
}

// Loader tries its sources in priority order and stops at the first success.
// Sources are never merged.
type Loader struct {
	sources []Source
}

// NewLoader creates a loader over sources, highest priority first. Nil
// sources are skipped.
func NewLoader(sources ...Source) *Loader {
	l := &Loader{}
	for _, s := range sources {
		if s != nil {
			l.sources = append(l.sources, s)
		}
	}
	return l
}

// Sources returns the names of the configured sources in priority order.
func (l *Loader) Sources() []string {
	names := make([]string, len(l.sources))
	for i, s := range l.sources {
		names[i] = s.Name()
	}
	return names
}

// Load returns the normalized playlist of the first source that succeeds.
// When every source fails the error wraps ErrAllSourcesFailed and each
// source's failure.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	if len(l.sources) == 0 {
		return nil, ErrNoSource
	}

	var errs []error
	for _, s := range l.sources {
		raw, err := s.Load(ctx)
		if err != nil {
			log.Warn().Err(err).Str("source", s.Name()).Msg("Playlist source failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		tracks, warnings := track.Normalize(raw)
		for _, w := range warnings {
			log.Warn().Err(w).Str("source", s.Name()).Msg("Dropped playlist entry")
		}

		log.Info().
			Str("source", s.Name()).
			Int("records", len(raw)).
			Int("tracks", len(tracks)).
			Msg("Playlist loaded")

		return &Result{Source: s.Name(), Tracks: tracks, Warnings: warnings}, nil
	}

	return nil, errors.Join(append([]error{ErrAllSourcesFailed}, errs...)...)
}
