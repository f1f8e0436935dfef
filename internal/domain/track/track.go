// Package track defines the playlist data model: raw catalogue records, playable
// tracks and tracks enriched with a displayable cover.
package track

import (
	"errors"
)

// Placeholder is the cover shown when no real artwork could be resolved:
// a 1x1 transparent PNG encoded as a data URI. It never changes, so equality
// checks against it are stable across calls and cache round trips.
const Placeholder = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAHESMIAAAAABJRU5ErkJggg=="

// Unknown is the default title and artist for records that carry none.
const Unknown = "Unknown"

var (
	// ErrInvalidID is reported for ids that cannot be coerced to an integer.
	ErrInvalidID = errors.New("invalid track id")

	// ErrDuplicateID is reported for a record whose id was already taken by an
	// earlier record in the same playlist.
	ErrDuplicateID = errors.New("duplicate track id")
)

// Track is a playable item: descriptive metadata plus its audio locator.
type Track struct {
	ID       int     `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Cover    string  `json:"cover"`    // Declared cover URL, may be empty
	URL      string  `json:"url"`      // Audio locator, also the cache key
	Duration float64 `json:"duration"` // Seconds, 0 when unknown
}

// Enriched is a Track plus the cover resolved at runtime.
// RuntimeCover is a data URI or URL; empty means "show the placeholder".
type Enriched struct {
	Track
	RuntimeCover string `json:"runtimeCover"`
}

// Enrich wraps t with the given runtime cover.
func Enrich(t Track, runtimeCover string) Enriched {
	return Enriched{Track: t, RuntimeCover: runtimeCover}
}

// DisplayCover resolves the cover a UI should render.
func (e Enriched) DisplayCover() string {
	return DisplayCover(e.RuntimeCover)
}

// DisplayCover maps an empty runtime cover to the placeholder.
func DisplayCover(runtimeCover string) string {
	if runtimeCover == "" {
		return Placeholder
	}
	return runtimeCover
}

// WithDefaults fills the documented defaults for missing fields.
func (t Track) WithDefaults() Track {
	if isBlank(t.Title) {
		t.Title = Unknown
	}
	if isBlank(t.Artist) {
		t.Artist = Unknown
	}
	if t.Duration < 0 {
		t.Duration = 0
	}
	return t
}
