// Package enrichment resolves runtime covers (and refreshed title/artist) for
// playlist tracks by fetching the audio and extracting embedded artwork.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	// ErrUnexpectedStatus indicates a non-2xx response from an audio host.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrUnknownStrategy is returned by ParseStrategy for unrecognised names.
	ErrUnknownStrategy = errors.New("unknown enrichment strategy")
)

// Strategy selects how audio bytes are obtained for cover extraction.
type Strategy string

const (
	// StrategyRemote fetches audio over HTTP.
	StrategyRemote Strategy = "remote"
	// StrategyLocal reads audio from bundled resources via the platform bridge.
	StrategyLocal Strategy = "local"
	// StrategyNone skips enrichment; tracks keep their declared cover.
	StrategyNone Strategy = "none"
)

// ParseStrategy converts a configuration value into a Strategy.
// An empty value selects StrategyRemote.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyRemote:
		return StrategyRemote, nil
	case StrategyLocal:
		return StrategyLocal, nil
	case StrategyNone:
		return StrategyNone, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Mode distinguishes the two fetch attempts made for a track.
type Mode int

const (
	// ModePrimary is the first attempt; tag title/artist are merged from it.
	ModePrimary Mode = iota
	// ModeFallback is the retry after a failed primary attempt. It tolerates
	// error statuses and asks intermediaries not to serve cached bytes.
	ModeFallback
)

func (m Mode) String() string {
	if m == ModeFallback {
		return "fallback"
	}
	return "primary"
}

// Fetcher loads the raw bytes of an audio resource.
type Fetcher interface {
	Fetch(ctx context.Context, locator string, mode Mode) ([]byte, error)
}

// CoverSink receives covers for the currently selected song as soon as they
// are resolved. UpdateCoverIfCurrent must apply the cover only when id is
// still the current song, and report whether it did.
type CoverSink interface {
	UpdateCoverIfCurrent(id int, cover string) bool
}

const (
	// DefaultFetchTimeout bounds the primary fetch.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultFallbackTimeout bounds the fallback fetch.
	DefaultFallbackTimeout = 5 * time.Second

	// MaxAudioSize is the maximum number of audio bytes read per track (64MB).
	MaxAudioSize = 64 * 1024 * 1024
)

// DefaultExternalCoverPatterns are URL substrings of providers whose covers
// are already usable without tag extraction.
var DefaultExternalCoverPatterns = []string{"api.paugram.com", "netease"}
