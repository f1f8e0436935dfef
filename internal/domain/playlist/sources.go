package playlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/mercury-player/merplayer/internal/domain/track"
	"github.com/mercury-player/merplayer/internal/platform"
)

// DefaultPath is the bundled playlist location relative to the public root.
const DefaultPath = "/data/playlist.json"

// ErrMalformed marks a playlist payload that is not a JSON array of records.
var ErrMalformed = errors.New("malformed playlist payload")

// Catalogue lists every record of a remote music catalogue.
type Catalogue interface {
	AllMusics(ctx context.Context) ([]track.RawTrack, error)
}

// RemoteSource reads the playlist from the catalogue API.
type RemoteSource struct {
	catalogue Catalogue
}

// NewRemoteSource creates a source backed by catalogue.
func NewRemoteSource(catalogue Catalogue) *RemoteSource {
	return &RemoteSource{catalogue: catalogue}
}

func (s *RemoteSource) Name() string { return "graphql" }

// Load fetches all catalogue records.
func (s *RemoteSource) Load(ctx context.Context) ([]track.RawTrack, error) {
	raw, err := s.catalogue.AllMusics(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: catalogue returned no list", ErrMalformed)
	}
	return raw, nil
}

// BundledSource reads the bundled playlist file through the host bridge.
type BundledSource struct {
	bridge platform.Bridge
	path   string
}

// NewBundledSource creates a source reading path under the bridge's
// resource root.
func NewBundledSource(bridge platform.Bridge, path string) *BundledSource {
	if path == "" {
		path = DefaultPath
	}
	return &BundledSource{bridge: bridge, path: path}
}

func (s *BundledSource) Name() string { return "bundled-file" }

// Load reads and decodes the playlist file.
func (s *BundledSource) Load(ctx context.Context) ([]track.RawTrack, error) {
	if s.bridge == nil {
		return nil, platform.ErrNoBridge
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := s.bridge.LocalPath(s.path)
	if !s.bridge.FileExists(p) {
		return nil, fmt.Errorf("playlist file %s not found", p)
	}

	data, err := s.bridge.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// HTTPFileSource fetches the bundled playlist file from the web server that
// serves the player, for builds without a host bridge.
type HTTPFileSource struct {
	http *resty.Client
	path string
}

// NewHTTPFileSource creates a source fetching baseURL+path.
func NewHTTPFileSource(baseURL, path string, timeout time.Duration) *HTTPFileSource {
	if path == "" {
		path = DefaultPath
	}
	return &HTTPFileSource{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		path: path,
	}
}

func (s *HTTPFileSource) Name() string { return "http-file" }

// Load fetches and decodes the playlist file.
func (s *HTTPFileSource) Load(ctx context.Context) ([]track.RawTrack, error) {
	var raw []track.RawTrack
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&raw).
		Get(s.path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: status %d", s.path, resp.StatusCode())
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s is not a JSON array", ErrMalformed, s.path)
	}
	return raw, nil
}

// Close releases the underlying HTTP client.
func (s *HTTPFileSource) Close() error {
	return s.http.Close()
}

func decode(data []byte) ([]track.RawTrack, error) {
	var raw []track.RawTrack
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not a JSON array", ErrMalformed)
	}
	return raw, nil
}
