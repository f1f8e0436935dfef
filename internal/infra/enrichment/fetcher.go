package enrichment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mercury-player/merplayer/internal/platform"
)

// DefaultUserAgent identifies the player to audio hosts.
const DefaultUserAgent = "MerPlayer/1.0 (+https://github.com/mercury-player/merplayer)"

// HTTPFetcher downloads audio over HTTP(S).
type HTTPFetcher struct {
	baseURL    string
	userAgent  string
	maxSize    int64
	httpClient *http.Client
}

// HTTPOption is a functional option for configuring the HTTP fetcher
type HTTPOption func(*HTTPFetcher)

// WithBaseURL resolves root-relative locators such as "/music/a.mp3"
// against url.
func WithBaseURL(url string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.baseURL = strings.TrimRight(url, "/")
	}
}

// WithUserAgent sets a custom User-Agent header
func WithUserAgent(ua string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithMaxSize caps the number of bytes read per response.
func WithMaxSize(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxSize = n
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.httpClient = client
	}
}

// NewHTTPFetcher creates a new HTTP audio fetcher. Timeouts come from the
// caller's context, so the default client sets none.
func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		userAgent:  DefaultUserAgent,
		maxSize:    MaxAudioSize,
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch downloads locator. On the primary attempt a non-2xx status is an
// error; the fallback attempt logs it and still returns the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string, mode Mode) ([]byte, error) {
	url := f.resolve(locator)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	if mode == ModeFallback {
		req.Header.Set("Accept", "audio/*")
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if mode == ModePrimary {
			return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		}
		log.Warn().
			Str("url", url).
			Int("status", resp.StatusCode).
			Msg("Fallback fetch returned error status, parsing body anyway")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	log.Debug().
		Str("url", url).
		Str("mode", mode.String()).
		Int("size", len(data)).
		Msg("Fetched audio")

	return data, nil
}

func (f *HTTPFetcher) resolve(locator string) string {
	if f.baseURL != "" && strings.HasPrefix(locator, "/") && !strings.HasPrefix(locator, "//") {
		return f.baseURL + locator
	}
	return locator
}

// LocalFetcher reads audio bundled with a desktop build.
type LocalFetcher struct {
	bridge platform.Bridge
}

// NewLocalFetcher creates a fetcher backed by bridge. A nil bridge makes
// every fetch fail with platform.ErrNoBridge.
func NewLocalFetcher(bridge platform.Bridge) *LocalFetcher {
	return &LocalFetcher{bridge: bridge}
}

// Fetch reads the file that locator maps to under the resource root.
// Both attempts behave the same.
func (f *LocalFetcher) Fetch(ctx context.Context, locator string, _ Mode) ([]byte, error) {
	if f.bridge == nil {
		return nil, platform.ErrNoBridge
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.bridge.ReadFile(f.bridge.LocalPath(locator))
}
