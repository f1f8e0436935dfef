package mpd

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mercury-player/merplayer/internal/domain/player"
)

// DefaultPollInterval is how often the playback clock is read from MPD.
const DefaultPollInterval = time.Second

// Controller is the subset of MPD commands the surface needs.
type Controller interface {
	Status() (map[string]string, error)
	PlayURI(uri string) error
	Pause(pause bool) error
	Stop() error
	Seek(pos int) error
	SetVolume(vol int) error
}

// Surface renders the player's current song through MPD and feeds MPD's
// clock back into the store.
type Surface struct {
	ctl      Controller
	store    *player.Store
	baseURL  string
	interval time.Duration

	mu     sync.Mutex
	loaded string // uri MPD currently has queued
}

// SurfaceOption configures a Surface.
type SurfaceOption func(*Surface)

// WithBaseURL resolves root-relative track URLs against url before handing
// them to MPD.
func WithBaseURL(url string) SurfaceOption {
	return func(s *Surface) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithPollInterval sets how often Run reads the clock.
func WithPollInterval(d time.Duration) SurfaceOption {
	return func(s *Surface) {
		s.interval = d
	}
}

// NewSurface creates an MPD surface for store.
func NewSurface(ctl Controller, store *player.Store, opts ...SurfaceOption) *Surface {
	s := &Surface{
		ctl:      ctl,
		store:    store,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach registers the surface with the store and starts following its
// song and playback changes.
func (s *Surface) Attach() {
	s.store.RegisterSurface(s)
	s.store.OnChange(s.onChange)
}

// SeekTo implements player.Surface.
func (s *Surface) SeekTo(seconds float64) {
	if err := s.ctl.Seek(int(math.Round(seconds))); err != nil {
		log.Warn().Err(err).Float64("seconds", seconds).Msg("MPD seek failed")
	}
}

// SetVolume implements player.Surface.
func (s *Surface) SetVolume(volume float64) {
	if err := s.ctl.SetVolume(int(math.Round(volume * 100))); err != nil {
		log.Warn().Err(err).Float64("volume", volume).Msg("MPD volume change failed")
	}
}

func (s *Surface) onChange(c player.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Kind {
	case player.ChangePlaylist:
		s.loaded = ""
		if err := s.ctl.Stop(); err != nil {
			log.Warn().Err(err).Msg("MPD stop failed")
		}
	case player.ChangeCurrentSong, player.ChangePlayback:
		s.sync()
	}
}

// sync makes MPD play or pause the store's current song. Callers hold s.mu.
func (s *Surface) sync() {
	st := s.store.Snapshot()
	if st.CurrentSong == nil {
		return
	}

	uri := s.resolve(st.CurrentSong.URL)
	if !st.IsPlaying {
		if s.loaded != "" {
			if err := s.ctl.Pause(true); err != nil {
				log.Warn().Err(err).Msg("MPD pause failed")
			}
		}
		return
	}

	if uri == s.loaded {
		if err := s.ctl.Pause(false); err != nil {
			log.Warn().Err(err).Msg("MPD resume failed")
		}
		return
	}

	if uri == "" {
		log.Warn().Int("id", st.CurrentSong.ID).Msg("Current song has no URL, nothing to play")
		return
	}
	if err := s.ctl.PlayURI(uri); err != nil {
		log.Warn().Err(err).Str("uri", uri).Msg("MPD play failed")
		return
	}
	s.loaded = uri
	log.Info().Int("id", st.CurrentSong.ID).Str("uri", uri).Msg("MPD playing")
}

func (s *Surface) resolve(url string) string {
	if s.baseURL != "" && strings.HasPrefix(url, "/") && !strings.HasPrefix(url, "//") {
		return s.baseURL + url
	}
	return url
}

// Run reads MPD's elapsed time and duration into the store until ctx ends.
func (s *Surface) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll reads MPD's status. MPD stopping on its own while the store plays
// means the song ran out, so the store moves to the next one.
func (s *Surface) poll() {
	// Held across Status so a concurrent sync cannot be mistaken for an end.
	s.mu.Lock()
	status, err := s.ctl.Status()
	ended := false
	if err == nil && status["state"] == "stop" {
		ended = s.loaded != ""
		s.loaded = ""
	}
	s.mu.Unlock()

	if err != nil {
		log.Debug().Err(err).Msg("MPD status unavailable")
		return
	}
	if status["state"] == "stop" {
		if ended && s.store.Snapshot().IsPlaying {
			log.Info().Msg("MPD finished the song, advancing")
			s.store.NextSong()
		}
		return
	}

	if d, err := strconv.ParseFloat(status["duration"], 64); err == nil {
		if d != s.store.Snapshot().Duration {
			s.store.SetDuration(d)
		}
	}
	if e, err := strconv.ParseFloat(status["elapsed"], 64); err == nil {
		s.store.SetCurrentTime(e)
	}
}
