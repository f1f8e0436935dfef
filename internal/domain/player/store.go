// Package player provides the playback state machine and the service that
// loads playlists into it.
package player

import (
	"errors"
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mercury-player/merplayer/internal/domain/track"
)

// DefaultVolume is the volume of a fresh store.
const DefaultVolume = 0.7

// ErrUnknownSong is returned when selecting an id that is not in the playlist.
var ErrUnknownSong = errors.New("song not in playlist")

// Surface is the external element that renders audio. The store holds at
// most one and never creates or closes it.
type Surface interface {
	// SeekTo moves playback to seconds.
	SeekTo(seconds float64)
	// SetVolume applies a volume in [0, 1].
	SetVolume(volume float64)
}

// State is a point-in-time copy of the player state.
type State struct {
	CurrentSong *track.Enriched  `json:"currentSong"`
	Playlist    []track.Enriched `json:"playlist"`
	IsPlaying   bool             `json:"isPlaying"`
	CurrentTime float64          `json:"currentTime"`
	Duration    float64          `json:"duration"`
	Volume      float64          `json:"volume"`
}

// ChangeKind says which part of the state an action touched.
type ChangeKind int

const (
	ChangePlaylist ChangeKind = iota
	ChangeCurrentSong
	ChangeCover
	ChangePlayback
	// ChangeClock is a live clock or duration report from the surface.
	ChangeClock
	ChangeVolume
	// ChangeSeek is a requested jump in playback position.
	ChangeSeek
)

// Change describes one applied action.
type Change struct {
	Kind ChangeKind
	// SongID is set for ChangeCurrentSong and ChangeCover.
	SongID int
}

// Store is the process-wide player state. Actions are the only way to
// mutate it; it is safe for concurrent use. Listeners run synchronously
// after the action, outside the lock.
type Store struct {
	mu sync.RWMutex

	playlist    []track.Enriched
	current     int // index into playlist, -1 when there is no current song
	isPlaying   bool
	currentTime float64
	duration    float64
	volume      float64

	surface   Surface
	listeners []func(Change)
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		current: -1,
		volume:  DefaultVolume,
	}
}

// OnChange registers fn to be called after every action that changed state.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(c)
	}
}

// Initialize replaces the playlist wholesale. Tracks are deduplicated by id
// (first wins) and default-filled. The first track becomes current and
// playback is paused.
func (s *Store) Initialize(tracks []track.Enriched) {
	playlist, warnings := track.Dedup(tracks, func(e track.Enriched) int { return e.ID })
	for _, w := range warnings {
		log.Warn().Err(w).Msg("Dropped track on initialize")
	}
	for i := range playlist {
		playlist[i].Track = playlist[i].Track.WithDefaults()
	}

	s.mu.Lock()
	s.playlist = playlist
	s.current = -1
	if len(playlist) > 0 {
		s.current = 0
	}
	s.isPlaying = false
	s.currentTime = 0
	s.duration = 0
	s.mu.Unlock()

	log.Info().Int("tracks", len(playlist)).Msg("Player initialized")
	s.notify(Change{Kind: ChangePlaylist})
}

// SelectSong makes the track with id current and starts playback.
func (s *Store) SelectSong(id int) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrUnknownSong
	}
	s.current = idx
	s.isPlaying = true
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCurrentSong, SongID: id})
	return nil
}

// NextSong advances to the following track, wrapping at the end.
func (s *Store) NextSong() {
	s.step(1)
}

// PrevSong moves to the preceding track, wrapping at the start.
func (s *Store) PrevSong() {
	s.step(-1)
}

// step moves the current song by delta. Without a current song the first
// track is selected regardless of direction.
func (s *Store) step(delta int) {
	s.mu.Lock()
	n := len(s.playlist)
	if n == 0 {
		s.mu.Unlock()
		return
	}
	if s.current < 0 || s.current >= n {
		s.current = 0
	} else {
		s.current = (s.current + delta + n) % n
	}
	s.isPlaying = true
	id := s.playlist[s.current].ID
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCurrentSong, SongID: id})
}

// PlayPause toggles playback.
func (s *Store) PlayPause() {
	s.mu.Lock()
	s.isPlaying = !s.isPlaying
	s.mu.Unlock()

	s.notify(Change{Kind: ChangePlayback})
}

// SetPlaying sets playback explicitly, for surfaces reporting their own state.
func (s *Store) SetPlaying(playing bool) {
	s.mu.Lock()
	changed := s.isPlaying != playing
	s.isPlaying = playing
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangePlayback})
	}
}

// SetCurrentTime mirrors the live playback clock. No clamping.
func (s *Store) SetCurrentTime(t float64) {
	s.mu.Lock()
	s.currentTime = t
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeClock})
}

// SetDuration mirrors the duration reported by the surface. No clamping.
func (s *Store) SetDuration(d float64) {
	s.mu.Lock()
	s.duration = d
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeClock})
}

// SeekToTime clamps t into [0, duration], stores it and pushes it to the
// registered surface.
func (s *Store) SeekToTime(t float64) {
	s.mu.Lock()
	t = clamp(t, 0, s.duration)
	s.currentTime = t
	surface := s.surface
	s.mu.Unlock()

	if surface != nil {
		surface.SeekTo(t)
	}
	s.notify(Change{Kind: ChangeSeek})
}

// SetVolume clamps v into [0, 1], stores it and pushes it to the surface.
func (s *Store) SetVolume(v float64) {
	s.mu.Lock()
	v = clamp(v, 0, 1)
	s.volume = v
	surface := s.surface
	s.mu.Unlock()

	if surface != nil {
		surface.SetVolume(v)
	}
	s.notify(Change{Kind: ChangeVolume})
}

// RegisterSurface associates the playback surface. Later calls replace it;
// nil detaches.
func (s *Store) RegisterSurface(surface Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surface = surface
}

// UpdateCurrentSongCover sets the runtime cover of the current song. An
// empty cover keeps the previous one, or the placeholder if there was none.
func (s *Store) UpdateCurrentSongCover(cover string) {
	s.mu.Lock()
	if s.current < 0 {
		s.mu.Unlock()
		return
	}
	id := s.setCover(s.current, cover)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCover, SongID: id})
}

// UpdateCoverIfCurrent applies cover only while id is the current song.
func (s *Store) UpdateCoverIfCurrent(id int, cover string) bool {
	s.mu.Lock()
	if s.current < 0 || s.playlist[s.current].ID != id {
		s.mu.Unlock()
		return false
	}
	s.setCover(s.current, cover)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCover, SongID: id})
	return true
}

func (s *Store) setCover(idx int, cover string) int {
	song := &s.playlist[idx]
	switch {
	case cover != "":
		song.RuntimeCover = cover
	case song.RuntimeCover == "":
		song.RuntimeCover = track.Placeholder
	}
	log.Debug().
		Int("id", song.ID).
		Str("title", song.Title).
		Int("coverBytes", len(song.RuntimeCover)).
		Msg("Current song cover updated")
	return song.ID
}

// UpdateTrack replaces the playlist entry with e's id in place. It reports
// false when no entry has that id.
func (s *Store) UpdateTrack(e track.Enriched) bool {
	e.Track = e.Track.WithDefaults()

	s.mu.Lock()
	idx := s.indexOf(e.ID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.playlist[idx] = e
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCover, SongID: e.ID})
	return true
}

// CurrentSong returns a copy of the current song.
func (s *Store) CurrentSong() (track.Enriched, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current < 0 {
		return track.Enriched{}, false
	}
	return s.playlist[s.current], true
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Playlist:    make([]track.Enriched, len(s.playlist)),
		IsPlaying:   s.isPlaying,
		CurrentTime: s.currentTime,
		Duration:    s.duration,
		Volume:      s.volume,
	}
	copy(st.Playlist, s.playlist)
	if s.current >= 0 {
		cur := s.playlist[s.current]
		st.CurrentSong = &cur
	}
	return st
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(id int) int {
	for i := range s.playlist {
		if s.playlist[i].ID == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
