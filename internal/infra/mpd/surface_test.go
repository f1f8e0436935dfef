package mpd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mercury-player/merplayer/internal/domain/player"
	"github.com/mercury-player/merplayer/internal/domain/track"
)

// mockController implements Controller for testing.
type mockController struct {
	mu       sync.Mutex
	calls    []string
	played   []string
	seeks    []int
	volumes  []int
	status   map[string]string
	statusFn func() (map[string]string, error)
}

func (m *mockController) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockController) Status() (map[string]string, error) {
	m.record("status")
	if m.statusFn != nil {
		return m.statusFn()
	}
	return m.status, nil
}

func (m *mockController) PlayURI(uri string) error {
	m.record("play")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, uri)
	return nil
}

func (m *mockController) Pause(pause bool) error {
	if pause {
		m.record("pause")
	} else {
		m.record("resume")
	}
	return nil
}

func (m *mockController) Stop() error {
	m.record("stop")
	return nil
}

func (m *mockController) Seek(pos int) error {
	m.record("seek")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks = append(m.seeks, pos)
	return nil
}

func (m *mockController) SetVolume(vol int) error {
	m.record("volume")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes = append(m.volumes, vol)
	return nil
}

func (m *mockController) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func newTestStore() *player.Store {
	s := player.NewStore()
	s.Initialize([]track.Enriched{
		{Track: track.Track{ID: 1, URL: "/music/a.mp3"}},
		{Track: track.Track{ID: 2, URL: "http://cdn/b.mp3"}},
	})
	return s
}

func TestSurfaceFollowsStore(t *testing.T) {
	store := newTestStore()
	ctl := &mockController{}
	NewSurface(ctl, store, WithBaseURL("http://localhost:3001/")).Attach()

	store.PlayPause() // play song 1
	store.PlayPause() // pause
	store.PlayPause() // resume
	store.NextSong()  // play song 2

	want := []string{"play", "pause", "resume", "play"}
	got := ctl.Calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
	if ctl.played[0] != "http://localhost:3001/music/a.mp3" || ctl.played[1] != "http://cdn/b.mp3" {
		t.Errorf("played = %v", ctl.played)
	}

	store.Initialize(nil)
	if calls := ctl.Calls(); calls[len(calls)-1] != "stop" {
		t.Errorf("initialize should stop MPD, calls = %v", calls)
	}
}

func TestSurfaceSeekAndVolume(t *testing.T) {
	store := newTestStore()
	ctl := &mockController{}
	NewSurface(ctl, store).Attach()

	store.SetDuration(200)
	store.SeekToTime(61.6)
	store.SeekToTime(500)
	store.SetVolume(0.456)

	if len(ctl.seeks) != 2 || ctl.seeks[0] != 62 || ctl.seeks[1] != 200 {
		t.Errorf("seeks = %v", ctl.seeks)
	}
	if len(ctl.volumes) != 1 || ctl.volumes[0] != 46 {
		t.Errorf("volumes = %v", ctl.volumes)
	}
}

func TestSurfacePoll(t *testing.T) {
	store := newTestStore()
	ctl := &mockController{status: map[string]string{
		"state":    "play",
		"elapsed":  "12.5",
		"duration": "240.0",
	}}
	s := NewSurface(ctl, store)

	s.poll()
	st := store.Snapshot()
	if st.CurrentTime != 12.5 || st.Duration != 240 {
		t.Errorf("clock = %v / %v", st.CurrentTime, st.Duration)
	}

	ctl.status = map[string]string{"state": "stop", "elapsed": "99"}
	s.poll()
	if store.Snapshot().CurrentTime != 12.5 {
		t.Error("stopped MPD must not move the clock")
	}

	ctl.statusFn = func() (map[string]string, error) { return nil, errors.New("down") }
	s.poll()
}

func TestSurfaceAdvancesWhenSongEnds(t *testing.T) {
	store := newTestStore()
	ctl := &mockController{status: map[string]string{"state": "play"}}
	s := NewSurface(ctl, store)
	s.Attach()

	store.PlayPause()
	ctl.status = map[string]string{"state": "stop"}
	s.poll()

	cur, _ := store.CurrentSong()
	if cur.ID != 2 || !store.Snapshot().IsPlaying {
		t.Fatalf("expected song 2 playing, got id %d playing=%v", cur.ID, store.Snapshot().IsPlaying)
	}
	if len(ctl.played) != 2 || ctl.played[1] != "http://cdn/b.mp3" {
		t.Errorf("played = %v", ctl.played)
	}
}

func TestSurfaceStopWhilePausedDoesNotAdvance(t *testing.T) {
	store := newTestStore()
	ctl := &mockController{}
	s := NewSurface(ctl, store)
	s.Attach()

	store.PlayPause()
	store.PlayPause()
	ctl.status = map[string]string{"state": "stop"}
	s.poll()

	if cur, _ := store.CurrentSong(); cur.ID != 1 {
		t.Errorf("paused store should stay on song 1, got %d", cur.ID)
	}
	if len(ctl.played) != 1 {
		t.Errorf("played = %v", ctl.played)
	}

	// MPD lost the song, so resuming queues it again.
	store.PlayPause()
	if len(ctl.played) != 2 || ctl.played[1] != "/music/a.mp3" {
		t.Errorf("resume after stop should replay, played = %v", ctl.played)
	}
}

func TestSurfaceRunStops(t *testing.T) {
	store := newTestStore()
	ctl := &mockController{status: map[string]string{"state": "play", "elapsed": "1"}}
	s := NewSurface(ctl, store, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	if store.Snapshot().CurrentTime != 1 {
		t.Error("Run should have polled the clock")
	}
}
