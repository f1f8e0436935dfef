// Package socketio provides the Socket.io server that connects browser
// clients to the player store. A connected browser can also act as the
// playback surface: it renders audio and reports time back.
package socketio

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/mercury-player/merplayer/internal/domain/player"
	"github.com/mercury-player/merplayer/internal/domain/track"
)

// DefaultDebounce is the broadcast coalescing window.
const DefaultDebounce = 50 * time.Millisecond

// Reloader re-runs playlist loading, optionally clearing the metadata cache.
type Reloader interface {
	Reload(ctx context.Context, clearCache bool) error
}

// SongView is a playlist entry as sent to clients.
type SongView struct {
	track.Enriched
	DisplayCover string `json:"displayCover"`
}

// StatePayload is the body of a pushState event. The playlist travels
// separately in pushQueue.
type StatePayload struct {
	CurrentSong *SongView `json:"currentSong"`
	IsPlaying   bool      `json:"isPlaying"`
	CurrentTime float64   `json:"currentTime"`
	Duration    float64   `json:"duration"`
	Volume      float64   `json:"volume"`
}

// Server handles Socket.io connections and events.
type Server struct {
	io        *socket.Server
	store     *player.Store
	reloader  Reloader
	limiter   *ConnectionLimiter
	debouncer *BroadcastDebouncer
	debounce  time.Duration

	mu        sync.RWMutex
	clients   map[string]*socket.Socket
	lastState []byte
	// seeked forces the next state broadcast through the clock-only filter.
	seeked atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithReloader enables the reload event.
func WithReloader(r Reloader) ServerOption {
	return func(s *Server) {
		s.reloader = r
	}
}

// WithMaxRemote caps concurrent non-loopback clients. 0 disables the cap.
func WithMaxRemote(n int) ServerOption {
	return func(s *Server) {
		s.limiter = NewConnectionLimiter(n)
	}
}

// WithDebounce sets the broadcast coalescing window.
func WithDebounce(d time.Duration) ServerOption {
	return func(s *Server) {
		s.debounce = d
	}
}

// NewServer creates a new Socket.io server bound to store.
func NewServer(store *player.Store, opts ...ServerOption) (*Server, error) {
	sopts := socket.DefaultServerOptions()
	sopts.SetPingTimeout(20 * time.Second)
	sopts.SetPingInterval(25 * time.Second)
	sopts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := newServer(store, opts...)
	s.io = socket.NewServer(nil, sopts)
	s.debouncer = NewBroadcastDebouncer(s.debounce, s.BroadcastState, s.BroadcastQueue)

	store.OnChange(s.onChange)

	s.setupHandlers()

	return s, nil
}

func newServer(store *player.Store, opts ...ServerOption) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:    store,
		limiter:  NewConnectionLimiter(0),
		debounce: DefaultDebounce,
		clients:  make(map[string]*socket.Socket),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) onChange(c player.Change) {
	if c.Kind == player.ChangeSeek {
		s.seeked.Store(true)
	}
	if s.debouncer != nil {
		s.debouncer.Trigger(c.Kind)
	}
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		address := client.Handshake().Address

		log.Info().Str("id", clientID).Str("address", address).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		if evicted := s.limiter.TryAdd(clientID, address); evicted != "" {
			s.evict(evicted)
		}

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushQueue(client)
			s.pushState(client)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			s.pushState(client)
		})

		client.On("getQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getQueue")
			s.pushQueue(client)
		})

		for event, handler := range s.commands() {
			event, handler := event, handler
			client.On(event, func(args ...any) {
				log.Debug().Str("id", clientID).Str("event", event).Interface("data", args).Msg("Command")
				handler(args...)
			})
		}
	})
}

// commands maps client events onto store actions.
func (s *Server) commands() map[string]func(args ...any) {
	return map[string]func(args ...any){
		"selectSong": func(args ...any) {
			id, ok := numberArg(args, "id")
			if !ok {
				log.Warn().Interface("data", args).Msg("selectSong without id")
				return
			}
			if err := s.store.SelectSong(int(id)); err != nil {
				log.Warn().Err(err).Int("id", int(id)).Msg("selectSong failed")
			}
		},
		"next": func(args ...any) { s.store.NextSong() },
		"prev": func(args ...any) { s.store.PrevSong() },
		// Sent by the rendering client when a song finishes.
		"ended":     func(args ...any) { s.store.NextSong() },
		"playPause": func(args ...any) { s.store.PlayPause() },
		"setPlaying": func(args ...any) {
			if playing, ok := boolArg(args, "value"); ok {
				s.store.SetPlaying(playing)
			}
		},
		"seek": func(args ...any) {
			if secs, ok := numberArg(args, "value"); ok {
				s.store.SeekToTime(secs)
			}
		},
		"volume": func(args ...any) {
			if v, ok := numberArg(args, "value"); ok {
				s.store.SetVolume(v)
			}
		},
		"currentTime": func(args ...any) {
			if secs, ok := numberArg(args, "value"); ok {
				s.store.SetCurrentTime(secs)
			}
		},
		"duration": func(args ...any) {
			if secs, ok := numberArg(args, "value"); ok {
				s.store.SetDuration(secs)
			}
		},
		"reload": func(args ...any) {
			clearCache, _ := boolArg(args, "clearCache")
			s.reload(clearCache)
		},
	}
}

func (s *Server) reload(clearCache bool) {
	if s.reloader == nil {
		log.Warn().Msg("Reload requested but no reloader configured")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.reloader.Reload(s.ctx, clearCache); err != nil {
			log.Error().Err(err).Bool("clearCache", clearCache).Msg("Reload failed")
			return
		}
		log.Info().Bool("clearCache", clearCache).Msg("Playlist reloaded")
	}()
}

func (s *Server) evict(clientID string) {
	s.mu.Lock()
	client, ok := s.clients[clientID]
	delete(s.clients, clientID)
	s.mu.Unlock()

	if ok {
		log.Info().Str("id", clientID).Msg("Evicting oldest remote client")
		client.Disconnect(true)
	}
}

// SeekTo implements player.Surface by asking clients to move playback.
func (s *Server) SeekTo(seconds float64) {
	s.io.Emit("seekTo", seconds)
}

// SetVolume implements player.Surface.
func (s *Server) SetVolume(volume float64) {
	s.io.Emit("setVolume", volume)
}

// pushState sends current state to a client.
func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", s.statePayload())
}

// pushQueue sends the playlist to a client.
func (s *Server) pushQueue(client *socket.Socket) {
	client.Emit("pushQueue", s.queuePayload())
}

// BroadcastState sends state to all connected clients. Broadcasts that
// differ from the previous one only in currentTime are skipped unless a
// seek happened since the last one; clients advance the clock locally.
func (s *Server) BroadcastState() {
	state := s.statePayload()
	if !s.shouldBroadcast(state) {
		return
	}

	s.io.Emit("pushState", state)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(state)
		s.mu.RLock()
		clientCount := len(s.clients)
		s.mu.RUnlock()
		log.Debug().RawJSON("state", data).Int("clients", clientCount).Msg("Broadcast state")
	}
}

// BroadcastQueue sends the playlist to all connected clients.
func (s *Server) BroadcastQueue() {
	s.io.Emit("pushQueue", s.queuePayload())
}

func (s *Server) shouldBroadcast(state StatePayload) bool {
	return s.stateChanged(state, s.seeked.Swap(false))
}

func (s *Server) stateChanged(state StatePayload, force bool) bool {
	state.CurrentTime = 0
	key, err := json.Marshal(state)
	if err != nil {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && bytes.Equal(key, s.lastState) {
		return false
	}
	s.lastState = key
	return true
}

func (s *Server) statePayload() StatePayload {
	return StateOf(s.store.Snapshot())
}

func (s *Server) queuePayload() []SongView {
	return QueueOf(s.store.Snapshot())
}

// StateOf builds the pushState body from a store snapshot.
func StateOf(snap player.State) StatePayload {
	out := StatePayload{
		IsPlaying:   snap.IsPlaying,
		CurrentTime: snap.CurrentTime,
		Duration:    snap.Duration,
		Volume:      snap.Volume,
	}
	if snap.CurrentSong != nil {
		v := viewOf(*snap.CurrentSong)
		out.CurrentSong = &v
	}
	return out
}

// QueueOf builds the pushQueue body from a store snapshot.
func QueueOf(snap player.State) []SongView {
	out := make([]SongView, len(snap.Playlist))
	for i, e := range snap.Playlist {
		out[i] = viewOf(e)
	}
	return out
}

func viewOf(e track.Enriched) SongView {
	return SongView{Enriched: e, DisplayCover: e.DisplayCover()}
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close stops pending broadcasts and reloads and closes the Socket.io server.
func (s *Server) Close() error {
	s.cancel()
	if s.debouncer != nil {
		s.debouncer.Stop()
	}
	s.wg.Wait()
	if s.io != nil {
		s.io.Close(nil)
	}
	return nil
}

// numberArg reads a number from the first event argument. Clients send
// either a bare number or an object carrying it under key.
func numberArg(args []any, key string) (float64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	switch v := args[0].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case map[string]any:
		if inner, ok := v[key]; ok {
			return numberArg([]any{inner}, key)
		}
	}
	return 0, false
}

func boolArg(args []any, key string) (bool, bool) {
	if len(args) == 0 {
		return false, false
	}
	switch v := args[0].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	case map[string]any:
		if inner, ok := v[key]; ok {
			return boolArg([]any{inner}, key)
		}
	}
	return false, false
}
