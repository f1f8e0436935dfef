package main

import (
	"encoding/json"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mercury-player/merplayer/internal/domain/player"
	"github.com/mercury-player/merplayer/internal/infra/cache"
	"github.com/mercury-player/merplayer/internal/transport/socketio"
	"github.com/mercury-player/merplayer/internal/version"
)

// api holds what the HTTP handlers need.
type api struct {
	store     *player.Store
	reloader  socketio.Reloader
	socket    http.Handler // nil disables /socket.io/
	staticDir string
	// mpdPing is set when MPD is the playback surface.
	mpdPing    func() error
	cacheStats cache.StatsReporter
}

// stateResponse is the /api/v1/getState body: pushState plus the queue.
type stateResponse struct {
	socketio.StatePayload
	Playlist []socketio.SongView `json:"playlist"`
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()

	if a.socket != nil {
		mux.Handle("/socket.io/", a.socket)
	}
	mux.HandleFunc("/health", a.health)
	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.GetInfo())
	})
	mux.HandleFunc("/api/v1/getState", a.getState)
	mux.HandleFunc("/api/v1/reload", a.reload)

	if a.staticDir != "" {
		log.Info().Str("dir", a.staticDir).Msg("Serving static files")
		mux.Handle("/", spaHandler(a.staticDir))
	}

	return corsMiddleware(mux)
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status": "ok",
		"tracks": len(a.store.Snapshot().Playlist),
	}
	if a.cacheStats != nil {
		if stats, err := a.cacheStats.Stats(r.Context()); err != nil {
			log.Debug().Err(err).Msg("Cache stats unavailable")
		} else {
			body["cache"] = stats
		}
	}
	status := http.StatusOK
	if a.mpdPing != nil {
		if err := a.mpdPing(); err != nil {
			body["status"] = "error"
			body["mpd"] = "disconnected"
			status = http.StatusServiceUnavailable
		} else {
			body["mpd"] = "connected"
		}
	}
	writeJSON(w, status, body)
}

func (a *api) getState(w http.ResponseWriter, r *http.Request) {
	snap := a.store.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{
		StatePayload: socketio.StateOf(snap),
		Playlist:     socketio.QueueOf(snap),
	})
}

func (a *api) reload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.reloader == nil {
		http.Error(w, "reload unavailable", http.StatusServiceUnavailable)
		return
	}

	clearCache := false
	if v := r.URL.Query().Get("clearCache"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "clearCache must be a boolean", http.StatusBadRequest)
			return
		}
		clearCache = b
	}

	if err := a.reloader.Reload(r.Context(), clearCache); err != nil {
		log.Error().Err(err).Bool("clearCache", clearCache).Msg("Reload via API failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tracks": len(a.store.Snapshot().Playlist),
	})
}

// spaHandler serves files from dir and falls back to index.html for unknown
// paths so client-side routes resolve.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.ServeFile(w, r, index)
			return
		}
		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(name); err != nil || info.IsDir() {
			http.ServeFile(w, r, index)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}
