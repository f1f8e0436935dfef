package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		inner      http.HandlerFunc
		wantCode   int
		wantBody   string
		wantOrigin string
		wantCalled bool
	}{
		{
			name:   "json response",
			method: http.MethodGet,
			target: "/api/v1/getState",
			inner: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"isPlaying":false}`))
			},
			wantCode:   http.StatusOK,
			wantBody:   `{"isPlaying":false}`,
			wantOrigin: "*",
			wantCalled: true,
		},
		{
			name:   "error response",
			method: http.MethodPost,
			target: "/api/v1/reload",
			inner: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantCode:   http.StatusBadGateway,
			wantOrigin: "*",
			wantCalled: true,
		},
		{
			name:       "preflight answered",
			method:     http.MethodOptions,
			target:     "/api/v1/reload",
			wantCode:   http.StatusNoContent,
			wantOrigin: "*",
		},
		{
			name:   "socket preflight passes through",
			method: http.MethodOptions,
			target: "/socket.io/?EIO=4&transport=polling",
			inner: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			wantCode:   http.StatusOK,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if tt.inner != nil {
					tt.inner(w, r)
				}
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))

			if called != tt.wantCalled {
				t.Errorf("inner handler called = %v, want %v", called, tt.wantCalled)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestCorsPreflightHeaders(t *testing.T) {
	h := corsMiddleware(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/version", nil))

	want := map[string]string{
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
		"Access-Control-Max-Age":       "600",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
