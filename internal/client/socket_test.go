package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chesstrainer/pkg/wire"
)

func TestSocketURL(t *testing.T) {
	cases := []struct {
		in, path, want string
	}{
		{"http://localhost:4000", "/socket", "ws://localhost:4000/socket"},
		{"http://localhost:4000/", "/socket", "ws://localhost:4000/socket"},
		{"https://relay.example.com", "/socket", "wss://relay.example.com/socket"},
		{"ws://localhost:4000", "/socket", "ws://localhost:4000/socket"},
	}
	for _, c := range cases {
		if got := SocketURL(c.in, c.path); got != c.want {
			t.Fatalf("SocketURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRequestWithoutConnection(t *testing.T) {
	s := NewSocket("ws://localhost:1/socket")
	_, err := s.Request(context.Background(), wire.EventRoomCreate, wire.CreateRoomPayload{})
	if !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("expected ErrServerUnavailable, got %v", err)
	}
	if err := s.Emit(context.Background(), wire.EventGameResign, wire.ResignPayload{RoomID: "r"}); !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("expected ErrServerUnavailable on emit, got %v", err)
	}
}

func TestConnectRefused(t *testing.T) {
	s := NewSocket("ws://127.0.0.1:1/socket", WithAckTimeout(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Connect(ctx); !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("expected ErrServerUnavailable, got %v", err)
	}
	if s.Connected() {
		t.Fatalf("failed dial must not mark the socket connected")
	}
}

func TestProbeHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","timestamp":1}`))
	}))
	defer ts.Close()

	if err := ProbeHealth(ts.URL, 2*time.Second); err != nil {
		t.Fatalf("ProbeHealth: %v", err)
	}
}

func TestProbeHealthRejectsBadBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer ts.Close()

	if err := ProbeHealth(ts.URL, 2*time.Second); !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("expected ErrServerUnavailable, got %v", err)
	}
}

func TestProbeHealthUnreachable(t *testing.T) {
	if err := ProbeHealth("http://127.0.0.1:1", 500*time.Millisecond); !errors.Is(err, ErrServerUnavailable) {
		t.Fatalf("expected ErrServerUnavailable, got %v", err)
	}
}
