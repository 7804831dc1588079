package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"chesstrainer/internal/config"
	"chesstrainer/internal/obslog"
	"chesstrainer/pkg/wire"
)

// Server exposes the relay over HTTP: a health probe and the websocket
// upgrade path. Browser origins are checked against the configured
// allow-list on upgrade.
type Server struct {
	cfg     config.ServerConfig
	handler *Handler
	httpSrv *http.Server
}

func NewServer(cfg config.ServerConfig, h *Handler) *Server {
	s := &Server{cfg: cfg, handler: h}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc(cfg.SocketPath, s.handleSocket)
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// HTTPHandler exposes the mux, for tests running over httptest.
func (s *Server) HTTPHandler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	obslog.L().Info("relay_listen",
		zap.String("addr", s.cfg.ListenAddr),
		zap.String("socket_path", s.cfg.SocketPath),
	)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(wire.HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		obslog.L().Warn("socket_accept", zap.Error(err))
		return
	}
	connID := uuid.NewString()
	defer ws.Close(websocket.StatusInternalError, "relay shutting down")

	s.handler.ServeConn(r.Context(), connID, ws)
	ws.Close(websocket.StatusNormalClosure, "")
}

// originAllowed mirrors the websocket origin patterns for the plain
// HTTP health endpoint.
func (s *Server) originAllowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, pattern := range s.cfg.AllowedOrigins {
		if ok, _ := filepath.Match(pattern, u.Host); ok {
			return true
		}
	}
	return false
}
