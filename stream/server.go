// Package stream serves the engine's event feed over websocket and a small
// JSON status surface.
package stream

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"liquidity-engine/engine"
	"liquidity-engine/infrastructure/logger"
	"liquidity-engine/market"
)

// Config controls the stream server.
type Config struct {
	// AuthToken, when set, is required as a bearer token or ?token= query
	// parameter on every route.
	AuthToken string `yaml:"auth_token"`
	// EventBuffer is the per-session event queue depth.
	EventBuffer int `yaml:"event_buffer"`
}

// DefaultConfig returns an open server with a 64-event session buffer.
func DefaultConfig() Config {
	return Config{EventBuffer: 64}
}

// Server exposes one engine over HTTP.
type Server struct {
	cfg      Config
	eng      *engine.Engine
	hub      *hub
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewServer wires a server to an engine and starts pumping its events into
// the session hub.
func NewServer(cfg Config, eng *engine.Engine, log *logger.Logger) *Server {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:      cfg,
		eng:      eng,
		hub:      newHub(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log,
	}
	go s.pump()
	return s
}

// Routes returns the server's handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/status", s.withAuth(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/ws/events", s.withAuth(http.HandlerFunc(s.handleEvents)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *Server) pump() {
	for ev := range s.eng.Events().Subscribe(256) {
		s.hub.broadcast(ev)
	}
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.cfg.AuthToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type restingView struct {
	ID    market.OrderID    `json:"id"`
	Limit market.PriceLimit `json:"limit"`
}

type statusResponse struct {
	Paused      bool            `json:"paused"`
	Reserves    market.Reserves `json:"reserves"`
	Bid         *restingView    `json:"bid,omitempty"`
	Ask         *restingView    `json:"ask,omitempty"`
	TotalShares uint64          `json:"totalShares"`
	LastTrigger time.Time       `json:"lastTrigger"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	bid, ask := s.eng.RestingOrders()
	resp := statusResponse{
		Paused:      s.eng.Paused(),
		Reserves:    s.eng.Reserves(),
		TotalShares: s.eng.TotalShares(),
		LastTrigger: s.eng.LastTrigger(),
	}
	if bid != nil {
		resp.Bid = &restingView{ID: bid.ID, Limit: bid.Limit}
	}
	if ask != nil {
		resp.Ask = &restingView{ID: ask.ID, Limit: ask.Limit}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.subscribe(s.cfg.EventBuffer)
	defer s.hub.unsubscribe(sub)

	s.log.Debug("event stream session opened", zap.String("remote", r.RemoteAddr))
	for ev := range sub.ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
