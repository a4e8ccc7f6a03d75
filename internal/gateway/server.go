// Package gateway exposes rooms over HTTP and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/Cheese-CardDuel/internal/archive"
	"github.com/park285/Cheese-CardDuel/internal/msgcat"
	"github.com/park285/Cheese-CardDuel/internal/room"
)

// Headers set by the auth proxy in front of the server.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
)

type Options struct {
	Addr           string
	AllowedOrigins []string
	// WriteTimeout bounds one frame write to a client.
	WriteTimeout time.Duration
	PingInterval time.Duration
	Logger       *zap.Logger

	// AllowQueryIdentity accepts ?user=&name= when the proxy headers are
	// missing. Local development only.
	AllowQueryIdentity bool
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type Server struct {
	rooms   *room.Manager
	archive archive.Repository
	msgs    *msgcat.Catalog
	opts    Options
	log     *zap.Logger

	http *http.Server

	mu    sync.Mutex
	conns map[string]*conn
}

func New(rooms *room.Manager, repo archive.Repository, msgs *msgcat.Catalog, o Options) *Server {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	s := &Server{
		rooms:   rooms,
		archive: repo,
		msgs:    msgs,
		opts:    o,
		log:     o.Logger,
		conns:   make(map[string]*conn),
	}
	s.http = &http.Server{
		Addr:              o.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/matches/{id}", s.handleMatch).Methods(http.MethodGet)
	r.HandleFunc("/players/{id}/matches", s.handlePlayerMatches).Methods(http.MethodGet)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", HeaderUserID, HeaderUserName},
		AllowCredentials: true,
	}).Handler(r)
}

func (s *Server) ListenAndServe() error {
	s.log.Info("gateway_listen", zap.String("addr", s.opts.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and closes live WebSocket connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.mu.Lock()
	live := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		live = append(live, c)
	}
	s.mu.Unlock()
	for _, c := range live {
		c.close(websocket.StatusGoingAway, "server shutdown")
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rooms": s.rooms.Len()})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "archive disabled"})
		return
	}
	rec, err := s.archive.GetMatch(r.Context(), id)
	if errors.Is(err, archive.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "match not found"})
		return
	}
	if err != nil {
		s.log.Warn("match_lookup_failed", zap.String("match_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type matchSummary struct {
	MatchID    string    `json:"match_id"`
	RoomID     string    `json:"room_id"`
	Players    [2]string `json:"players"`
	Winner     string    `json:"winner,omitempty"`
	Reason     string    `json:"reason"`
	Commits    int       `json:"commits"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// handlePlayerMatches lists a player's archived matches, newest first.
func (s *Server) handlePlayerMatches(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "archive disabled"})
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	recs, err := s.archive.ListByPlayer(r.Context(), id, limit)
	if err != nil {
		s.log.Warn("history_lookup_failed", zap.String("player_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	out := make([]matchSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, matchSummary{
			MatchID:    rec.MatchID,
			RoomID:     rec.RoomID,
			Players:    rec.Players,
			Winner:     rec.Winner,
			Reason:     rec.Reason,
			Commits:    len(rec.Commits),
			DurationMS: rec.Duration().Milliseconds(),
			FinishedAt: rec.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"player_id": id, "matches": out})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, name := identify(r, s.opts.AllowQueryIdentity)
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}
	wsc, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: len(s.opts.AllowedOrigins) == 0,
		OriginPatterns:     originPatterns(s.opts.AllowedOrigins),
		CompressionMode:    websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.log.Warn("ws_accept_failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	c := newConn(s, wsc, userID, name)
	s.track(c)
	defer s.untrack(c)

	// r.Context() ends once the handler returns, so the connection gets its own.
	if err := c.run(context.Background()); err != nil {
		s.log.Debug("ws_closed", zap.String("conn_id", c.id), zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// identify reads the user from proxy headers. Query params are only
// consulted when allowQuery is set and the proxy sent no user id.
func identify(r *http.Request, allowQuery bool) (userID, name string) {
	userID = strings.TrimSpace(r.Header.Get(HeaderUserID))
	name = strings.TrimSpace(r.Header.Get(HeaderUserName))
	if userID == "" && allowQuery {
		userID = strings.TrimSpace(r.URL.Query().Get("user"))
		if name == "" {
			name = strings.TrimSpace(r.URL.Query().Get("name"))
		}
	}
	if name == "" {
		name = userID
	}
	return userID, name
}

// originPatterns turns CORS origins ("https://app.example.com") into the
// host patterns websocket.Accept matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
