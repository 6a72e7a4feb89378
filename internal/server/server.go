package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvcrn/bggeo-token-refresh/internal/auth"
	"github.com/dvcrn/bggeo-token-refresh/internal/event"
	"github.com/dvcrn/bggeo-token-refresh/internal/state"
)

const maxEventBytes = 64 << 10

// EventHandler dispatches decoded engine events.
type EventHandler interface {
	Handle(ctx context.Context, evt event.Event) bool
}

// Refresher exposes the refresh coordinator to admin endpoints.
type Refresher interface {
	Trigger(ctx context.Context) bool
	InProgress() bool
}

type Server struct {
	gate      EventHandler
	refresher Refresher
	store     state.Store
	adminKey  string
	mux       *http.ServeMux
	logger    zerolog.Logger
}

func New(logger zerolog.Logger, gate EventHandler, refresher Refresher, store state.Store, adminKey string) *Server {
	s := &Server{
		gate:      gate,
		refresher: refresher,
		store:     store,
		adminKey:  adminKey,
		mux:       http.NewServeMux(),
		logger:    logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/events", s.adminMiddleware(s.eventsHandler))
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/admin/config", s.adminMiddleware(s.configHandler))
	s.mux.HandleFunc("/admin/config/status", s.adminMiddleware(s.configStatusHandler))
	s.mux.HandleFunc("/admin/refresh", s.adminMiddleware(s.refreshHandler))
	s.mux.HandleFunc("/", s.notFoundHandler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.loggingMiddleware(s.mux).ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Debug().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("Incoming request")
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Dur("duration", time.Since(start)).
			Msg("Finished request")
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn().
		Str("method", r.Method).
		Str("uri", r.RequestURI).
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("Unhandled route")
	http.NotFound(w, r)
}

// eventRequest is the wire form of a broadcast forwarded by the engine
// bridge. Either the full action or the bare event name may be sent.
type eventRequest struct {
	Action       string `json:"action"`
	Event        string `json:"event"`
	Status       *int   `json:"status"`
	ResponseText string `json:"responseText"`
}

// eventsHandler handles POST /events
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes)).Decode(&req); err != nil {
		s.logger.Error().Err(err).Msg("Failed to parse event body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	name := req.Event
	if name == "" {
		name = req.Action
	}
	name = event.EventName(name)
	if name == "" {
		http.Error(w, "Missing required field: action or event", http.StatusBadRequest)
		return
	}

	// Matches the engine, which reports -1 when an HTTP event carries no status.
	status := -1
	if req.Status != nil {
		status = *req.Status
	}

	triggered := s.gate.Handle(r.Context(), event.Event{
		Name:         name,
		Status:       status,
		ResponseText: req.ResponseText,
	})

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"event":            name,
		"refreshTriggered": triggered,
	})
}

// configHandler handles GET and POST /admin/config
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.store.Get(r.Context())
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPost, http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		cfg, err := state.Decode(body)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to parse configuration body")
			http.Error(w, "Invalid configuration", http.StatusBadRequest)
			return
		}
		if err := state.SetSync(r.Context(), s.store, cfg); err != nil {
			s.logger.Error().Err(err).Msg("Failed to store configuration")
			http.Error(w, "Failed to store configuration", http.StatusInternalServerError)
			return
		}

		s.logger.Info().Msg("Configuration replaced via admin API")
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": "Configuration updated successfully",
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// configStatusHandler handles GET /admin/config/status
func (s *Server) configStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"refreshInProgress": s.refresher.InProgress(),
	}

	cfg, err := s.store.Get(r.Context())
	if err != nil {
		response["hasConfiguration"] = false
		response["error"] = err.Error()
		writeJSON(w, http.StatusOK, response)
		return
	}

	response["hasConfiguration"] = true
	response["refreshUrlSet"] = cfg.Extras.RefreshURL != ""
	if cfg.Extras.RefreshURL != "" {
		response["refreshUrl"] = auth.RedactURL(cfg.Extras.RefreshURL)
	}

	authz, ok := cfg.Authorization()
	response["hasAuthorization"] = ok
	if ok {
		response["authorizationPreview"] = auth.Preview(authz)
	}

	if tok := cfg.Extras.Token; tok != nil {
		response["hasRefreshToken"] = tok.RefreshToken != ""
		if tok.LastUpdate > 0 {
			response["lastUpdate"] = tok.LastUpdate
		}
		if exp, ok := auth.AccessTokenExpiry(tok.AccessToken); ok {
			minutesUntilExpiry := int64(time.Until(exp) / time.Minute)
			response["expiresAt"] = exp.UnixMilli()
			response["minutesUntilExpiry"] = minutesUntilExpiry
			response["isExpired"] = minutesUntilExpiry <= 0
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// refreshHandler handles POST /admin/refresh
func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !s.refresher.Trigger(r.Context()) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "skipped",
			"message": "Refresh already in progress",
		})
		return
	}

	s.logger.Info().Msg("🔄 Token refresh forced via admin API")
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Refresh started",
	})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, state.ErrNotFound) {
		http.Error(w, "No configuration stored", http.StatusNotFound)
		return
	}
	s.logger.Error().Err(err).Msg("Failed to read configuration")
	http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
