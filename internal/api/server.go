package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/dcctrl"
	"github.com/radiocore/datad/internal/metrics"
	"github.com/radiocore/datad/internal/radio"
	"github.com/radiocore/datad/internal/registry"
	"github.com/radiocore/datad/pkg/util"
)

// RequestSnapshot is the JSON shape of one outstanding NetworkRequest,
// for the requests inspection endpoint.
type RequestSnapshot struct {
	RequestID string `json:"request_id"`
	Slot      int    `json:"slot"`
	ApnType   string `json:"apn_type"`
	Priority  int    `json:"priority"`
	Executed  bool   `json:"executed"`
}

// SessionSnapshot is the JSON shape of one live DC-SM session, for the
// sessions inspection endpoint.
type SessionSnapshot struct {
	SessionID int    `json:"session_id"`
	Transport string `json:"transport"`
	State     string `json:"state"`
	Cid       int    `json:"cid"`
}

// SlotSource resolves the per-slot collaborators the API needs to read
// from, without the api package depending on internal/engine (which
// would import api for wiring and create a cycle).
type SlotSource interface {
	SlotController(slot int, transport radio.Transport) *dcctrl.Controller
	DataEnabled() bool
}

// SettingsSnapshot is the JSON shape of the Data-Enabled Settings gate.
type SettingsSnapshot struct {
	DataEnabled bool `json:"data_enabled"`
}

// Server is the debug/status HTTP surface: request/session inspection,
// outcome counters, and the live event websocket, behind a single
// shared bearer token.
type Server struct {
	log      *logrus.Entry
	auth     *TokenAuth
	hub      *Hub
	requests *registry.Registry
	metrics  *metrics.Counters
	slots    SlotSource

	router     *mux.Router
	httpServer *http.Server
}

// New builds a Server. addr is the listen address, e.g. ":7443".
func New(addr string, auth *TokenAuth, requests *registry.Registry, m *metrics.Counters, slots SlotSource) *Server {
	log := util.WithComponent("api")
	s := &Server{
		log:      log,
		auth:     auth,
		hub:      NewHub(log),
		requests: requests,
		metrics:  m,
		slots:    slots,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Hub exposes the event feed so dcctrl controllers can be wired as
// SetNotifier(server.Hub()).
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/slots/{slot}/requests", s.handleSlotRequests).Methods("GET")
	api.HandleFunc("/slots/{slot}/sessions", s.handleSlotSessions).Methods("GET")
	api.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	api.HandleFunc("/settings", s.handleSettings).Methods("GET")

	// The websocket handshake carries its token as a query parameter
	// since browsers cannot set an Authorization header on the upgrade
	// request; validated explicitly inside the handler instead of the
	// header-based middleware.
	s.router.HandleFunc("/ws/events", s.handleWS).Methods("GET")
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Debug("request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := bearerToken(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := s.auth.Validate(tok); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSlotRequests(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	infos := s.requests.ForSlot(slot)
	out := make([]RequestSnapshot, 0, len(infos))
	for _, info := range infos {
		out = append(out, RequestSnapshot{
			RequestID: info.Request.RequestID,
			Slot:      info.Request.Slot,
			ApnType:   info.ApnType.String(),
			Priority:  info.Priority,
			Executed:  info.Executed,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSlotSessions(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var out []SessionSnapshot
	for _, t := range []radio.Transport{radio.TransportWWAN, radio.TransportWLAN} {
		ctrl := s.slots.SlotController(slot, t)
		if ctrl == nil {
			continue
		}
		for _, sess := range ctrl.Sessions() {
			out = append(out, SessionSnapshot{
				SessionID: sess.ID(),
				Transport: sess.Transport().String(),
				State:     sess.State().String(),
				Cid:       sess.Cid(),
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SettingsSnapshot{DataEnabled: s.slots.DataEnabled()})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if err := s.auth.Validate(tok); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.hub.ServeWS(w, r)
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.WithField("addr", s.httpServer.Addr).Info("starting api server")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func slotParam(r *http.Request) (int, error) {
	raw := mux.Vars(r)["slot"]
	slot, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid slot %q", raw)
	}
	return slot, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
