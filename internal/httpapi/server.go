package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fellowship-tools/assembly/server/internal/assembly/service"
	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

type Dependencies struct {
	Logger     *log.Logger
	Addr       string
	Lifecycle  *service.Lifecycle
	Recorder   *service.Recorder
	Events     store.EventStore
	Attendance store.AttendanceStore
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	lifecycle  *service.Lifecycle
	recorder   *service.Recorder
	events     store.EventStore
	attendance store.AttendanceStore
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:     d.Logger,
		mux:        mux,
		lifecycle:  d.Lifecycle,
		recorder:   d.Recorder,
		events:     d.Events,
		attendance: d.Attendance,
	}

	mux.HandleFunc("POST /v1/events", s.handleCreateEvent)
	mux.HandleFunc("GET /v1/events/{id}", s.handleGetEvent)
	mux.HandleFunc("DELETE /v1/events/{id}", s.handleDeleteEvent)
	mux.HandleFunc("POST /v1/events/{id}/transition", s.handleTransition)
	mux.HandleFunc("GET /v1/events/{id}/instances", s.handleListInstances)
	mux.HandleFunc("GET /v1/events/{id}/attendance", s.handleListAttendance)
	mux.HandleFunc("POST /v1/events/{id}/attendance", s.handleMark)
	mux.HandleFunc("POST /v1/events/{id}/attendance/bulk", s.handleBulkMark)
	mux.HandleFunc("POST /v1/events/{id}/attendance/absent", s.handleMarkAbsent)
	mux.HandleFunc("GET /v1/events/{id}/attendance/{user}/history", s.handleHistory)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var in service.CreateEventInput
	if !decodeJSON(w, r, &in) {
		return
	}

	ev, err := s.lifecycle.Create(r.Context(), in, actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	deleted, err := s.lifecycle.CancelOrDelete(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		Target types.EventStatus `json:"target"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ev, err := s.lifecycle.Transition(r.Context(), r.PathValue("id"), req.Target, actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := s.events.ListByParent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

func (s *Server) handleMark(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID string `json:"user_id"`
		service.MarkInput
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}

	rec, err := s.recorder.Mark(r.Context(), r.PathValue("id"), req.UserID, req.MarkInput, actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleBulkMark(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req struct {
		Rows []service.BulkRow `json:"rows"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.recorder.BulkMark(r.Context(), r.PathValue("id"), req.Rows, actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMarkAbsent(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	created, err := s.recorder.MarkUnmarkedAsAbsent(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": created})
}

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	ev, err := s.events.Get(r.Context(), eventID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	records, err := s.attendance.ListByEvent(r.Context(), eventID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Records []*types.AttendanceRecord `json:"records"`
		Summary types.AttendanceSummary   `json:"summary"`
	}{Records: records, Summary: ev.Summary})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.recorder.History(r.Context(), r.PathValue("id"), r.PathValue("user"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor extracts the caller's authorization context from the gateway-supplied
// headers. A missing or malformed identity ends the request.
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, err := actorFromHeaders(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "bad_actor", err.Error())
		return types.Actor{}, false
	}
	return actor, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}
