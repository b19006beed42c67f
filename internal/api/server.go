// Package api exposes the read and trigger endpoints over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/agenticlead/agenticlead/internal/model"
	"github.com/agenticlead/agenticlead/internal/pipeline"
	"github.com/agenticlead/agenticlead/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	store  store.Store
	driver *pipeline.Driver
}

func NewServer(s store.Store, d *pipeline.Driver) *Server {
	return &Server{store: s, driver: d}
}

// Router builds the chi router with the full endpoint set.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/structured", s.handleListStructured)
	r.Get("/structured/{id}", s.handleGetStructured)
	r.Post("/captures", s.handleCreateCapture)
	r.Post("/pipeline/run", s.handleRunPipeline)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetStructured(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid id"))
		return
	}

	rec, err := s.store.GetStructured(r.Context(), id)
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, eris.Errorf("structured record %d not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListStructured(w http.ResponseWriter, r *http.Request) {
	filter := store.StructuredFilter{}
	q := r.URL.Query()

	if v := q.Get("reviewed"); v != "" {
		reviewed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.New("invalid reviewed parameter"))
			return
		}
		filter.Reviewed = &reviewed
	}
	if v := q.Get("status"); v != "" {
		filter.Status = model.ExtractionStatus(v)
	}
	filter.Limit = intParam(q.Get("limit"))
	filter.Offset = intParam(q.Get("offset"))

	recs, err := s.store.ListStructured(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []model.StructuredRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleCreateCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID    string   `json:"agent_id"`
		Text       string   `json:"text"`
		Latitude   *float64 `json:"latitude"`
		Longitude  *float64 `json:"longitude"`
		MessageRef *int64   `json:"message_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, eris.New("text is required"))
		return
	}

	id, err := s.store.SaveRawCapture(r.Context(), req.AgentID, req.Text, req.MessageRef, req.Latitude, req.Longitude)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	zap.L().Info("api: capture stored", zap.Int64("raw_id", id), zap.String("agent_id", req.AgentID))
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "status": "stored"})
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	result := s.driver.Run(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

func intParam(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
