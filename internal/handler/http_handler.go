package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/gosight/campaignsync/internal/storage"
	"github.com/gosight/campaignsync/internal/syncer"
)

// SyncRunner is the part of the sync runner exposed over HTTP
type SyncRunner interface {
	Start(ctx context.Context) error
	Running() bool
	LastRun(ctx context.Context) (storage.SyncRun, error)
}

type HTTPHandler struct {
	runner SyncRunner
	// syncs outlive the request that triggered them
	baseCtx context.Context
}

func NewHTTPHandler(baseCtx context.Context, runner SyncRunner) *HTTPHandler {
	return &HTTPHandler{
		runner:  runner,
		baseCtx: baseCtx,
	}
}

type SyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type StatusResponse struct {
	Running bool `json:"running"`
}

// NewRouter wires the sync API routes
func NewRouter(h *HTTPHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(CORSMiddleware)

	r.Get("/health", HealthCheck)
	r.Route("/v1/sync", func(r chi.Router) {
		r.Post("/", h.HandleTriggerSync)
		r.Get("/status", h.HandleStatus)
		r.Get("/last", h.HandleLastRun)
	})
	return r
}

func (h *HTTPHandler) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	err := h.runner.Start(h.baseCtx)
	if errors.Is(err, syncer.ErrSyncInProgress) {
		writeJSON(w, http.StatusConflict, SyncResponse{Success: false, Error: "Sync already in progress"})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to start sync")
		writeJSON(w, http.StatusInternalServerError, SyncResponse{Success: false, Error: "Failed to start sync"})
		return
	}

	writeJSON(w, http.StatusAccepted, SyncResponse{Success: true, Message: "Sync started"})
}

func (h *HTTPHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Running: h.runner.Running()})
}

func (h *HTTPHandler) HandleLastRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runner.LastRun(r.Context())
	if errors.Is(err, storage.ErrNoRuns) {
		writeJSON(w, http.StatusNotFound, SyncResponse{Success: false, Error: "No sync has run yet"})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load last sync run")
		writeJSON(w, http.StatusInternalServerError, SyncResponse{Success: false, Error: "Failed to load last sync run"})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
