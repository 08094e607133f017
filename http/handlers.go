package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"propcast/apperr"
	"propcast/dataset"
	"propcast/db"
	"propcast/inference"
	"propcast/logger"
	"propcast/monitoring"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 250
	maxBodyBytes       = 1 << 20
)

// Predictor runs one prediction end to end. *inference.Engine satisfies it.
type Predictor interface {
	Infer(ctx context.Context, req inference.Request) (inference.Result, error)
}

// Handlers holds the dependencies of the API routes. Nil optional fields
// disable the routes that need them.
type Handlers struct {
	Predictor      Predictor
	ExperimentPath string
	GeometryPath   string
	PreviewLimit   int
	History        db.RecentLister
	Metrics        *monitoring.Metrics
	Log            *zap.Logger
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/experiment", h.handleTable(h.ExperimentPath))
	mux.HandleFunc("GET /api/geometry", h.handleTable(h.GeometryPath))
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	mux.HandleFunc("GET /api/predictions/recent", h.handleRecent)
}

func (h *Handlers) log() *zap.Logger { return logger.OrNop(h.Log) }

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "Backend is running"})
}

// handleTable serves the first PreviewLimit rows of a CSV file, re-read per request.
func (h *Handlers) handleTable(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := h.PreviewLimit
		if limit <= 0 {
			limit = 250
		}
		table, err := dataset.ReadTable(path, limit)
		if err != nil {
			h.fail(w, r, apperr.E(apperr.Internal, "read table", err))
			return
		}
		records := table.Records
		if records == nil {
			records = []dataset.Record{}
		}
		respondJSON(w, records)
	}
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	req, err := decodePredictRequest(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.Predictor.Infer(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, result)
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.Metrics == nil {
		writeError(w, http.StatusNotImplemented, "metrics are disabled", apperr.Internal.String())
		return
	}
	respondJSON(w, h.Metrics.Snapshot())
}

func (h *Handlers) handleRecent(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, http.StatusNotImplemented, "prediction history is not available for this sink", apperr.Internal.String())
		return
	}

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(w, r, apperr.Invalid("recent predictions", "limit", "must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	logs, err := h.History.Recent(r.Context(), limit)
	if err != nil {
		h.fail(w, r, apperr.E(apperr.Persistence, "recent predictions", err))
		return
	}
	if logs == nil {
		logs = []db.PredictionLog{}
	}
	respondJSON(w, logs)
}

// fail writes err with the status of its kind. Validation messages are
// returned verbatim; server-side failures are logged in full.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Stringer("kind", kind),
			zap.Error(err),
		}
		if start := GetStartTime(r.Context()); !start.IsZero() {
			fields = append(fields, zap.Duration("elapsed", time.Since(start)))
		}
		h.log().Error("request failed", fields...)
	}
	writeError(w, status, err.Error(), kind.String())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "kind": kind})
}
