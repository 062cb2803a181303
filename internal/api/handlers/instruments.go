package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/internal/marketdata"
	"github.com/wonny/vigil/internal/monitor"
	"github.com/wonny/vigil/internal/runlog"
	"github.com/wonny/vigil/pkg/logger"
)

// Runner executes the decision pipeline for one instrument.
type Runner interface {
	Execute(ctx context.Context, inst *instrument.Instrument, opts monitor.RunOptions) (*runlog.Record, error)
}

// QuoteSource provides current price snapshots.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*marketdata.Quote, error)
}

// InstrumentHandler handles instrument-related API endpoints
// ⭐ SSOT: 종목 API 핸들러는 이 구조체에서만
type InstrumentHandler struct {
	instruments *instrument.Repository
	runs        *runlog.Repository
	runner      Runner
	quotes      QuoteSource
	logger      *logger.Logger
}

// NewInstrumentHandler creates a new instrument handler
func NewInstrumentHandler(
	instruments *instrument.Repository,
	runs *runlog.Repository,
	runner Runner,
	quotes QuoteSource,
	log *logger.Logger,
) *InstrumentHandler {
	return &InstrumentHandler{
		instruments: instruments,
		runs:        runs,
		runner:      runner,
		quotes:      quotes,
		logger:      log,
	}
}

// List returns all configured instruments
// GET /api/instruments
func (h *InstrumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.instruments.List(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list instruments")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve instruments")
		return
	}

	respondJSON(w, http.StatusOK, list)
}

// InstrumentDetail bundles an instrument with its last run.
type InstrumentDetail struct {
	Instrument *instrument.Instrument `json:"instrument"`
	LastRun    *runlog.Record         `json:"last_run,omitempty"`
}

// Get returns one instrument with its latest run record
// GET /api/instruments/{id}
func (h *InstrumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	inst, err := h.instruments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, instrument.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Instrument not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get instrument")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve instrument")
		return
	}

	lastRun, err := h.runs.Latest(ctx, id)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to load latest run record")
	}

	respondJSON(w, http.StatusOK, InstrumentDetail{
		Instrument: inst,
		LastRun:    lastRun,
	})
}

// ListRuns returns recent run records for an instrument
// GET /api/instruments/{id}/runs?limit=20
func (h *InstrumentHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected 1-200)")
			return
		}
		limit = n
	}

	records, err := h.runs.ListRecent(ctx, id, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list run records")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve run records")
		return
	}

	respondJSON(w, http.StatusOK, records)
}

// GetQuote returns the current price snapshot for an instrument
// GET /api/instruments/{id}/quote
func (h *InstrumentHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	inst, err := h.instruments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, instrument.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Instrument not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get instrument")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve instrument")
		return
	}

	quote, err := h.quotes.Quote(ctx, inst.Symbol)
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch quote")
		respondError(w, http.StatusBadGateway, "Failed to fetch quote")
		return
	}

	respondJSON(w, http.StatusOK, quote)
}

// TriggerRunResponse represents a manual run response
type TriggerRunResponse struct {
	Status string         `json:"status"`
	Record *runlog.Record `json:"record,omitempty"`
}

// TriggerRun runs the pipeline for an instrument immediately. The
// schedule gate is bypassed and the outcome is logged even when the
// run skips, so the caller always gets a record back.
// POST /api/instruments/{id}/run
func (h *InstrumentHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	inst, err := h.instruments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, instrument.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Instrument not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get instrument")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve instrument")
		return
	}

	h.logger.WithField("symbol", inst.Symbol).Info("Manual run triggered")

	record, err := h.runner.Execute(ctx, inst, monitor.ManualRun)
	if err != nil {
		h.logger.WithError(err).Error("Manual run failed")
		respondError(w, http.StatusInternalServerError, "Failed to execute run")
		return
	}

	respondJSON(w, http.StatusOK, TriggerRunResponse{
		Status: "success",
		Record: record,
	})
}

// Helper functions

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid instrument id")
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
