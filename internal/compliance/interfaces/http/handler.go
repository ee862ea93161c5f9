package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	complianceapp "metrology-cloud/internal/compliance/application"
	compliancerepo "metrology-cloud/internal/compliance/infrastructure/postgres"
	complianceexport "metrology-cloud/internal/compliance/interfaces"
	custody "metrology-cloud/internal/custody/domain"
	"metrology-cloud/internal/observability/metrics"
)

// Handler provides derived-state read endpoints and exports.
type Handler struct {
	service *complianceapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *complianceapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("compliance handler: nil service")
	}
	return &Handler{service: service}, nil
}

// Register mounts the compliance routes that have fixed paths. Per-instrument
// subroutes are dispatched by the instrument handler via ServeInstrument.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/instruments/status", h.handleStatusList)
	mux.HandleFunc("/api/v1/instruments/available", h.handleAvailable)
	mux.HandleFunc("/api/v1/dashboard/indicators", h.handleDashboard)
	mux.HandleFunc("/api/v1/exports/instruments.xlsx", h.handleExportXLSX)
}

// ServeInstrument handles the per-instrument read subroutes: "history",
// "last-holder" and "report.pdf".
func (h *Handler) ServeInstrument(w http.ResponseWriter, r *http.Request, instrumentID int64, sub string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch sub {
	case "history":
		h.handleHistory(w, r, instrumentID)
	case "last-holder":
		h.handleLastHolder(w, r, instrumentID)
	case "report.pdf":
		h.handleReportPDF(w, r, instrumentID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleStatusList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	filter := compliancerepo.StatusFilter{
		ControlledOnly: query.Get("controlled") == "true",
		ActiveOnly:     query.Get("active") == "true",
		Search:         query.Get("search"),
	}
	if page := intQuery(query.Get("page"), 0); page > 0 {
		filter.Page = page
		filter.PerPage = intQuery(query.Get("per_page"), 50)
	}

	statuses, total, err := h.service.ListStatus(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"instruments": statuses,
		"total":       total,
	})
}

func (h *Handler) handleAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	available, err := h.service.Available(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, available)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	counts, err := h.service.Dashboard(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, instrumentID int64) {
	feed, err := h.service.History(r.Context(), instrumentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, feed)
}

func (h *Handler) handleLastHolder(w http.ResponseWriter, r *http.Request, instrumentID int64) {
	holder, err := h.service.LastHolder(r.Context(), instrumentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if holder == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, holder)
}

func (h *Handler) handleReportPDF(w http.ResponseWriter, r *http.Request, instrumentID int64) {
	started := time.Now()
	status, err := h.service.GetStatus(r.Context(), instrumentID)
	if errors.Is(err, custody.ErrNotFound) {
		http.Error(w, "instrument not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	feed, err := h.service.History(r.Context(), instrumentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	events := make([]custody.StatusEvent, 0, len(feed))
	for _, entry := range feed {
		events = append(events, entry.Event)
	}

	data, err := complianceexport.BuildInstrumentPDF(status, events)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("pdf", metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", status.Code+"-report.pdf"))
	_, _ = w.Write(data)
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	started := time.Now()
	filter := compliancerepo.StatusFilter{
		ControlledOnly: r.URL.Query().Get("controlled") == "true",
	}
	statuses, _, err := h.service.ListStatus(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := complianceexport.BuildStatusXLSX(statuses, time.Now().UTC())
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(started))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport("xlsx", metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="instruments.xlsx"`)
	_, _ = w.Write(data)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func intQuery(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
