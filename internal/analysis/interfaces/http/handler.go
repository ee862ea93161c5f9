package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	analysisapp "metrology-cloud/internal/analysis/application"
	analysis "metrology-cloud/internal/analysis/domain"
	"metrology-cloud/internal/audit"
	"metrology-cloud/internal/auth"
)

// Handler provides point analysis HTTP endpoints.
type Handler struct {
	service  *analysisapp.Service
	resolver auth.EmployeeResolver
	auditor  audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *analysisapp.Service, resolver auth.EmployeeResolver, auditor audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("analysis handler: nil service")
	}
	return &Handler{service: service, resolver: resolver, auditor: auditor}, nil
}

// Register mounts the analysis routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/analysis", h.handleAnalysis)
}

type recordRequest struct {
	PointID     int64    `json:"point_id"`
	Uncertainty *float64 `json:"uncertainty,omitempty"`
	Trend       string   `json:"trend,omitempty"`
	Outcome     string   `json:"outcome"`
	Notes       string   `json:"notes,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRecord(w, r)
	case http.MethodGet:
		h.handleHistory(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	var createdAt *time.Time
	if req.CreatedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.CreatedAt)
		if err != nil {
			http.Error(w, "created_at must be RFC3339", http.StatusBadRequest)
			return
		}
		utc := parsed.UTC()
		createdAt = &utc
	}

	// The analyst is the authenticated caller when a matching employee
	// record exists.
	var analystID *int64
	if h.resolver != nil {
		if badge := auth.BadgeFromContext(r.Context()); badge != "" {
			if employee, resolveErr := h.resolver.ResolveBadge(r.Context(), badge); resolveErr == nil {
				analystID = &employee.ID
			}
		}
	}

	result, err := h.service.Record(r.Context(), analysisapp.RecordInput{
		PointID:     req.PointID,
		Uncertainty: req.Uncertainty,
		Trend:       req.Trend,
		Outcome:     req.Outcome,
		Notes:       req.Notes,
		AnalystID:   analystID,
		CreatedAt:   createdAt,
	})
	if err != nil {
		respondAnalysisError(w, err)
		return
	}
	h.writeAudit(r, "analysis.record", "point_analysis", strconv.FormatInt(result.ID, 10))
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	pointID, err := strconv.ParseInt(r.URL.Query().Get("point_id"), 10, 64)
	if err != nil || pointID < 1 {
		http.Error(w, "point_id is required", http.StatusBadRequest)
		return
	}
	results, err := h.service.History(r.Context(), pointID)
	if err != nil {
		respondAnalysisError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) writeAudit(r *http.Request, action, resourceType, resourceID string) {
	if h.auditor == nil {
		return
	}
	entry := audit.Entry{
		Actor:        auth.BadgeFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	_ = h.auditor.Log(r.Context(), entry)
}

func respondAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrInvalidOutcome):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, analysis.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
