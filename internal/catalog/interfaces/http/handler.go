package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"metrology-cloud/internal/audit"
	"metrology-cloud/internal/auth"
	catalogapp "metrology-cloud/internal/catalog/application"
	catalog "metrology-cloud/internal/catalog/domain"
	catalogrepo "metrology-cloud/internal/catalog/infrastructure/postgres"
)

// InstrumentDelegate handles per-instrument subroutes owned by other
// modules (history feeds, reports).
type InstrumentDelegate interface {
	ServeInstrument(w http.ResponseWriter, r *http.Request, instrumentID int64, sub string)
}

// Handler provides instrument register and reference data endpoints.
type Handler struct {
	service    *catalogapp.Service
	references *catalogrepo.ReferenceRepository
	delegate   InstrumentDelegate
	auditor    audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *catalogapp.Service, references *catalogrepo.ReferenceRepository, delegate InstrumentDelegate, auditor audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("catalog handler: nil service")
	}
	return &Handler{service: service, references: references, delegate: delegate, auditor: auditor}, nil
}

// Register mounts the catalog routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/instruments", h.handleInstruments)
	mux.HandleFunc("/api/v1/instruments/", h.handleInstrumentSub)
	mux.HandleFunc("/api/v1/points/", h.handlePoint)
	mux.HandleFunc("/api/v1/catalog/types", h.handleTypes)
	mux.HandleFunc("/api/v1/catalog/sectors", h.handleSectors)
	mux.HandleFunc("/api/v1/catalog/laboratories", h.handleLaboratories)
	mux.HandleFunc("/api/v1/catalog/employees", h.handleEmployees)
}

type instrumentRequest struct {
	Code            string  `json:"code"`
	Description     string  `json:"description"`
	TypeID          *int64  `json:"type_id,omitempty"`
	Controlled      bool    `json:"controlled"`
	Manufacturer    string  `json:"manufacturer,omitempty"`
	Model           string  `json:"model,omitempty"`
	Status          string  `json:"status,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	AcquiredAt      *string `json:"acquired_at,omitempty"`
	PeriodicityDays int     `json:"periodicity_days"`
}

func (req instrumentRequest) toDomain() (*catalog.Instrument, error) {
	inst := &catalog.Instrument{
		Code:            strings.TrimSpace(req.Code),
		Description:     req.Description,
		TypeID:          req.TypeID,
		Controlled:      req.Controlled,
		Manufacturer:    req.Manufacturer,
		Model:           req.Model,
		Status:          catalog.InstrumentStatus(req.Status),
		Notes:           req.Notes,
		PeriodicityDays: req.PeriodicityDays,
	}
	if req.AcquiredAt != nil && *req.AcquiredAt != "" {
		parsed, err := time.Parse("2006-01-02", *req.AcquiredAt)
		if err != nil {
			return nil, errors.New("acquired_at must be YYYY-MM-DD")
		}
		utc := parsed.UTC()
		inst.AcquiredAt = &utc
	}
	return inst, nil
}

func (h *Handler) handleInstruments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listInstruments(w, r)
	case http.MethodPost:
		h.createInstrument(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listInstruments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := catalog.InstrumentFilter{
		Status:  catalog.InstrumentStatus(query.Get("status")),
		Search:  query.Get("search"),
		Page:    intQuery(query.Get("page"), 1),
		PerPage: intQuery(query.Get("per_page"), 50),
	}
	if v := query.Get("type_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "type_id must be an integer", http.StatusBadRequest)
			return
		}
		filter.TypeID = &id
	}
	if v := query.Get("controlled"); v != "" {
		controlled := v == "true"
		filter.Controlled = &controlled
	}

	instruments, total, err := h.service.ListInstruments(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"instruments": instruments,
		"total":       total,
	})
}

func (h *Handler) createInstrument(w http.ResponseWriter, r *http.Request) {
	var req instrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	inst, err := req.toDomain()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.service.CreateInstrument(r.Context(), inst); err != nil {
		respondCatalogError(w, err)
		return
	}
	h.writeAudit(r, "catalog.instrument.create", "instrument", strconv.FormatInt(inst.ID, 10))
	respondJSON(w, http.StatusCreated, inst)
}

func (h *Handler) handleInstrumentSub(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/instruments/")
	parts := strings.SplitN(path, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		h.handleInstrumentByID(w, r, id)
		return
	}
	switch parts[1] {
	case "points":
		h.handleInstrumentPoints(w, r, id)
	default:
		if h.delegate != nil {
			h.delegate.ServeInstrument(w, r, id, parts[1])
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleInstrumentByID(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		inst, points, err := h.service.GetInstrument(r.Context(), id)
		if err != nil {
			respondCatalogError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"instrument": inst,
			"points":     points,
		})
	case http.MethodPut:
		var req instrumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		inst, err := req.toDomain()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		inst.ID = id
		if err := h.service.UpdateInstrument(r.Context(), inst); err != nil {
			respondCatalogError(w, err)
			return
		}
		h.writeAudit(r, "catalog.instrument.update", "instrument", strconv.FormatInt(id, 10))
		respondJSON(w, http.StatusOK, inst)
	case http.MethodDelete:
		if err := h.service.DeleteInstrument(r.Context(), id); err != nil {
			respondCatalogError(w, err)
			return
		}
		h.writeAudit(r, "catalog.instrument.delete", "instrument", strconv.FormatInt(id, 10))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type pointRequest struct {
	Sequence       int      `json:"sequence"`
	Description    string   `json:"description,omitempty"`
	Nominal        *float64 `json:"nominal,omitempty"`
	Minimum        *float64 `json:"minimum,omitempty"`
	Maximum        *float64 `json:"maximum,omitempty"`
	Unit           string   `json:"unit"`
	TolerancePlus  *float64 `json:"tolerance_plus,omitempty"`
	ToleranceMinus *float64 `json:"tolerance_minus,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	Active         bool     `json:"active"`
}

func (h *Handler) handleInstrumentPoints(w http.ResponseWriter, r *http.Request, instrumentID int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req pointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	point := &catalog.CalibrationPoint{
		InstrumentID:   instrumentID,
		Sequence:       req.Sequence,
		Description:    req.Description,
		Nominal:        req.Nominal,
		Minimum:        req.Minimum,
		Maximum:        req.Maximum,
		Unit:           req.Unit,
		TolerancePlus:  req.TolerancePlus,
		ToleranceMinus: req.ToleranceMinus,
		Notes:          req.Notes,
		Active:         req.Active,
	}
	if err := h.service.AddPoint(r.Context(), point); err != nil {
		respondCatalogError(w, err)
		return
	}
	h.writeAudit(r, "catalog.point.create", "calibration_point", strconv.FormatInt(point.ID, 10))
	respondJSON(w, http.StatusCreated, point)
}

func (h *Handler) handlePoint(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/points/")
	id, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req pointRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		current, err := h.service.GetPoint(r.Context(), id)
		if err != nil {
			respondCatalogError(w, err)
			return
		}
		current.Sequence = req.Sequence
		current.Description = req.Description
		current.Nominal = req.Nominal
		current.Minimum = req.Minimum
		current.Maximum = req.Maximum
		current.Unit = req.Unit
		current.TolerancePlus = req.TolerancePlus
		current.ToleranceMinus = req.ToleranceMinus
		current.Notes = req.Notes
		current.Active = req.Active
		if err := h.service.UpdatePoint(r.Context(), current); err != nil {
			respondCatalogError(w, err)
			return
		}
		h.writeAudit(r, "catalog.point.update", "calibration_point", strconv.FormatInt(id, 10))
		respondJSON(w, http.StatusOK, current)
	case http.MethodDelete:
		if err := h.service.DeletePoint(r.Context(), id); err != nil {
			respondCatalogError(w, err)
			return
		}
		h.writeAudit(r, "catalog.point.delete", "calibration_point", strconv.FormatInt(id, 10))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleTypes(w http.ResponseWriter, r *http.Request) {
	if h.references == nil {
		http.Error(w, "reference data unavailable", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		types, err := h.references.ListTypes(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, types)
	case http.MethodPost:
		var t catalog.InstrumentType
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(t.Description) == "" {
			http.Error(w, "description is required", http.StatusBadRequest)
			return
		}
		if err := h.references.CreateType(r.Context(), &t); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusCreated, t)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSectors(w http.ResponseWriter, r *http.Request) {
	if h.references == nil {
		http.Error(w, "reference data unavailable", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sectors, err := h.references.ListSectors(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, sectors)
}

func (h *Handler) handleLaboratories(w http.ResponseWriter, r *http.Request) {
	if h.references == nil {
		http.Error(w, "reference data unavailable", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		labs, err := h.references.ListLaboratories(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, labs)
	case http.MethodPost:
		var lab catalog.Laboratory
		if err := json.NewDecoder(r.Body).Decode(&lab); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(lab.Name) == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		lab.Active = true
		if err := h.references.CreateLaboratory(r.Context(), &lab); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusCreated, lab)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleEmployees(w http.ResponseWriter, r *http.Request) {
	if h.references == nil {
		http.Error(w, "reference data unavailable", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		employees, err := h.references.ListEmployees(r.Context(), r.URL.Query().Get("active") == "true")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, employees)
	case http.MethodPost:
		var employee catalog.Employee
		if err := json.NewDecoder(r.Body).Decode(&employee); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(employee.Badge) == "" || strings.TrimSpace(employee.Name) == "" {
			http.Error(w, "badge and name are required", http.StatusBadRequest)
			return
		}
		employee.Active = true
		if err := h.references.CreateEmployee(r.Context(), &employee); err != nil {
			respondCatalogError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, employee)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
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

func respondCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, catalog.ErrDuplicateCode), errors.Is(err, catalog.ErrDuplicateSequence):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, catalog.ErrInstrumentWithoutPoints), errors.Is(err, catalog.ErrLastActivePoint):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
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
