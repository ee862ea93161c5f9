package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"metrology-cloud/internal/audit"
	"metrology-cloud/internal/auth"
	custodyapp "metrology-cloud/internal/custody/application"
	custody "metrology-cloud/internal/custody/domain"
)

const timeLayout = time.RFC3339

// Handler provides custody and lab transition HTTP endpoints.
type Handler struct {
	service  *custodyapp.Service
	resolver auth.EmployeeResolver
	auditor  audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *custodyapp.Service, resolver auth.EmployeeResolver, auditor audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("custody handler: nil service")
	}
	return &Handler{service: service, resolver: resolver, auditor: auditor}, nil
}

// Register mounts the custody routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/custody/assign", h.handleAssign)
	mux.HandleFunc("/api/v1/custody/return", h.handleReturn)
	mux.HandleFunc("/api/v1/custody", h.handleList)
	mux.HandleFunc("/api/v1/lab/ship", h.handleShip)
	mux.HandleFunc("/api/v1/lab/receive", h.handleReceive)
}

type assignRequest struct {
	InstrumentID int64  `json:"instrument_id"`
	EmployeeID   int64  `json:"employee_id"`
	StartAt      string `json:"start_at,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Signature    string `json:"signature,omitempty"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	startAt, err := parseOptionalTime(req.StartAt)
	if err != nil {
		http.Error(w, "start_at must be RFC3339", http.StatusBadRequest)
		return
	}

	record, err := h.service.Assign(r.Context(), custodyapp.AssignInput{
		InstrumentID: req.InstrumentID,
		EmployeeID:   req.EmployeeID,
		StartAt:      startAt,
		Notes:        req.Notes,
		Signature:    req.Signature,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	h.writeAudit(r, "custody.assign", "custody_record", strconv.FormatInt(record.ID, 10))
	respondJSON(w, http.StatusCreated, record)
}

type returnRequest struct {
	InstrumentID int64  `json:"instrument_id"`
	EmployeeID   int64  `json:"employee_id"`
	ReturnAt     string `json:"return_at,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	returnAt, err := parseOptionalTime(req.ReturnAt)
	if err != nil {
		http.Error(w, "return_at must be RFC3339", http.StatusBadRequest)
		return
	}

	record, err := h.service.Return(r.Context(), custodyapp.ReturnInput{
		InstrumentID: req.InstrumentID,
		EmployeeID:   req.EmployeeID,
		ReturnAt:     returnAt,
		Notes:        req.Notes,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	h.writeAudit(r, "custody.return", "custody_record", strconv.FormatInt(record.ID, 10))
	respondJSON(w, http.StatusOK, record)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query()
	filter := custody.CustodyFilter{
		Status:  query.Get("status"),
		Search:  query.Get("search"),
		Page:    intQuery(query.Get("page"), 1),
		PerPage: intQuery(query.Get("per_page"), 20),
	}
	if filter.Status != "" && filter.Status != "open" && filter.Status != "closed" {
		http.Error(w, "status must be open or closed", http.StatusBadRequest)
		return
	}

	records, total, err := h.service.ListCustody(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
	})
}

type shipRequest struct {
	InstrumentID int64  `json:"instrument_id"`
	LaboratoryID *int64 `json:"laboratory_id,omitempty"`
	LabName      string `json:"lab_name,omitempty"`
	SentAt       string `json:"sent_at,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

func (h *Handler) handleShip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req shipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sentAt, err := parseOptionalTime(req.SentAt)
	if err != nil {
		http.Error(w, "sent_at must be RFC3339", http.StatusBadRequest)
		return
	}

	event, err := h.service.Ship(r.Context(), custodyapp.ShipInput{
		InstrumentID: req.InstrumentID,
		LaboratoryID: req.LaboratoryID,
		LabName:      req.LabName,
		SentAt:       sentAt,
		Notes:        req.Notes,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	h.writeAudit(r, "lab.ship", "status_event", strconv.FormatInt(event.ID, 10))
	respondJSON(w, http.StatusCreated, event)
}

type receiveRequest struct {
	InstrumentID    int64  `json:"instrument_id"`
	LaboratoryID    *int64 `json:"laboratory_id,omitempty"`
	LabName         string `json:"lab_name,omitempty"`
	CertificateLink string `json:"certificate_link"`
	ReceivedAt      string `json:"received_at,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req receiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	receivedAt, err := parseOptionalTime(req.ReceivedAt)
	if err != nil {
		http.Error(w, "received_at must be RFC3339", http.StatusBadRequest)
		return
	}

	// The receiver is the authenticated caller when a matching employee
	// record exists; receipts without one are still accepted.
	var receiverID *int64
	if h.resolver != nil {
		if badge := auth.BadgeFromContext(r.Context()); badge != "" {
			if employee, resolveErr := h.resolver.ResolveBadge(r.Context(), badge); resolveErr == nil {
				receiverID = &employee.ID
			}
		}
	}

	event, cert, err := h.service.Receive(r.Context(), custodyapp.ReceiveInput{
		InstrumentID:    req.InstrumentID,
		LaboratoryID:    req.LaboratoryID,
		LabName:         req.LabName,
		CertificateLink: req.CertificateLink,
		ReceivedAt:      receivedAt,
		ReceiverID:      receiverID,
		Notes:           req.Notes,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	h.writeAudit(r, "lab.receive", "status_event", strconv.FormatInt(event.ID, 10))
	respondJSON(w, http.StatusCreated, map[string]any{
		"event":       event,
		"certificate": cert,
	})
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

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, custody.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, custody.ErrMissingCertificateLink):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, custody.ErrInstrumentUnavailable),
		errors.Is(err, custody.ErrNoOpenCustody),
		errors.Is(err, custody.ErrCustodyMismatch),
		errors.Is(err, custody.ErrAlreadyAtLab),
		errors.Is(err, custody.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseOptionalTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return nil, err
	}
	utc := parsed.UTC()
	return &utc, nil
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
