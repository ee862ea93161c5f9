package importer

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"metrology-cloud/internal/audit"
	"metrology-cloud/internal/auth"
)

const maxImportBytes = 16 << 20

// Handler accepts legacy spreadsheet uploads.
type Handler struct {
	importer *Importer
	auditor  audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(importer *Importer, auditor audit.Logger) (*Handler, error) {
	if importer == nil {
		return nil, errors.New("importer handler: nil importer")
	}
	return &Handler{importer: importer, auditor: auditor}, nil
}

// Register mounts the import route.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/custody/import", h.handleImport)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		http.Error(w, "expected multipart form", http.StatusBadRequest)
		return
	}
	kind, err := ParseKind(r.FormValue("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxImportBytes))
	if err != nil {
		http.Error(w, "reading upload failed", http.StatusBadRequest)
		return
	}

	summary, err := h.importer.Import(r.Context(), kind, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeAudit(r, summary)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(summary)
}

func (h *Handler) writeAudit(r *http.Request, summary *Summary) {
	if h.auditor == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]int{
		"total":    summary.Total,
		"imported": summary.Imported,
		"failed":   summary.Failed,
	})
	entry := audit.Entry{
		Actor:         auth.BadgeFromContext(r.Context()),
		Role:          string(auth.RoleFromContext(r.Context())),
		Action:        "custody.import." + string(summary.Kind),
		ResourceType:  "import_batch",
		Metadata:      metadata,
		PayloadDigest: audit.DigestJSON(metadata),
		IP:            audit.ClientIP(r),
		UserAgent:     r.UserAgent(),
	}
	_ = h.auditor.Log(r.Context(), entry)
}
