package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jmckenna/carecircle/internal/auth"
	"github.com/jmckenna/carecircle/internal/export"
)

type ExportHandler struct {
	exporter *export.Exporter
	logger   *slog.Logger
}

func NewExportHandler(exporter *export.Exporter, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{exporter: exporter, logger: logger}
}

// Run handles POST /api/recipients/{id}/export
func (h *ExportHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.exporter.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "export storage not configured"})
		return
	}

	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	result, err := h.exporter.Run(r.Context(), auth.Principal(r.Context()), recipientID, req.Passphrase)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
