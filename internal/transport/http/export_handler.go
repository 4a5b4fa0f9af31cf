package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apierrors "shelfstats/internal/errors"
	"shelfstats/internal/exporter"
)

// ExportHandler streams download artifacts for a session.
type ExportHandler struct {
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewExportHandler creates the export handler.
func NewExportHandler(logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *ExportHandler {
	return &ExportHandler{
		logger:       logger.With(slog.String("component", "export_handler")),
		errorHandler: errorHandler,
	}
}

// ExportCSV handles GET /api/sessions/{sessionID}/export. The download
// carries any genres merged by enrichment and re-imports losslessly.
func (h *ExportHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	table := session.Table()

	filename := fmt.Sprintf("library_%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := exporter.WriteCSV(w, table, exporter.CSVOptions{BOMPrefix: true}); err != nil {
		// Headers already sent, log and abort the stream.
		h.logger.ErrorContext(r.Context(), "csv export failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()))
	}
}

// ExportReport handles GET /api/sessions/{sessionID}/report.xlsx.
func (h *ExportHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	table := session.Table()

	filename := fmt.Sprintf("reading_report_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := exporter.WriteReport(w, table); err != nil {
		h.logger.ErrorContext(r.Context(), "xlsx report failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()))
	}
}
