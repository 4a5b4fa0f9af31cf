package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "shelfstats/internal/errors"
	"shelfstats/internal/services"
)

// EnrichHandler exposes the enrichment run lifecycle for a session.
type EnrichHandler struct {
	enrichment   *services.EnrichmentService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewEnrichHandler creates the enrichment handler.
func NewEnrichHandler(svc *services.EnrichmentService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *EnrichHandler {
	return &EnrichHandler{
		enrichment:   svc,
		logger:       logger.With(slog.String("component", "enrich_handler")),
		errorHandler: errorHandler,
	}
}

// Start handles POST /api/sessions/{sessionID}/enrich.
func (h *EnrichHandler) Start(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	run, err := h.enrichment.Start(session)
	if err != nil {
		if errors.Is(err, services.ErrEnrichmentRunning) {
			h.errorHandler.HandleError(w, r, apierrors.ErrEnrichmentBusy)
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, run.Status())
}

// Status handles GET /api/sessions/{sessionID}/enrich.
func (h *EnrichHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	status, err := h.enrichment.Status(session.ID)
	if err != nil {
		if errors.Is(err, services.ErrNoEnrichment) {
			h.errorHandler.HandleError(w, r, apierrors.ErrNoEnrichmentRun)
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

// Cancel handles DELETE /api/sessions/{sessionID}/enrich.
func (h *EnrichHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())

	status, err := h.enrichment.Cancel(session.ID)
	if err != nil {
		if errors.Is(err, services.ErrNoEnrichment) {
			h.errorHandler.HandleError(w, r, apierrors.ErrNoEnrichmentRun)
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}
