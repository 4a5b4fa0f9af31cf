// Package http contains the chi handlers for the REST API. Handlers parse
// and validate requests, delegate to the services layer, and render JSON or
// RFC 7807 problems.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "shelfstats/internal/errors"
	"shelfstats/internal/infrastructure"
	"shelfstats/internal/library"
	"shelfstats/internal/services"
)

// maxUploadBytes caps the accepted export file size.
const maxUploadBytes = 32 << 20

type sessionCtxKey struct{}

// SessionFromContext returns the session loaded by SessionCtx.
func SessionFromContext(ctx context.Context) *services.Session {
	session, _ := ctx.Value(sessionCtxKey{}).(*services.Session)
	return session
}

// SessionHandler manages upload and lifecycle of library sessions.
type SessionHandler struct {
	store        *services.SessionStore
	insights     *services.InsightsService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewSessionHandler creates the session handler.
func NewSessionHandler(store *services.SessionStore, insights *services.InsightsService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *SessionHandler {
	return &SessionHandler{
		store:        store,
		insights:     insights,
		logger:       logger.With(slog.String("component", "session_handler")),
		errorHandler: errorHandler,
	}
}

// SessionCtx loads the session named by the {sessionID} URL parameter.
func (h *SessionHandler) SessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		if id == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("sessionID", "Session id is required"))
			return
		}
		session, err := h.store.Get(id)
		if err != nil {
			if errors.Is(err, services.ErrSessionNotFound) {
				h.errorHandler.HandleError(w, r, apierrors.SessionNotFoundError(id))
				return
			}
			h.errorHandler.HandleError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionResponse is the payload returned after an upload.
type SessionResponse struct {
	ID          string `json:"id"`
	Rows        int    `json:"rows"`
	HasGenres   bool   `json:"has_genres"`
	Fingerprint string `json:"fingerprint"`
}

// Create handles POST /api/sessions. The body is a multipart form with the
// export file in the "file" field; CSV and XLSX are accepted.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	reqID := infrastructure.GetTraceID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.New(
			http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			"Uploaded file exceeds the size limit"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "A library export file is required"))
		return
	}
	defer file.Close()

	var table *library.Table
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx":
		table, err = library.ParseXLSX(file)
	default:
		table, err = library.Parse(file)
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	session, err := h.store.Create(table)
	if err != nil {
		if errors.Is(err, services.ErrStoreFull) {
			h.errorHandler.HandleError(w, r, apierrors.New(
				http.StatusServiceUnavailable, "STORE_FULL",
				"Too many active sessions, try again later"))
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "session uploaded",
		slog.String("request_id", reqID),
		slog.String("session_id", session.ID),
		slog.String("filename", header.Filename),
		slog.Int("rows", table.Len()))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SessionResponse{
		ID:         session.ID,
		Rows:       table.Len(),
		HasGenres:  table.HasGenres(),
		Fingerprint: table.Fingerprint(),
	})
}

// Delete handles DELETE /api/sessions/{sessionID}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	h.store.Delete(session.ID)
	render.NoContent(w, r)
}

// Summary handles GET /api/sessions/{sessionID}/summary.
func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	summary := h.insights.Summary(r.Context(), session.Table())
	render.JSON(w, r, summary)
}

// Streak handles GET /api/sessions/{sessionID}/streak.
func (h *SessionHandler) Streak(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	streak := h.insights.Streak(r.Context(), session.Table())
	render.JSON(w, r, streak)
}
