package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"shelfstats/internal/config"
	apierrors "shelfstats/internal/errors"
	"shelfstats/internal/insights"
	"shelfstats/internal/library"
	"shelfstats/internal/services"
)

// InsightsHandler serves the chart and listing endpoints.
type InsightsHandler struct {
	insights     *services.InsightsService
	cfg          config.SessionConfig
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewInsightsHandler creates the insights handler.
func NewInsightsHandler(svc *services.InsightsService, cfg config.SessionConfig, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *InsightsHandler {
	return &InsightsHandler{
		insights:     svc,
		cfg:          cfg,
		validate:     validator.New(),
		logger:       logger.With(slog.String("component", "insights_handler")),
		errorHandler: errorHandler,
	}
}

// listParams binds the ?n= query parameter of ranked listings.
type listParams struct {
	N int `validate:"min=1,max=100"`
}

// parseListParams reads ?n= and validates the range. A missing parameter
// falls back to the configured default.
func (h *InsightsHandler) parseListParams(r *http.Request) (listParams, error) {
	params := listParams{N: h.cfg.DefaultTopN}
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, apierrors.ErrValidation("n", "must be an integer")
		}
		params.N = n
	}
	if params.N > h.cfg.MaxTopN {
		return params, apierrors.ErrValidation("n", "exceeds the maximum listing size")
	}
	if err := h.validate.Struct(params); err != nil {
		return params, apierrors.ErrValidation("n", "must be between 1 and 100")
	}
	return params, nil
}

// BooksPerYear handles GET .../charts/books-per-year.
func (h *InsightsHandler) BooksPerYear(w http.ResponseWriter, r *http.Request) {
	table := SessionFromContext(r.Context()).Table()
	render.JSON(w, r, orEmpty(insights.BooksPerYear(table)))
}

// BooksByPublicationYear handles GET .../charts/publication-years.
func (h *InsightsHandler) BooksByPublicationYear(w http.ResponseWriter, r *http.Request) {
	table := SessionFromContext(r.Context()).Table()
	render.JSON(w, r, orEmpty(insights.BooksByPublicationYear(table)))
}

// CumulativePages handles GET .../charts/cumulative-pages.
func (h *InsightsHandler) CumulativePages(w http.ResponseWriter, r *http.Request) {
	table := SessionFromContext(r.Context()).Table()
	render.JSON(w, r, orEmpty(insights.CumulativePages(table)))
}

// BindingDistribution handles GET .../charts/bindings.
func (h *InsightsHandler) BindingDistribution(w http.ResponseWriter, r *http.Request) {
	table := SessionFromContext(r.Context()).Table()
	render.JSON(w, r, insights.BindingDistribution(table))
}

// TopAuthors handles GET .../books/top-authors.
func (h *InsightsHandler) TopAuthors(w http.ResponseWriter, r *http.Request) {
	h.rankedNames(w, r, insights.TopAuthors)
}

// TopPublishers handles GET .../books/top-publishers.
func (h *InsightsHandler) TopPublishers(w http.ResponseWriter, r *http.Request) {
	h.rankedNames(w, r, insights.TopPublishers)
}

// TopGenres handles GET .../books/top-genres.
func (h *InsightsHandler) TopGenres(w http.ResponseWriter, r *http.Request) {
	h.rankedNames(w, r, insights.TopGenres)
}

func (h *InsightsHandler) rankedNames(w http.ResponseWriter, r *http.Request, rank func(*library.Table, int) []insights.NameCount) {
	params, err := h.parseListParams(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	table := SessionFromContext(r.Context()).Table()
	render.JSON(w, r, orEmpty(rank(table, params.N)))
}

// TopRatedPersonal handles GET .../books/top-rated.
func (h *InsightsHandler) TopRatedPersonal(w http.ResponseWriter, r *http.Request) {
	h.rankedBooks(w, r, insights.TopRatedPersonal)
}

// TopRatedCommunity handles GET .../books/top-rated-community.
func (h *InsightsHandler) TopRatedCommunity(w http.ResponseWriter, r *http.Request) {
	h.rankedBooks(w, r, insights.TopRatedCommunity)
}

func (h *InsightsHandler) rankedBooks(w http.ResponseWriter, r *http.Request, rank func(*library.Table, int) []insights.RatedBook) {
	params, err := h.parseListParams(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	table := SessionFromContext(r.Context()).Table()
	render.JSON(w, r, orEmpty(rank(table, params.N)))
}

// LongestBooks handles GET .../books/longest.
func (h *InsightsHandler) LongestBooks(w http.ResponseWriter, r *http.Request) {
	h.rankedPages(w, r, insights.LongestBooks)
}

// ShortestBooks handles GET .../books/shortest.
func (h *InsightsHandler) ShortestBooks(w http.ResponseWriter, r *http.Request) {
	h.rankedPages(w, r, insights.ShortestBooks)
}

func (h *InsightsHandler) rankedPages(w http.ResponseWriter, r *http.Request, rank func(*library.Table, int) []insights.BookPages) {
	params, err := h.parseListParams(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	table := SessionFromContext(r.Context()).Table()
	render.JSON(w, r, orEmpty(rank(table, params.N)))
}

// BooksByAuthor handles GET .../books/by-author?name=....
func (h *InsightsHandler) BooksByAuthor(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("name", "Author name is required"))
		return
	}
	table := SessionFromContext(r.Context()).Table()
	render.JSON(w, r, orEmpty(insights.BooksByAuthor(table, name)))
}

// BooksPublishedIn handles GET .../books/published-in?year=....
func (h *InsightsHandler) BooksPublishedIn(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("year", "must be an integer"))
		return
	}
	table := SessionFromContext(r.Context()).Table()
	render.JSON(w, r, orEmpty(insights.BooksPublishedIn(table, year)))
}

// orEmpty keeps empty listings rendering as [] instead of null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
