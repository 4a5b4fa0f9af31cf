// Package enrich fetches genre labels for book records from a remote lookup
// endpoint, bounding concurrent outbound requests with a worker pool and a
// shared rate limiter. A failed or not-found lookup yields an empty genre
// for that identifier and never aborts the rest of the batch.
package enrich

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"shelfstats/internal/config"
	"shelfstats/internal/infrastructure"
	"shelfstats/internal/library"
)

// Fetcher retrieves genre labels over HTTP.
type Fetcher struct {
	cfg     config.EnrichmentConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *infrastructure.Metrics
}

// NewFetcher creates a fetcher. metrics may be nil (CLI use).
func NewFetcher(cfg config.EnrichmentConfig, logger *slog.Logger, metrics *infrastructure.Metrics) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			// Per-fetch deadlines come from the request context; the
			// client timeout is a backstop.
			Timeout: 2 * cfg.FetchTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger.With(slog.String("component", "enrich_fetcher")),
		metrics: metrics,
	}
}

// Report summarizes one enrichment batch.
type Report struct {
	Attempted int           `json:"attempted"`
	Found     int           `json:"found"`
	NotFound  int           `json:"not_found"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"-"`
}

type result struct {
	bookID   string
	genres   []string
	notFound bool
	err      error
}

// FetchGenres looks up genres for every identifier, at most cfg.Workers
// requests in flight at a time. The returned map has exactly one entry per
// distinct input identifier; identifiers that failed, were not found, or
// were never dispatched because ctx was cancelled map to an empty list.
// Results are keyed by identifier, so completion order never affects the
// merge. progress, when non-nil, is called after each resolution with
// (done, total).
func (f *Fetcher) FetchGenres(ctx context.Context, ids []string, progress func(done, total int)) (map[string][]string, Report) {
	start := time.Now()
	ids = dedupe(ids)
	total := len(ids)

	genres := make(map[string][]string, total)
	report := Report{Attempted: total}
	if total == 0 {
		report.Elapsed = time.Since(start)
		return genres, report
	}

	workers := f.cfg.Workers
	if workers > total {
		workers = total
	}

	jobs := make(chan string)
	results := make(chan result)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for id := range jobs {
				results <- f.fetchOne(gctx, id)
			}
			return nil
		})
	}

	// Dispatcher: stops feeding new identifiers once ctx is cancelled,
	// letting in-flight fetches finish naturally.
	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-gctx.Done():
				return
			}
		}
	}()

	go func() {
		g.Wait() // workers never return errors
		close(results)
	}()

	// This loop is the single writer of the merged map.
	done := 0
	for res := range results {
		done++
		switch {
		case res.err != nil:
			report.Failed++
			genres[res.bookID] = nil
			f.logger.DebugContext(ctx, "genre fetch failed",
				slog.String("book_id", res.bookID),
				slog.String("error", res.err.Error()))
		case res.notFound || len(res.genres) == 0:
			report.NotFound++
			genres[res.bookID] = nil
		default:
			report.Found++
			genres[res.bookID] = res.genres
		}
		if progress != nil {
			progress(done, total)
		}
	}

	// Identifiers never dispatched (batch cancelled) still get an entry.
	for _, id := range ids {
		if _, ok := genres[id]; !ok {
			genres[id] = nil
			report.Failed++
		}
	}

	report.Elapsed = time.Since(start)
	f.logger.InfoContext(ctx, "enrichment batch finished",
		slog.Int("attempted", report.Attempted),
		slog.Int("found", report.Found),
		slog.Int("not_found", report.NotFound),
		slog.Int("failed", report.Failed),
		slog.Duration("elapsed", report.Elapsed))

	return genres, report
}

// fetchOne issues a single lookup. Errors are carried in the result, never
// returned past the worker boundary.
func (f *Fetcher) fetchOne(ctx context.Context, bookID string) result {
	res := result{bookID: bookID}

	if err := f.limiter.Wait(ctx); err != nil {
		res.err = fmt.Errorf("rate limiter: %w", err)
		f.record(ctx, "failed", 0)
		return res
	}

	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.cfg.BaseURL+bookID, nil)
	if err != nil {
		res.err = fmt.Errorf("failed to build request: %w", err)
		f.record(ctx, "failed", time.Since(start))
		return res
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		res.err = fmt.Errorf("request failed: %w", err)
		f.record(ctx, "failed", time.Since(start))
		return res
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		res.notFound = true
		f.record(ctx, "not_found", time.Since(start))
		return res
	}

	genres, err := ParseGenres(resp.Body)
	if err != nil {
		res.err = err
		f.record(ctx, "failed", time.Since(start))
		return res
	}

	res.genres = genres
	if len(genres) == 0 {
		res.notFound = true
		f.record(ctx, "not_found", time.Since(start))
	} else {
		f.record(ctx, "found", time.Since(start))
	}
	return res
}

func (f *Fetcher) record(ctx context.Context, outcome string, elapsed time.Duration) {
	if f.metrics != nil {
		f.metrics.RecordFetch(ctx, outcome, elapsed)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// EligibleIDs returns the distinct numeric identifiers of records that do
// not yet carry a genre label, in table order. Re-running enrichment
// re-attempts exactly these.
func EligibleIDs(t *library.Table) []string {
	seen := make(map[string]struct{})
	var ids []string
	for i := range t.Rows {
		r := &t.Rows[i]
		if len(r.Genres) > 0 || !isNumeric(r.BookID) {
			continue
		}
		if _, ok := seen[r.BookID]; ok {
			continue
		}
		seen[r.BookID] = struct{}{}
		ids = append(ids, r.BookID)
	}
	return ids
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
