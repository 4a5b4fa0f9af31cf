package services

import (
	"context"
	"log/slog"
	"sync"

	"shelfstats/internal/infrastructure"
	"shelfstats/internal/insights"
	"shelfstats/internal/library"
)

// cacheLimit bounds the fingerprint cache. Each session contributes at most
// two fingerprints (before and after enrichment), so the cache is reset
// outright when it fills instead of tracking recency.
const cacheLimit = 512

type cachedInsights struct {
	summary insights.Summary
	streak  insights.Streak
}

// InsightsService serves aggregates, memoized by table fingerprint. The
// underlying computations are pure, so a fingerprint hit is always safe.
type InsightsService struct {
	logger  *slog.Logger
	metrics *infrastructure.Metrics

	mu    sync.RWMutex
	cache map[string]*cachedInsights
}

// NewInsightsService creates the service. metrics may be nil.
func NewInsightsService(logger *slog.Logger, metrics *infrastructure.Metrics) *InsightsService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &InsightsService{
		logger:  logger.With(slog.String("component", "insights_service")),
		metrics: metrics,
		cache:   make(map[string]*cachedInsights),
	}
}

// Summary returns the headline metrics for a table.
func (s *InsightsService) Summary(ctx context.Context, t *library.Table) insights.Summary {
	return s.lookup(ctx, t).summary
}

// Streak returns the consecutive-day streak metrics for a table.
func (s *InsightsService) Streak(ctx context.Context, t *library.Table) insights.Streak {
	return s.lookup(ctx, t).streak
}

func (s *InsightsService) lookup(ctx context.Context, t *library.Table) *cachedInsights {
	fp := t.Fingerprint()

	s.mu.RLock()
	entry, ok := s.cache[fp]
	s.mu.RUnlock()
	if ok {
		if s.metrics != nil {
			s.metrics.InsightsCacheHits.Add(ctx, 1)
		}
		return entry
	}

	if s.metrics != nil {
		s.metrics.InsightsCacheMiss.Add(ctx, 1)
	}
	entry = &cachedInsights{
		summary: insights.Summarize(t),
		streak:  insights.ReadingStreak(t),
	}

	s.mu.Lock()
	if len(s.cache) >= cacheLimit {
		s.cache = make(map[string]*cachedInsights)
	}
	s.cache[fp] = entry
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "computed insights",
		slog.String("fingerprint", fp[:12]),
		slog.Int("rows", t.Len()))
	return entry
}
