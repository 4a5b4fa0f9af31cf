package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"shelfstats/internal/enrich"
	"shelfstats/internal/infrastructure"
	"shelfstats/internal/websocket"
)

// Run states.
const (
	RunStateRunning   = "running"
	RunStateCompleted = "completed"
	RunStateCancelled = "cancelled"
)

// GenreFetcher resolves genres for a batch of identifiers.
type GenreFetcher interface {
	FetchGenres(ctx context.Context, ids []string, progress func(done, total int)) (map[string][]string, enrich.Report)
}

// EventBroadcaster pushes typed events to connected clients.
type EventBroadcaster interface {
	Broadcast(messageType string, data any)
}

// EnrichmentRun tracks one enrichment batch for a session.
type EnrichmentRun struct {
	ID        string
	SessionID string
	StartedAt time.Time

	mu         sync.RWMutex
	state      string
	done       int
	total      int
	report     enrich.Report
	finishedAt time.Time
	cancel     context.CancelFunc
}

// RunStatus is the serializable view of a run.
type RunStatus struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	State      string        `json:"state"`
	Done       int           `json:"done"`
	Total      int           `json:"total"`
	Report     enrich.Report `json:"report"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Status returns a consistent snapshot of the run.
func (r *EnrichmentRun) Status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := RunStatus{
		ID:        r.ID,
		SessionID: r.SessionID,
		State:     r.state,
		Done:      r.done,
		Total:     r.total,
		Report:    r.report,
		StartedAt: r.StartedAt,
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		status.FinishedAt = &t
	}
	return status
}

func (r *EnrichmentRun) setProgress(done, total int) {
	r.mu.Lock()
	r.done, r.total = done, total
	r.mu.Unlock()
}

func (r *EnrichmentRun) finish(state string, report enrich.Report) {
	r.mu.Lock()
	r.state = state
	r.report = report
	r.finishedAt = time.Now()
	r.mu.Unlock()
}

func (r *EnrichmentRun) running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state == RunStateRunning
}

// EnrichmentService runs at most one enrichment batch per session. The merge
// back into the session happens on the run goroutine alone, so the table
// swap never races with the fetch workers.
type EnrichmentService struct {
	fetcher GenreFetcher
	hub     EventBroadcaster
	logger  *slog.Logger
	metrics *infrastructure.Metrics

	mu   sync.Mutex
	runs map[string]*EnrichmentRun // keyed by session id
}

// NewEnrichmentService wires the fetcher and event hub. hub and metrics may
// be nil.
func NewEnrichmentService(fetcher GenreFetcher, hub EventBroadcaster, logger *slog.Logger, metrics *infrastructure.Metrics) *EnrichmentService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &EnrichmentService{
		fetcher: fetcher,
		hub:     hub,
		logger:  logger.With(slog.String("component", "enrichment_service")),
		metrics: metrics,
		runs:    make(map[string]*EnrichmentRun),
	}
}

// Start launches an enrichment run for the session. Only records without a
// genre label are fetched, so re-running after a partial failure retries
// just the gaps. Returns ErrEnrichmentRunning while a previous run is still
// in flight.
func (s *EnrichmentService) Start(session *Session) (*EnrichmentRun, error) {
	ids := enrich.EligibleIDs(session.Table())

	s.mu.Lock()
	if existing, ok := s.runs[session.ID]; ok && existing.running() {
		s.mu.Unlock()
		return nil, ErrEnrichmentRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &EnrichmentRun{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		StartedAt: time.Now(),
		state:     RunStateRunning,
		total:     len(ids),
		cancel:    cancel,
	}
	s.runs[session.ID] = run
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.EnrichmentRuns.Add(ctx, 1)
	}
	s.logger.Info("enrichment run started",
		slog.String("session_id", session.ID),
		slog.String("run_id", run.ID),
		slog.Int("eligible", len(ids)))

	go s.execute(ctx, session, run, ids)
	return run, nil
}

func (s *EnrichmentService) execute(ctx context.Context, session *Session, run *EnrichmentRun, ids []string) {
	defer run.cancel()

	genres, report := s.fetcher.FetchGenres(ctx, ids, func(done, total int) {
		run.setProgress(done, total)
		s.broadcast(websocket.TypeEnrichProgress, map[string]any{
			"session_id": session.ID,
			"run_id":     run.ID,
			"done":       done,
			"total":      total,
		})
	})

	state := RunStateCompleted
	eventType := websocket.TypeEnrichComplete
	if ctx.Err() != nil {
		// A cancelled batch merges nothing; in-flight lookups that still
		// resolved are discarded with the rest.
		state = RunStateCancelled
		eventType = websocket.TypeEnrichCancelled
	} else {
		// Sole writer of the session table during a run.
		session.SetTable(session.Table().WithGenres(genres))
	}
	run.finish(state, report)

	s.broadcast(eventType, map[string]any{
		"session_id": session.ID,
		"run_id":     run.ID,
		"attempted":  report.Attempted,
		"found":      report.Found,
		"not_found":  report.NotFound,
		"failed":     report.Failed,
	})

	s.logger.Info("enrichment run finished",
		slog.String("session_id", session.ID),
		slog.String("run_id", run.ID),
		slog.String("state", state),
		slog.Int("found", report.Found),
		slog.Int("failed", report.Failed),
		slog.Duration("elapsed", report.Elapsed))
}

// Status returns the latest run for a session.
func (s *EnrichmentService) Status(sessionID string) (RunStatus, error) {
	s.mu.Lock()
	run, ok := s.runs[sessionID]
	s.mu.Unlock()
	if !ok {
		return RunStatus{}, ErrNoEnrichment
	}
	return run.Status(), nil
}

// Cancel stops the in-flight run for a session. Dispatched fetches finish
// naturally, but nothing from a cancelled batch is merged; a later run
// re-attempts every still-missing identifier.
func (s *EnrichmentService) Cancel(sessionID string) (RunStatus, error) {
	s.mu.Lock()
	run, ok := s.runs[sessionID]
	s.mu.Unlock()
	if !ok {
		return RunStatus{}, ErrNoEnrichment
	}
	if !run.running() {
		return run.Status(), nil
	}
	run.cancel()
	return run.Status(), nil
}

// Forget drops run bookkeeping for a session, cancelling any run still in
// flight. Called when the owning session expires.
func (s *EnrichmentService) Forget(sessionID string) {
	s.mu.Lock()
	run, ok := s.runs[sessionID]
	delete(s.runs, sessionID)
	s.mu.Unlock()
	if ok && run.running() {
		run.cancel()
	}
}

func (s *EnrichmentService) broadcast(messageType string, data any) {
	if s.hub != nil {
		s.hub.Broadcast(messageType, data)
	}
}
