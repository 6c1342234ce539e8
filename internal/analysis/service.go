package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/documents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/orchestrator"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/queue"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/quota"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/sessions"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/metrics"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/telemetry"
)

// Service drives analysis runs end to end: it resolves the execution plan,
// gates on quota, records a pending session and completes it asynchronously.
type Service struct {
	Sessions  *sessions.Store
	Registry  *agents.Registry
	Scheduler *orchestrator.Scheduler
	Deals     deals.Repo
	Docs      *documents.Service
	Quota     *quota.Service
	Reference json.RawMessage

	// Queue, when set, hands execution to a worker process instead of an
	// in-process goroutine. Cancellation only reaches runs executing in the
	// same process as the cancel request.
	Queue queue.Client

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewService constructs a Service.
func NewService(store *sessions.Store, registry *agents.Registry, scheduler *orchestrator.Scheduler, dealsRepo deals.Repo, docs *documents.Service, quotaSvc *quota.Service) *Service {
	return &Service{
		Sessions:  store,
		Registry:  registry,
		Scheduler: scheduler,
		Deals:     dealsRepo,
		Docs:      docs,
		Quota:     quotaSvc,
		running:   make(map[string]context.CancelFunc),
	}
}

// Run resolves the tier plan for the requested mode, consumes quota, records
// a pending session and kicks off asynchronous execution. Resolution failures
// surface immediately and leave no session behind.
func (s *Service) Run(ctx context.Context, userID, dealID string, mode agents.AnalysisMode, facts json.RawMessage) (sessions.Session, error) {
	deal, err := s.Deals.GetByID(ctx, userID, dealID)
	if err != nil {
		return sessions.Session{}, err
	}

	descriptors, err := s.Registry.Descriptors(agents.AgentsForMode(mode))
	if err != nil {
		return sessions.Session{}, err
	}
	tiers, err := orchestrator.ResolveTiers(descriptors, nil)
	if err != nil {
		return sessions.Session{}, err
	}

	if s.Quota != nil {
		if _, err := s.Quota.Consume(ctx, userID, 1); err != nil {
			return sessions.Session{}, err
		}
	}

	session := sessions.Session{
		ID:        uuid.NewString(),
		DealID:    dealID,
		UserID:    userID,
		Mode:      string(mode),
		Status:    sessions.StatusPending,
		Tiers:     tiers,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Sessions.CreateSession(ctx, session); err != nil {
		return sessions.Session{}, err
	}

	if s.Queue != nil {
		msg := queue.Message{
			SessionID:  session.ID,
			RequestID:  requestIDFromContext(ctx),
			Facts:      facts,
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		if err := s.Queue.Send(ctx, msg); err == nil {
			return session, nil
		} else {
			telemetry.Error("run.enqueue_failed", map[string]any{
				"request_id": requestIDFromContext(ctx),
				"session_id": session.ID,
				"error":      err.Error(),
			})
		}
	}

	runCtx, cancel := context.WithCancel(backgroundWithRequestID(ctx))
	s.track(session.ID, cancel)

	go s.completeAsync(runCtx, session, deal, mode, facts)

	return session, nil
}

// ProcessSession executes a previously recorded pending session. Worker
// processes call this after dequeuing a run request. Terminal sessions are
// skipped so redelivered messages stay harmless.
func (s *Service) ProcessSession(ctx context.Context, sessionID string, facts json.RawMessage) error {
	session, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session lookup: %w", err)
	}
	if session.Status != sessions.StatusPending {
		telemetry.Info("run.already_finished", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"session_id": sessionID,
			"status":     session.Status,
		})
		return nil
	}

	deal, err := s.Deals.GetByID(ctx, session.UserID, session.DealID)
	if err != nil {
		return fmt.Errorf("deal lookup: %w", err)
	}
	mode, err := agents.ParseMode(session.Mode)
	if err != nil {
		return fmt.Errorf("session mode: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.track(session.ID, cancel)
	defer s.untrack(session.ID)

	return s.execute(runCtx, session, deal, mode, facts)
}

// Get returns a session owned by the user.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (sessions.Session, error) {
	session, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return sessions.Session{}, err
	}
	if session.UserID != userID {
		return sessions.Session{}, sessions.ErrNotFound
	}
	return session, nil
}

// List returns the run history for a deal owned by the user, newest first.
func (s *Service) List(ctx context.Context, userID, dealID string, limit, offset int) ([]sessions.Session, error) {
	if _, err := s.Deals.GetByID(ctx, userID, dealID); err != nil {
		return nil, err
	}
	return s.Sessions.ListSessions(ctx, dealID, limit, offset)
}

// Cancel requests cooperative cancellation of a running session. In-flight
// attempts finish; tiers not yet started never run.
func (s *Service) Cancel(ctx context.Context, userID, sessionID string) error {
	session, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return sessions.ErrNotFound
	}
	if session.Status != sessions.StatusPending {
		return ErrNotRunning
	}

	s.mu.Lock()
	cancel, ok := s.running[sessionID]
	s.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}

	telemetry.Info("run.cancel_requested", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"user_id":    userID,
		"session_id": sessionID,
	})
	cancel()
	return nil
}

func (s *Service) track(sessionID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[sessionID] = cancel
	s.mu.Unlock()
}

func (s *Service) untrack(sessionID string) {
	s.mu.Lock()
	cancel, ok := s.running[sessionID]
	delete(s.running, sessionID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Service) completeAsync(ctx context.Context, session sessions.Session, deal deals.Deal, mode agents.AnalysisMode, facts json.RawMessage) {
	defer s.untrack(session.ID)
	defer func() {
		if r := recover(); r != nil {
			s.failRun(ctx, session, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := s.execute(ctx, session, deal, mode, facts); err != nil {
		telemetry.Error("run.execute_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"session_id": session.ID,
			"error":      err.Error(),
		})
	}
}

func (s *Service) execute(ctx context.Context, session sessions.Session, deal deals.Deal, mode agents.AnalysisMode, facts json.RawMessage) error {
	metrics.IncRunStarted()
	telemetry.Info("run.status", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"user_id":    session.UserID,
		"deal_id":    session.DealID,
		"session_id": session.ID,
		"mode":       session.Mode,
		"status":     "running",
		"tiers":      len(session.Tiers),
	})

	documentText, err := s.Docs.CombinedText(ctx, session.DealID)
	if err != nil {
		s.failRun(ctx, session, fmt.Errorf("document text: %w", err))
		return nil
	}

	builder := &orchestrator.ContextBuilder{
		Deal:         deal,
		DocumentText: documentText,
		Reference:    s.Reference,
		Facts:        facts,
	}

	outcome := s.Scheduler.Execute(ctx, session.ID, session.Tiers, builder.Build)
	final := orchestrator.Finalize(session, outcome, agents.VerdictAgentForMode(mode))

	cancelled := ctx.Err() != nil

	// Persistence must survive the run context being cancelled.
	version, err := s.Sessions.Persist(backgroundWithRequestID(ctx), final)
	if err != nil {
		telemetry.Error("run.persist_failed", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"session_id": session.ID,
			"error":      err.Error(),
		})
		return fmt.Errorf("persist session: %w", err)
	}

	switch {
	case cancelled:
		metrics.IncRunCancelled()
	case final.Success:
		metrics.IncRunCompleted()
	default:
		metrics.IncRunFailed()
	}
	metrics.ObserveRunDurationMs(final.DurationMs)

	telemetry.Info("run.status", map[string]any{
		"request_id":     requestIDFromContext(ctx),
		"user_id":        session.UserID,
		"deal_id":        session.DealID,
		"session_id":     session.ID,
		"mode":           session.Mode,
		"status":         final.Status,
		"success":        final.Success,
		"cancelled":      cancelled,
		"version":        version.Number,
		"total_cost_usd": final.TotalCostUSD,
		"duration_ms":    final.DurationMs,
	})
	return nil
}

func (s *Service) failRun(ctx context.Context, session sessions.Session, err error) {
	now := time.Now().UTC()
	session.Status = sessions.StatusFailed
	session.Success = false
	session.CompletedAt = &now
	if session.Results == nil {
		session.Results = map[string]sessions.AgentResult{}
	}

	if _, persistErr := s.Sessions.Persist(backgroundWithRequestID(ctx), session); persistErr != nil {
		fmt.Printf("failRun: persist failed id=%s err=%v orig=%v\n", session.ID, persistErr, err)
	}
	metrics.IncRunFailed()
	telemetry.Error("run.status", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"user_id":    session.UserID,
		"deal_id":    session.DealID,
		"session_id": session.ID,
		"status":     sessions.StatusFailed,
		"error":      err.Error(),
	})
}
