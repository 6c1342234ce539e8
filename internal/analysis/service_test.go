package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/completion"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/documents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/orchestrator"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/queue"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/quota"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/sessions"
)

// fakeCompletion answers every request with a well-formed scored payload.
type fakeCompletion struct {
	mu    sync.Mutex
	calls int
	block chan struct{}
	err   error
}

func (f *fakeCompletion) Complete(ctx context.Context, req completion.Request) (completion.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return completion.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return completion.Result{}, f.err
	}
	return completion.Result{
		Payload: json.RawMessage(`{"score": 75, "summary": "solid", "completenessRatio": 0.9}`),
		Model:   "test-model",
		CostUSD: 0.01,
	}, nil
}

func (f *fakeCompletion) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQueue struct {
	mu   sync.Mutex
	sent []queue.Message
	err  error
}

func (f *fakeQueue) Send(ctx context.Context, msg queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type testEnv struct {
	svc    *Service
	store  *sessions.Store
	dealID string
}

func newTestEnv(t *testing.T, client completion.Client) *testEnv {
	t.Helper()

	registry, err := agents.NewRegistry(agents.Catalog(client)...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	dealsRepo := deals.NewMemoryRepo()
	deal := deals.Deal{ID: "d1", UserID: "u1", CompanyName: "Acme Robotics", Sector: "robotics"}
	if err := dealsRepo.Create(context.Background(), deal); err != nil {
		t.Fatalf("create deal: %v", err)
	}

	docSvc := &documents.Service{Repo: documents.NewMemoryRepo(), Deals: dealsRepo}
	store := &sessions.Store{Repo: sessions.NewMemoryRepo(), Docs: docSvc}
	scheduler := &orchestrator.Scheduler{Registry: registry}

	svc := NewService(store, registry, scheduler, dealsRepo, docSvc, quota.NewService())
	return &testEnv{svc: svc, store: store, dealID: deal.ID}
}

func waitForTerminal(t *testing.T, store *sessions.Store, sessionID string) sessions.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s, err := store.GetSession(context.Background(), sessionID)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if s.Status != sessions.StatusPending {
			return s
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never left pending")
	return sessions.Session{}
}

func TestRunScreenModeCompletes(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{})

	session, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if session.Status != sessions.StatusPending {
		t.Fatalf("initial status = %s, want pending", session.Status)
	}
	if len(session.Tiers) != 2 {
		t.Fatalf("tiers = %v, want 2 tiers for SCREEN", session.Tiers)
	}

	final := waitForTerminal(t, env.store, session.ID)
	if final.Status != sessions.StatusCompleted || !final.Success {
		t.Fatalf("final = %s success=%v, want completed", final.Status, final.Success)
	}
	if len(final.Results) != 4 {
		t.Fatalf("results = %d, want 4 SCREEN agents", len(final.Results))
	}
	if final.HeadlineScore == nil || *final.HeadlineScore != 75 {
		t.Fatalf("headlineScore = %v, want 75", final.HeadlineScore)
	}

	version, err := env.store.Latest(context.Background(), env.dealID)
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if version.Number != 1 || version.Session.ID != session.ID {
		t.Fatalf("unexpected version: %+v", version)
	}
}

func TestRunProviderFailureProducesFailedSession(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{err: fmt.Errorf("%w: upstream 500", completion.ErrProvider)})

	session, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	final := waitForTerminal(t, env.store, session.ID)
	if final.Status != sessions.StatusFailed || final.Success {
		t.Fatalf("final = %s success=%v, want failed", final.Status, final.Success)
	}
	for name, res := range final.Results {
		if res.Success {
			t.Fatalf("agent %s unexpectedly succeeded", name)
		}
		if res.ErrorCode != sessions.ErrorCodeProvider && res.ErrorCode != sessions.ErrorCodeCancelled {
			t.Fatalf("agent %s errorCode = %s", name, res.ErrorCode)
		}
	}
	// Failed runs still persist a version for the history.
	if _, err := env.store.Latest(context.Background(), env.dealID); err != nil {
		t.Fatalf("failed run left no version: %v", err)
	}
}

func TestRunUnknownDealRejected(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{})
	_, err := env.svc.Run(context.Background(), "u1", "nope", agents.ModeScreen, nil)
	if !errors.Is(err, deals.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunOtherUsersDealRejected(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{})
	_, err := env.svc.Run(context.Background(), "intruder", env.dealID, agents.ModeScreen, nil)
	if !errors.Is(err, deals.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign deal, got %v", err)
	}
}

func TestRunQuotaGate(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{})

	if _, err := env.svc.Quota.Consume(context.Background(), "u1", 20); err != nil {
		t.Fatalf("prefill quota: %v", err)
	}

	_, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, nil)
	if !errors.Is(err, quota.ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
}

func TestCancelMarksRemainingAgentsCancelled(t *testing.T) {
	block := make(chan struct{})
	client := &fakeCompletion{block: block}
	env := newTestEnv(t, client)

	session, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Wait for the first tier's attempts to be in flight.
	deadline := time.Now().Add(2 * time.Second)
	for client.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if client.callCount() == 0 {
		t.Fatal("no agent started")
	}

	if err := env.svc.Cancel(context.Background(), "u1", session.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	final := waitForTerminal(t, env.store, session.ID)
	if final.Success {
		t.Fatal("cancelled run must not be successful")
	}
	cancelled := 0
	for _, res := range final.Results {
		if res.ErrorCode == sessions.ErrorCodeCancelled {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Fatalf("expected cancelled agent results, got %+v", final.Results)
	}
}

func TestCancelFinishedSessionRejected(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{})

	session, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	waitForTerminal(t, env.store, session.ID)

	if err := env.svc.Cancel(context.Background(), "u1", session.ID); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestCancelOwnershipEnforced(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	env := newTestEnv(t, &fakeCompletion{block: block})

	session, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := env.svc.Cancel(context.Background(), "intruder", session.ID); !errors.Is(err, sessions.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign cancel, got %v", err)
	}

	if err := env.svc.Cancel(context.Background(), "u1", session.ID); err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	waitForTerminal(t, env.store, session.ID)
}

func TestRunWithQueueDefersExecution(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{})
	q := &fakeQueue{}
	env.svc.Queue = q

	facts := json.RawMessage(`{"arr": 500000}`)
	session, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, facts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(q.sent) != 1 {
		t.Fatalf("expected 1 queued message, got %d", len(q.sent))
	}
	msg := q.sent[0]
	if msg.SessionID != session.ID || string(msg.Facts) != string(facts) {
		t.Fatalf("unexpected message: %+v", msg)
	}

	// Execution is deferred to the worker, so the session stays pending.
	time.Sleep(50 * time.Millisecond)
	got, err := env.store.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != sessions.StatusPending {
		t.Fatalf("status = %s, want pending until worker runs", got.Status)
	}
}

func TestRunFallsBackWhenEnqueueFails(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{})
	env.svc.Queue = &fakeQueue{err: errors.New("sqs unavailable")}

	session, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	final := waitForTerminal(t, env.store, session.ID)
	if final.Status != sessions.StatusCompleted {
		t.Fatalf("fallback execution did not complete: %s", final.Status)
	}
}

func TestProcessSessionExecutesPendingRun(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{})
	env.svc.Queue = &fakeQueue{}

	session, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := env.svc.ProcessSession(context.Background(), session.ID, nil); err != nil {
		t.Fatalf("process: %v", err)
	}

	final, err := env.store.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != sessions.StatusCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
}

func TestProcessSessionSkipsFinishedRun(t *testing.T) {
	client := &fakeCompletion{}
	env := newTestEnv(t, client)
	env.svc.Queue = &fakeQueue{}

	session, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := env.svc.ProcessSession(context.Background(), session.ID, nil); err != nil {
		t.Fatalf("process: %v", err)
	}
	before := client.callCount()

	// Redelivered message: terminal session is skipped without re-execution.
	if err := env.svc.ProcessSession(context.Background(), session.ID, nil); err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if client.callCount() != before {
		t.Fatal("terminal session was re-executed")
	}
}

func TestProcessSessionUnknownSession(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{})
	if err := env.svc.ProcessSession(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestGetAndListScopedToOwner(t *testing.T) {
	env := newTestEnv(t, &fakeCompletion{})

	session, err := env.svc.Run(context.Background(), "u1", env.dealID, agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	waitForTerminal(t, env.store, session.ID)

	if _, err := env.svc.Get(context.Background(), "intruder", session.ID); !errors.Is(err, sessions.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign get, got %v", err)
	}

	list, err := env.svc.List(context.Background(), "u1", env.dealID, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != session.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	if _, err := env.svc.List(context.Background(), "intruder", env.dealID, 10, 0); !errors.Is(err, deals.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign list, got %v", err)
	}
}
