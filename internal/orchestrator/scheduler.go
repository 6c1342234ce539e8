package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/completion"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/sessions"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/metrics"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/telemetry"
)

const defaultMaxParallel = 5

// Scheduler executes resolved tiers: full fan-out within a tier, a strict
// barrier between tiers, per-attempt timeouts, and sequential retries per
// slot. One agent's permanent failure never touches its siblings.
type Scheduler struct {
	Registry *agents.Registry
	// MaxParallel bounds concurrently running agents within a tier; zero
	// means defaultMaxParallel.
	MaxParallel int64
}

// Outcome is what one full execution produces: exactly one AgentResult per
// scheduled agent, plus the wall-clock span across all tiers.
type Outcome struct {
	Results map[string]sessions.AgentResult
	// Payloads holds the typed payloads of successful agents, keyed by name.
	Payloads    map[string]agents.Payload
	Tiers       [][]string
	StartedAt   time.Time
	CompletedAt time.Time
}

// run is the in-progress session accumulator. Appends are serialized; a
// result, once appended, is never replaced.
type run struct {
	mu       sync.Mutex
	results  map[string]sessions.AgentResult
	payloads map[string]agents.Payload
}

func newRun() *run {
	return &run{
		results:  make(map[string]sessions.AgentResult),
		payloads: make(map[string]agents.Payload),
	}
}

func (r *run) append(res sessions.AgentResult, payload agents.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.results[res.AgentName]; exists {
		return
	}
	r.results[res.AgentName] = res
	if res.Success {
		r.payloads[res.AgentName] = payload
	}
}

// prior returns a copy of the successful payloads accumulated so far.
// Called only at tier boundaries, so the copy always reflects fully
// resolved tiers.
func (r *run) prior() map[string]agents.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]agents.Payload, len(r.payloads))
	for name, p := range r.payloads {
		out[name] = p
	}
	return out
}

// Execute runs the tiers to completion. Cancellation of ctx is cooperative:
// attempts already running finish, no retry or later tier starts, and every
// agent that never ran is recorded as CANCELLED.
func (s *Scheduler) Execute(ctx context.Context, sessionID string, tiers [][]string, build func(prior map[string]agents.Payload) agents.ExecutionContext) Outcome {
	maxParallel := s.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	sem := semaphore.NewWeighted(maxParallel)

	acc := newRun()
	startedAt := time.Now().UTC()

	for tierIdx, tier := range tiers {
		if ctx.Err() != nil {
			s.markCancelled(acc, tiers[tierIdx:])
			break
		}

		// Snapshot once per tier: every slot in this tier sees the same
		// prior-tier payloads, never a sibling's.
		prior := acc.prior()

		var wg sync.WaitGroup
		for _, name := range tier {
			agent, ok := s.Registry.Get(name)
			if !ok {
				acc.append(sessions.AgentResult{
					AgentName:    name,
					Success:      false,
					ErrorCode:    sessions.ErrorCodeProvider,
					ErrorMessage: "agent not registered",
				}, agents.Payload{})
				continue
			}
			wg.Add(1)
			go func(agent agents.Agent) {
				defer wg.Done()
				s.runSlot(ctx, sem, sessionID, tierIdx, agent, acc, prior, build)
			}(agent)
		}
		wg.Wait()
	}

	return Outcome{
		Results:     acc.results,
		Payloads:    acc.payloads,
		Tiers:       tiers,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	}
}

// runSlot drives one agent's attempt loop. Retries are sequential within
// the slot; a retry never starts before the prior attempt has terminated.
func (s *Scheduler) runSlot(ctx context.Context, sem *semaphore.Weighted, sessionID string, tierIdx int, agent agents.Agent, acc *run, prior map[string]agents.Payload, build func(map[string]agents.Payload) agents.ExecutionContext) {
	desc := agent.Descriptor()
	slotStart := time.Now()

	if err := sem.Acquire(ctx, 1); err != nil {
		acc.append(cancelledResult(desc.Name, 0, slotStart), agents.Payload{})
		return
	}
	defer sem.Release(1)

	var lastErr error
	lastCode := sessions.ErrorCodeProvider
	attempts := 0
	for attempt := 0; attempt <= desc.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			// Session cancelled between attempts: stop retrying.
			acc.append(cancelledResult(desc.Name, attempts, slotStart), agents.Payload{})
			return
		}
		attempts++
		metrics.IncAgentAttempt()

		// Context is rebuilt per attempt from the same prior-tier snapshot.
		ec := build(prior)

		attemptCtx, cancel := context.WithTimeout(ctx, desc.Timeout)
		attemptStart := time.Now()
		payload, err := agent.Run(attemptCtx, ec)
		cancel()
		elapsed := time.Since(attemptStart)

		if err == nil {
			result := sessions.AgentResult{
				AgentName:  desc.Name,
				Success:    true,
				Attempts:   attempts,
				DurationMs: durationMs(time.Since(slotStart)),
				CostUSD:    payload.CostUSD,
				Data:       payload.Data,
			}
			acc.append(result, payload)
			metrics.ObserveAgentDurationMs(durationMs(elapsed))
			telemetry.Info("agent.status", map[string]any{
				"session_id": sessionID,
				"agent":      desc.Name,
				"tier":       tierIdx,
				"status":     "succeeded",
				"attempts":   attempts,
				"duration_ms": durationMs(elapsed),
			})
			return
		}

		if ctx.Err() != nil && !errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			// The session, not the attempt budget, was cancelled mid-flight.
			acc.append(cancelledResult(desc.Name, attempts, slotStart), agents.Payload{})
			return
		}

		lastErr = err
		lastCode = classifyAgentError(err)
		telemetry.Info("agent.status", map[string]any{
			"session_id": sessionID,
			"agent":      desc.Name,
			"tier":       tierIdx,
			"status":     "attempt_failed",
			"attempt":    attempts,
			"error_code": lastCode,
			"error":      sanitizeError(err),
		})
	}

	metrics.IncAgentFailed()
	acc.append(sessions.AgentResult{
		AgentName:    desc.Name,
		Success:      false,
		Attempts:     attempts,
		DurationMs:   durationMs(time.Since(slotStart)),
		ErrorCode:    lastCode,
		ErrorMessage: sanitizeError(lastErr),
	}, agents.Payload{})
}

func (s *Scheduler) markCancelled(acc *run, remainingTiers [][]string) {
	for _, tier := range remainingTiers {
		for _, name := range tier {
			acc.append(sessions.AgentResult{
				AgentName: name,
				Success:   false,
				ErrorCode: sessions.ErrorCodeCancelled,
			}, agents.Payload{})
		}
	}
}

func cancelledResult(name string, attempts int, slotStart time.Time) sessions.AgentResult {
	return sessions.AgentResult{
		AgentName:  name,
		Success:    false,
		Attempts:   attempts,
		DurationMs: durationMs(time.Since(slotStart)),
		ErrorCode:  sessions.ErrorCodeCancelled,
	}
}

// classifyAgentError maps an attempt error onto the per-agent taxonomy.
func classifyAgentError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return sessions.ErrorCodeTimeout
	case errors.Is(err, context.Canceled):
		return sessions.ErrorCodeCancelled
	case errors.Is(err, agents.ErrInvalidPayload):
		return sessions.ErrorCodeValidation
	case errors.Is(err, completion.ErrProvider):
		return sessions.ErrorCodeProvider
	default:
		return sessions.ErrorCodeProvider
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
