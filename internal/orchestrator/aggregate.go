package orchestrator

import (
	"fmt"
	"sort"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/sessions"
)

// Completeness thresholds and score ceilings. A capped score is what every
// downstream consumer sees; the raw score is retained for transparency.
const (
	completeThreshold = 0.7
	partialThreshold  = 0.3

	partialScoreCap = 70.0
	minimalScoreCap = 50.0
)

// Finalize folds an execution outcome into the session: per-agent
// completeness capping, the limitations list, the headline score taken
// from the mode's verdict agent, and the aggregate success/cost/elapsed
// figures. The session is returned in its terminal state, ready to persist.
func Finalize(s sessions.Session, outcome Outcome, verdictAgent string) sessions.Session {
	s.Tiers = outcome.Tiers
	s.Results = make(map[string]sessions.AgentResult, len(outcome.Results))

	var limitations []string
	success := true
	totalCost := 0.0

	for _, name := range sortedResultNames(outcome.Results) {
		res := outcome.Results[name]
		if res.Success {
			if payload, ok := outcome.Payloads[name]; ok {
				applyCompleteness(&res, payload, &limitations)
			}
		} else {
			success = false
		}
		totalCost += res.CostUSD
		s.Results[name] = res
	}

	s.Success = success
	if success {
		s.Status = sessions.StatusCompleted
	} else {
		s.Status = sessions.StatusFailed
	}
	s.Limitations = limitations
	s.TotalCostUSD = totalCost
	s.DurationMs = float64(outcome.CompletedAt.Sub(outcome.StartedAt).Microseconds()) / 1000.0
	completedAt := outcome.CompletedAt
	s.CompletedAt = &completedAt

	if verdict, ok := s.Results[verdictAgent]; ok && verdict.Success && verdict.Score != nil {
		score := *verdict.Score
		s.HeadlineScore = &score
	}
	return s
}

// applyCompleteness assigns the completeness level and caps the score. The
// ratio comes from the agent's self-report when present, otherwise from the
// populated-over-expected field counts.
func applyCompleteness(res *sessions.AgentResult, payload agents.Payload, limitations *[]string) {
	if payload.Score == nil {
		return
	}
	raw := *payload.Score
	res.RawScore = &raw

	level := completenessLevel(completenessRatio(payload))
	res.Completeness = level

	capped := raw
	switch level {
	case sessions.CompletenessMinimal:
		if capped > minimalScoreCap {
			capped = minimalScoreCap
		}
	case sessions.CompletenessPartial:
		if capped > partialScoreCap {
			capped = partialScoreCap
		}
	}
	res.Score = &capped

	if capped < raw {
		*limitations = append(*limitations, fmt.Sprintf(
			"%s: Score capped from %.0f to %.0f due to %s data completeness",
			res.AgentName, raw, capped, level))
	}
}

// completenessRatio prefers the agent's self-report, then the field counts.
// An agent reporting neither provides no evidence and ranks minimal.
func completenessRatio(payload agents.Payload) float64 {
	if payload.CompletenessRatio != nil {
		return *payload.CompletenessRatio
	}
	if payload.ExpectedDataPoints > 0 {
		return float64(payload.AvailableDataPoints) / float64(payload.ExpectedDataPoints)
	}
	return 0
}

func completenessLevel(ratio float64) string {
	switch {
	case ratio >= completeThreshold:
		return sessions.CompletenessComplete
	case ratio >= partialThreshold:
		return sessions.CompletenessPartial
	default:
		return sessions.CompletenessMinimal
	}
}

func sortedResultNames(results map[string]sessions.AgentResult) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
