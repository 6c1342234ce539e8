package agents

import (
	"errors"
	"strings"
)

// AnalysisMode defines the supported analysis modes.
type AnalysisMode string

const (
	// ModeScreen is the fast first-pass read of a deal.
	ModeScreen AnalysisMode = "SCREEN"
	// ModeFull is the complete due-diligence battery.
	ModeFull AnalysisMode = "FULL"
)

// ParseMode normalizes and validates a mode string.
func ParseMode(raw string) (AnalysisMode, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		return "", errors.New("analysis mode is required")
	}
	switch strings.ToUpper(normalized) {
	case string(ModeScreen):
		return ModeScreen, nil
	case string(ModeFull):
		return ModeFull, nil
	default:
		return "", errors.New("analysis mode is invalid")
	}
}

// AgentsForMode maps a mode to its fixed agent set. Sets are closed over
// declared dependencies so resolution never fails for a valid mode.
func AgentsForMode(mode AnalysisMode) []string {
	switch mode {
	case ModeScreen:
		return []string{
			AgentTeam,
			AgentMarket,
			AgentFinancials,
			AgentQuickVerdict,
		}
	case ModeFull:
		return []string{
			AgentTeam,
			AgentMarket,
			AgentFinancials,
			AgentProduct,
			AgentCompetition,
			AgentRisk,
			AgentMemo,
		}
	default:
		return nil
	}
}

// VerdictAgentForMode names the agent whose score is the session headline.
func VerdictAgentForMode(mode AnalysisMode) string {
	switch mode {
	case ModeScreen:
		return AgentQuickVerdict
	case ModeFull:
		return AgentMemo
	default:
		return ""
	}
}
