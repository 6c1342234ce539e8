package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/completion"
)

// Agent names used by the built-in catalog and the mode mapping.
const (
	AgentTeam         = "team_analysis"
	AgentMarket       = "market_analysis"
	AgentFinancials   = "financial_analysis"
	AgentProduct      = "product_analysis"
	AgentCompetition  = "competition_analysis"
	AgentRisk         = "risk_assessment"
	AgentQuickVerdict = "quick_verdict"
	AgentMemo         = "investment_memo"
)

const maxDocumentExcerpt = 24000

// completionAgent is the standard capability implementation: build an
// instruction from the enriched context, call the completion service,
// parse the typed payload.
type completionAgent struct {
	desc        Descriptor
	client      completion.Client
	temperature float32
	instruction func(ec ExecutionContext) string
}

func (a *completionAgent) Descriptor() Descriptor { return a.desc }

func (a *completionAgent) Run(ctx context.Context, ec ExecutionContext) (Payload, error) {
	res, err := a.client.Complete(ctx, completion.Request{
		Instruction: a.instruction(ec),
		Temperature: a.temperature,
		Complexity:  string(a.desc.Complexity),
	})
	if err != nil {
		return Payload{}, err
	}
	payload, err := ParsePayload(res.Payload)
	if err != nil {
		return Payload{}, err
	}
	payload.CostUSD = res.CostUSD
	return payload, nil
}

// Catalog returns the built-in agent set backed by the given completion
// client. Descriptors are fixed; the prompt text below is intentionally
// minimal, sector playbooks live with the presentation layer.
func Catalog(client completion.Client) []Agent {
	return []Agent{
		&completionAgent{
			desc: Descriptor{
				Name:       AgentTeam,
				Complexity: ComplexitySimple,
				MaxRetries: 2,
				Timeout:    60 * time.Second,
			},
			instruction: func(ec ExecutionContext) string {
				return dealInstruction(ec,
					"Assess the founding team: completeness, relevant experience, prior exits, and key-person risk.",
					"founders", "experienceHighlights", "gaps", "keyPersonRisk")
			},
		},
		&completionAgent{
			desc: Descriptor{
				Name:       AgentMarket,
				Complexity: ComplexitySimple,
				MaxRetries: 2,
				Timeout:    60 * time.Second,
			},
			instruction: func(ec ExecutionContext) string {
				return dealInstruction(ec,
					"Assess the target market: size, growth, timing, and regulatory exposure for this sector.",
					"marketSize", "growthRate", "timing", "regulatoryRisks")
			},
		},
		&completionAgent{
			desc: Descriptor{
				Name:       AgentFinancials,
				Complexity: ComplexityComplex,
				MaxRetries: 2,
				Timeout:    90 * time.Second,
			},
			instruction: func(ec ExecutionContext) string {
				return dealInstruction(ec,
					"Assess the financials: revenue, burn rate, runway, unit economics, and the plausibility of projections.",
					"revenue", "burnRate", "runwayMonths", "unitEconomics", "projectionQuality")
			},
		},
		&completionAgent{
			desc: Descriptor{
				Name:       AgentProduct,
				Complexity: ComplexitySimple,
				MaxRetries: 2,
				Timeout:    60 * time.Second,
			},
			instruction: func(ec ExecutionContext) string {
				return dealInstruction(ec,
					"Assess the product: maturity, differentiation, technical moat, and evidence of user traction.",
					"maturity", "differentiation", "moat", "traction")
			},
		},
		&completionAgent{
			desc: Descriptor{
				Name:       AgentCompetition,
				DependsOn:  []string{AgentMarket},
				Complexity: ComplexitySimple,
				MaxRetries: 2,
				Timeout:    60 * time.Second,
			},
			instruction: func(ec ExecutionContext) string {
				return dealInstruction(ec,
					"Map the competitive landscape: direct competitors, positioning, and defensibility. Use the market analysis when present.",
					"competitors", "positioning", "defensibility")
			},
		},
		&completionAgent{
			desc: Descriptor{
				Name:       AgentRisk,
				DependsOn:  []string{AgentTeam, AgentFinancials},
				Complexity: ComplexityComplex,
				MaxRetries: 1,
				Timeout:    90 * time.Second,
			},
			instruction: func(ec ExecutionContext) string {
				return dealInstruction(ec,
					"Consolidate deal risks across team and financial findings: top risks with severity and suggested mitigations.",
					"topRisks", "severity", "mitigations")
			},
		},
		&completionAgent{
			desc: Descriptor{
				Name:       AgentQuickVerdict,
				DependsOn:  []string{AgentTeam, AgentMarket, AgentFinancials},
				Complexity: ComplexitySimple,
				MaxRetries: 1,
				Timeout:    60 * time.Second,
			},
			instruction: func(ec ExecutionContext) string {
				return dealInstruction(ec,
					"Produce a short screening verdict from the prior analyses: invest-interest recommendation and the three decisive factors.",
					"recommendation", "decisiveFactors", "summary")
			},
		},
		&completionAgent{
			desc: Descriptor{
				Name:       AgentMemo,
				DependsOn:  []string{AgentTeam, AgentMarket, AgentFinancials, AgentProduct, AgentCompetition, AgentRisk},
				Complexity: ComplexityComplex,
				MaxRetries: 1,
				Timeout:    120 * time.Second,
			},
			instruction: func(ec ExecutionContext) string {
				return dealInstruction(ec,
					"Write the investment memo synthesis from all prior analyses: thesis, strengths, concerns, and recommendation.",
					"thesis", "strengths", "concerns", "recommendation")
			},
		},
	}
}

// dealInstruction assembles the instruction text every built-in agent
// sends: task, required output fields, subject record, document excerpt,
// reference bundle, and prior-tier findings.
func dealInstruction(ec ExecutionContext, task string, fields ...string) string {
	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\nReturn a JSON object with a numeric \"score\" (0-100), integer \"expectedDataPoints\" and \"availableDataPoints\" reflecting how much of the requested information the documents actually support, and these fields: ")
	b.WriteString(strings.Join(fields, ", "))
	b.WriteString(".\n\nCompany: ")
	b.WriteString(ec.Deal.CompanyName)
	if ec.Deal.Sector != "" {
		fmt.Fprintf(&b, "\nSector: %s", ec.Deal.Sector)
	}
	if ec.Deal.Stage != "" {
		fmt.Fprintf(&b, "\nStage: %s", ec.Deal.Stage)
	}
	if ec.Deal.AskUSD != nil {
		fmt.Fprintf(&b, "\nRaise: $%.0f", *ec.Deal.AskUSD)
	}
	if ec.Deal.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s", ec.Deal.Description)
	}
	if len(ec.Reference) > 0 {
		fmt.Fprintf(&b, "\n\nComparable deals reference:\n%s", ec.Reference)
	}
	if len(ec.Facts) > 0 {
		fmt.Fprintf(&b, "\n\nExtracted facts:\n%s", ec.Facts)
	}
	if len(ec.Prior) > 0 {
		b.WriteString("\n\nPrior analyses:")
		for _, name := range sortedPriorNames(ec.Prior) {
			fmt.Fprintf(&b, "\n--- %s ---\n%s", name, ec.Prior[name].Data)
		}
	}
	if ec.DocumentText != "" {
		text := ec.DocumentText
		if len(text) > maxDocumentExcerpt {
			text = text[:maxDocumentExcerpt]
		}
		fmt.Fprintf(&b, "\n\nDeal documents:\n%s", text)
	}
	return b.String()
}

func sortedPriorNames(prior map[string]Payload) []string {
	names := make([]string, 0, len(prior))
	for name := range prior {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
