package orchestrator

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
)

func desc(name string, deps ...string) agents.Descriptor {
	return agents.Descriptor{
		Name:       name,
		DependsOn:  deps,
		Complexity: agents.ComplexitySimple,
		Timeout:    time.Second,
	}
}

func TestResolveTiersIndependentAgentsShareOneTier(t *testing.T) {
	tiers, err := ResolveTiers([]agents.Descriptor{
		desc("market_analysis"),
		desc("team_analysis"),
		desc("financial_analysis"),
	}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := [][]string{{"financial_analysis", "market_analysis", "team_analysis"}}
	if !reflect.DeepEqual(tiers, want) {
		t.Fatalf("tiers = %v, want %v", tiers, want)
	}
}

func TestResolveTiersLayersByDependencyDepth(t *testing.T) {
	tiers, err := ResolveTiers([]agents.Descriptor{
		desc("team_analysis"),
		desc("market_analysis"),
		desc("competition_analysis", "market_analysis"),
		desc("quick_verdict", "team_analysis", "competition_analysis"),
	}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := [][]string{
		{"market_analysis", "team_analysis"},
		{"competition_analysis"},
		{"quick_verdict"},
	}
	if !reflect.DeepEqual(tiers, want) {
		t.Fatalf("tiers = %v, want %v", tiers, want)
	}
}

func TestResolveTiersDeterministicOrder(t *testing.T) {
	input := []agents.Descriptor{
		desc("zeta"),
		desc("alpha"),
		desc("mid", "zeta", "alpha"),
	}
	first, err := ResolveTiers(input, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := ResolveTiers(input, nil)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("plan changed between runs: %v vs %v", first, again)
		}
	}
	if first[0][0] != "alpha" || first[0][1] != "zeta" {
		t.Fatalf("tier not sorted: %v", first[0])
	}
}

func TestResolveTiersCompletedSatisfiesWithoutScheduling(t *testing.T) {
	tiers, err := ResolveTiers([]agents.Descriptor{
		desc("risk_assessment", "team_analysis", "financial_analysis"),
	}, map[string]struct{}{
		"team_analysis":      {},
		"financial_analysis": {},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := [][]string{{"risk_assessment"}}
	if !reflect.DeepEqual(tiers, want) {
		t.Fatalf("tiers = %v, want %v", tiers, want)
	}
}

func TestResolveTiersUnresolvableDependency(t *testing.T) {
	_, err := ResolveTiers([]agents.Descriptor{
		desc("quick_verdict", "nonexistent"),
	}, nil)
	var unresolvable *UnresolvableDependencyError
	if !errors.As(err, &unresolvable) {
		t.Fatalf("expected UnresolvableDependencyError, got %v", err)
	}
	if unresolvable.Agent != "quick_verdict" || unresolvable.Missing != "nonexistent" {
		t.Fatalf("unexpected error detail: %+v", unresolvable)
	}
}

func TestResolveTiersCycle(t *testing.T) {
	_, err := ResolveTiers([]agents.Descriptor{
		desc("a", "b"),
		desc("b", "c"),
		desc("c", "a"),
	}, nil)
	var cycle *DependencyCycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected DependencyCycleError, got %v", err)
	}
	if cycle.Member == "" {
		t.Fatal("expected cycle member to be named")
	}
}

func TestResolveTiersCycleBehindValidAgents(t *testing.T) {
	// Agents outside the cycle still resolve; the cycle fails the run.
	_, err := ResolveTiers([]agents.Descriptor{
		desc("root"),
		desc("x", "y"),
		desc("y", "x"),
	}, nil)
	var cycle *DependencyCycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected DependencyCycleError, got %v", err)
	}
}

func TestResolveTiersEmptyInput(t *testing.T) {
	tiers, err := ResolveTiers(nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(tiers) != 0 {
		t.Fatalf("expected no tiers, got %v", tiers)
	}
}
