package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
)

func TestContextBuilderSnapshotsRunInputs(t *testing.T) {
	b := &ContextBuilder{
		Deal:         deals.Deal{ID: "d1", CompanyName: "Acme Robotics"},
		DocumentText: "pitch deck text",
		Reference:    json.RawMessage(`{"comparables":[]}`),
		Facts:        json.RawMessage(`{"arr":120000}`),
	}

	prior := map[string]agents.Payload{
		"market_analysis": {Data: json.RawMessage(`{"score":70}`)},
	}
	ec := b.Build(prior)

	if ec.Deal.ID != "d1" || ec.DocumentText != "pitch deck text" {
		t.Fatalf("unexpected context: %+v", ec)
	}
	if string(ec.Reference) != `{"comparables":[]}` || string(ec.Facts) != `{"arr":120000}` {
		t.Fatalf("reference/facts not carried: %s %s", ec.Reference, ec.Facts)
	}
	if _, ok := ec.Dependency("market_analysis"); !ok {
		t.Fatal("prior payload missing")
	}
	if _, ok := ec.Dependency("team_analysis"); ok {
		t.Fatal("unexpected dependency present")
	}
}

func TestContextBuilderEmptyPrior(t *testing.T) {
	b := &ContextBuilder{Deal: deals.Deal{ID: "d1"}}
	ec := b.Build(nil)
	if len(ec.Prior) != 0 {
		t.Fatalf("expected empty prior, got %v", ec.Prior)
	}
}
