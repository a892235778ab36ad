package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/internal/agent/steps"
	"github.com/arguslabs/argus/provider"
)

type fakeDelegate struct {
	reply string
	err   error
	calls int
}

func (f *fakeDelegate) Complete(_ context.Context, _ string, _ []provider.Message) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeDelegate) CompleteJSON(_ context.Context, _ string, _ []provider.Message, out interface{}) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.reply), out)
}

func (f *fakeDelegate) LastUsage() (provider.Usage, float64, string) {
	return provider.Usage{TotalTokens: 50}, 0.0005, "test-model"
}

func baseState() *state.ResearchState {
	st := state.New("res-1", "Marcus Halvorsen", "Fund manager", []string{"background"}, 3, false)
	return st
}

func TestRouteByRulesTable(t *testing.T) {
	score := 0.3
	cases := []struct {
		name string
		mod  func(st *state.ResearchState)
		want string
		rule int
	}{
		{"no plan", func(st *state.ResearchState) {}, steps.StepPlanner, 1},
		{"plan no queries not searched", func(st *state.ResearchState) {
			st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}}
			st.CurrentPhase = 1
		}, steps.StepQueryRefiner, 2},
		{"pending queries", func(st *state.ResearchState) {
			st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}}
			st.CurrentPhase = 1
			st.PendingQueries = []string{"q"}
		}, steps.StepSearchAnalyze, 3},
		{"searched with enough facts", func(st *state.ResearchState) {
			st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}}
			st.CurrentPhase = 1
			st.PhaseSearched = true
			for i := 0; i < 5; i++ {
				st.ExtractedFacts = append(st.ExtractedFacts, state.Fact{Fact: fmt.Sprintf("f%d", i)})
			}
		}, steps.StepVerifier, 5},
		{"verified not assessed", func(st *state.ResearchState) {
			st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}}
			st.CurrentPhase = 1
			st.PhaseSearched = true
			st.PhaseVerified = true
		}, steps.StepRiskAssessor, 6},
		{"searched with thin facts skips verifier", func(st *state.ResearchState) {
			st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}}
			st.CurrentPhase = 1
			st.PhaseSearched = true
			st.ExtractedFacts = []state.Fact{{Fact: "f1"}}
		}, steps.StepRiskAssessor, 6},
		{"assessed not complete", func(st *state.ResearchState) {
			st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}}
			st.CurrentPhase = 1
			st.PhaseSearched = true
			st.PhaseVerified = true
			st.PhaseRiskAssessed = true
			s := score
			st.OverallRiskScore = &s
		}, steps.StepGraphBuilder, 7},
		{"complete with phases remaining", func(st *state.ResearchState) {
			st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}, {PhaseNumber: 2}}
			st.CurrentPhase = 1
			st.MaxPhases = 2
			st.PhaseSearched = true
			st.PhaseVerified = true
			st.PhaseRiskAssessed = true
			st.PhaseComplete = true
		}, steps.StepQueryRefiner, 8},
		{"complete last phase static mode", func(st *state.ResearchState) {
			st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}}
			st.CurrentPhase = 1
			st.MaxPhases = 1
			st.PhaseSearched = true
			st.PhaseVerified = true
			st.PhaseRiskAssessed = true
			st.PhaseComplete = true
		}, steps.StepSynthesizer, 9},
		{"complete last phase dynamic mode", func(st *state.ResearchState) {
			st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}}
			st.CurrentPhase = 1
			st.MaxPhases = 1
			st.DynamicPhases = true
			st.PhaseSearched = true
			st.PhaseVerified = true
			st.PhaseRiskAssessed = true
			st.PhaseComplete = true
		}, steps.StepPhaseStrategist, 9},
		{"report exists", func(st *state.ResearchState) {
			st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}}
			st.FinalReport = "# Report"
		}, steps.Finish, 10},
	}

	for _, tc := range cases {
		st := baseState()
		tc.mod(st)
		got, rule := RouteByRules(st, 5)
		if got != tc.want || rule != tc.rule {
			t.Errorf("%s: got %q (rule %d), want %q (rule %d)", tc.name, got, rule, tc.want, tc.rule)
		}
	}
}

func TestTickCancellationBeatsDelegate(t *testing.T) {
	d := &fakeDelegate{reply: `{"next_agent":"planner","reasoning":"rule 1"}`}
	reg := NewRegistry()
	s := New(d, reg, 5, nil, log.New(io.Discard, "", 0))
	st := baseState()
	reg.Cancel(st.ResearchID)

	decision, patch, err := s.Tick(context.Background(), st)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if decision.NextAgent != steps.Finish {
		t.Fatalf("expected FINISH on cancellation, got %q", decision.NextAgent)
	}
	if d.calls != 0 {
		t.Fatalf("cancellation must be checked before any delegate call")
	}
	if reg.IsCancelled(st.ResearchID) {
		t.Fatalf("cancellation signal must be cleared once acted on")
	}
	if err := st.Apply(patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if st.IterationCount != 1 {
		t.Fatalf("expected iteration count 1, got %d", st.IterationCount)
	}
	last := st.AuditLog[len(st.AuditLog)-1]
	if last.Action != "cancelled" {
		t.Fatalf("expected cancelled audit entry, got %q", last.Action)
	}
}

func TestTickDelegateFailureTerminates(t *testing.T) {
	d := &fakeDelegate{err: fmt.Errorf("all delegates down")}
	s := New(d, NewRegistry(), 5, nil, log.New(io.Discard, "", 0))

	decision, _, err := s.Tick(context.Background(), baseState())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if decision.NextAgent != steps.Finish {
		t.Fatalf("expected FINISH on delegate failure, got %q", decision.NextAgent)
	}
}

func TestTickUnknownStepTerminates(t *testing.T) {
	d := &fakeDelegate{reply: `{"next_agent":"mystery_agent","reasoning":"?"}`}
	s := New(d, NewRegistry(), 5, nil, log.New(io.Discard, "", 0))

	decision, _, err := s.Tick(context.Background(), baseState())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if decision.NextAgent != steps.Finish {
		t.Fatalf("expected FINISH on unknown step, got %q", decision.NextAgent)
	}
}

func TestTickOffScriptDelegateFollowsRules(t *testing.T) {
	// State matches rule 1 but the delegate wants the synthesizer.
	d := &fakeDelegate{reply: `{"next_agent":"synthesizer","reasoning":"wrong","instructions_for_agent":"focus on funds"}`}
	s := New(d, NewRegistry(), 5, nil, log.New(io.Discard, "", 0))

	decision, patch, err := s.Tick(context.Background(), baseState())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if decision.NextAgent != steps.StepPlanner {
		t.Fatalf("expected rules to win, got %q", decision.NextAgent)
	}
	if patch[state.FieldSupervisorInstructions].(string) != "focus on funds" {
		t.Fatalf("delegate instructions must still propagate")
	}
}

func TestTickPhaseAdvanceResetsFlags(t *testing.T) {
	d := &fakeDelegate{reply: `{"next_agent":"query_refiner","reasoning":"rule 8"}`}
	s := New(d, NewRegistry(), 5, nil, log.New(io.Discard, "", 0))
	st := baseState()
	st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1}, {PhaseNumber: 2}}
	st.CurrentPhase = 1
	st.MaxPhases = 2
	st.PhaseSearched = true
	st.PhaseVerified = true
	st.PhaseRiskAssessed = true
	st.PhaseComplete = true
	st.FactsVerifiedCount = 4

	decision, patch, err := s.Tick(context.Background(), st)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if decision.NextAgent != steps.StepQueryRefiner {
		t.Fatalf("expected query_refiner, got %q", decision.NextAgent)
	}
	if err := st.Apply(patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if st.CurrentPhase != 2 {
		t.Fatalf("expected phase 2, got %d", st.CurrentPhase)
	}
	if st.PhaseComplete || st.PhaseSearched || st.PhaseVerified || st.PhaseRiskAssessed {
		t.Fatalf("phase flags must reset on advance")
	}
	if st.FactsVerifiedCount != 4 {
		t.Fatalf("delta cursors never reset, got %d", st.FactsVerifiedCount)
	}
}
