package supervisor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/llm"
	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/internal/agent/steps"
	"github.com/arguslabs/argus/provider"
)

// Decision is the routing verdict of one supervisor tick.
type Decision struct {
	NextAgent            string `json:"next_agent"`
	Reasoning            string `json:"reasoning"`
	InstructionsForAgent string `json:"instructions_for_agent"`
	Cancelled            bool   `json:"-"`
}

// Supervisor decides, once per tick, which specialist runs next. The rule
// table is deterministic; the delegate restates it with findings-aware
// instructions for the chosen specialist, and RouteByRules is both the
// prompt's contract and the authority when the delegate goes off script.
type Supervisor struct {
	gateway  steps.Delegator
	registry *Registry
	minFacts int
	emit     events.Sink
	logger   *log.Logger
}

func New(gateway steps.Delegator, registry *Registry, minFacts int, emit events.Sink, logger *log.Logger) *Supervisor {
	if minFacts <= 0 {
		minFacts = 5
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SUPERVISOR] ", log.LstdFlags)
	}
	return &Supervisor{gateway: gateway, registry: registry, minFacts: minFacts, emit: emit, logger: logger}
}

// RouteByRules evaluates the routing rule table against the state and returns
// the next step name with the number of the rule that matched. The table is
// strict first-match; every reachable state matches exactly one rule.
func RouteByRules(st *state.ResearchState, minFacts int) (next string, rule int) {
	switch {
	case st.HasReport():
		return steps.Finish, 10
	case !st.HasPlan():
		return steps.StepPlanner, 1
	case len(st.PendingQueries) == 0 && !st.PhaseSearched:
		return steps.StepQueryRefiner, 2
	case len(st.PendingQueries) > 0:
		return steps.StepSearchAnalyze, 3
	case st.PhaseSearched && len(st.ExtractedFacts) >= minFacts && !st.PhaseVerified:
		return steps.StepVerifier, 5
	case st.PhaseVerified && !st.PhaseRiskAssessed:
		return steps.StepRiskAssessor, 6
	case st.PhaseSearched && !st.PhaseVerified && !st.PhaseRiskAssessed:
		// Too few facts to warrant verification; assess what little there is
		// so the phase cannot stall.
		return steps.StepRiskAssessor, 6
	case st.PhaseRiskAssessed && !st.PhaseComplete:
		return steps.StepGraphBuilder, 7
	case st.PhaseComplete && st.CurrentPhase < st.MaxPhases:
		return steps.StepQueryRefiner, 8
	case st.PhaseComplete && st.DynamicPhases:
		return steps.StepPhaseStrategist, 9
	default:
		return steps.StepSynthesizer, 9
	}
}

// Tick produces the next routing decision plus the control patch to apply
// before the chosen step runs. A FINISH decision terminates the run.
func (s *Supervisor) Tick(ctx context.Context, st *state.ResearchState) (Decision, state.Patch, error) {
	// Cancellation wins over everything, checked before any delegate spend.
	if s.registry != nil && s.registry.IsCancelled(st.ResearchID) {
		s.registry.Clear(st.ResearchID)
		s.logger.Printf("research %s cancelled at iteration %d", st.ResearchID, st.IterationCount)
		events.Emit(s.emit, steps.StepSupervisor, "cancelled", map[string]interface{}{
			"iteration": st.IterationCount,
		})
		patch := state.Patch{
			state.FieldIterationCount: st.IterationCount + 1,
			state.FieldAuditLog: []state.AuditEntry{{
				Node:          steps.StepSupervisor,
				Action:        "cancelled",
				Timestamp:     time.Now().UTC().Format(time.RFC3339),
				OutputSummary: "Run cancelled by user request",
			}},
		}
		return Decision{NextAgent: steps.Finish, Reasoning: "cancelled by user", Cancelled: true}, patch, nil
	}

	ruled, rule := RouteByRules(st, s.minFacts)

	decision := Decision{NextAgent: ruled, Reasoning: fmt.Sprintf("rule %d", rule)}
	start := time.Now()
	if s.gateway != nil && ruled != steps.Finish {
		var delegated Decision
		err := s.gateway.CompleteJSON(ctx, llm.TaskSupervisor, []provider.Message{
			{Role: "user", Content: s.buildPrompt(st)},
		}, &delegated)
		switch {
		case err != nil:
			s.logger.Printf("supervisor delegate failed, terminating run: %v", err)
			decision = Decision{NextAgent: steps.Finish, Reasoning: fmt.Sprintf("supervisor delegate failed: %v", err)}
		case !knownStep(delegated.NextAgent):
			s.logger.Printf("supervisor delegate chose unknown step %q, terminating run", delegated.NextAgent)
			decision = Decision{NextAgent: steps.Finish, Reasoning: fmt.Sprintf("unknown step %q", delegated.NextAgent)}
		case delegated.NextAgent != ruled:
			// The rules are the contract; keep the delegate's instructions
			// but route where the table says.
			s.logger.Printf("supervisor delegate chose %q, rule %d says %q; following the rules",
				delegated.NextAgent, rule, ruled)
			decision.InstructionsForAgent = delegated.InstructionsForAgent
		default:
			decision = delegated
		}
	}

	audit := state.AuditEntry{
		Node:          steps.StepSupervisor,
		Action:        "route",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		OutputSummary: fmt.Sprintf("-> %s (%s)", decision.NextAgent, decision.Reasoning),
		DurationMS:    time.Since(start).Milliseconds(),
	}
	if s.gateway != nil {
		usage, cost, model := s.gateway.LastUsage()
		audit.ModelUsed = model
		audit.TokensConsumed = usage.TotalTokens
		audit.CostUSD = cost
	}

	patch := state.Patch{
		state.FieldIterationCount:         st.IterationCount + 1,
		state.FieldSupervisorInstructions: decision.InstructionsForAgent,
		state.FieldAuditLog:               []state.AuditEntry{audit},
	}

	// Rule 8 is the only place phase flags reset: advancing to the next
	// planned phase re-arms the whole per-phase pipeline.
	if decision.NextAgent == steps.StepQueryRefiner && st.PhaseComplete && st.CurrentPhase < st.MaxPhases {
		patch[state.FieldCurrentPhase] = st.CurrentPhase + 1
		patch[state.FieldPhaseComplete] = false
		patch[state.FieldPhaseSearched] = false
		patch[state.FieldPhaseVerified] = false
		patch[state.FieldPhaseRiskAssessed] = false
		s.logger.Printf("research %s advancing to phase %d/%d", st.ResearchID, st.CurrentPhase+1, st.MaxPhases)
	}

	events.Emit(s.emit, steps.StepSupervisor, "decision", map[string]interface{}{
		"next_agent": decision.NextAgent,
		"iteration":  st.IterationCount + 1,
	})
	return decision, patch, nil
}

func knownStep(name string) bool {
	switch name {
	case steps.StepPlanner, steps.StepQueryRefiner, steps.StepSearchAnalyze,
		steps.StepVerifier, steps.StepRiskAssessor, steps.StepGraphBuilder,
		steps.StepPhaseStrategist, steps.StepSynthesizer, steps.Finish:
		return true
	}
	return false
}

func (s *Supervisor) buildPrompt(st *state.ResearchState) string {
	return fmt.Sprintf(decisionPrompt,
		st.TargetName,
		st.TargetContext,
		strings.Join(st.ResearchObjectives, "; "),
		st.CurrentPhase,
		st.MaxPhases,
		st.DynamicPhases,
		st.PhaseSearched,
		st.PhaseVerified,
		st.PhaseRiskAssessed,
		st.PhaseComplete,
		len(st.ExtractedFacts),
		len(st.Entities),
		len(st.VerifiedFacts),
		len(st.RiskFlags),
		len(st.GraphNodesCreated),
		len(st.SearchQueriesExecuted),
		len(st.PendingQueries),
		st.IterationCount,
		st.HasPlan(),
		st.HasReport(),
	)
}
