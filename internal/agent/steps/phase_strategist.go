package steps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/llm"
	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/provider"
)

// PhaseStrategist runs once after the initial phase in dynamic mode. It reads
// the surface-layer findings and decides whether the investigation goes
// deeper, and along which phases, or concludes with synthesis.
type PhaseStrategist struct {
	deps Deps
}

func NewPhaseStrategist(deps Deps) *PhaseStrategist { return &PhaseStrategist{deps: deps} }

func (p *PhaseStrategist) Name() string { return StepPhaseStrategist }

type strategyDecision struct {
	Action      string                  `json:"action"` // add_phases | synthesize
	PhasesToAdd []state.PhaseDescriptor `json:"phases_to_add"`
	Reasoning   string                  `json:"reasoning"`
}

func (p *PhaseStrategist) Run(ctx context.Context, st *state.ResearchState) (state.Patch, error) {
	events.Emit(p.deps.Emit, StepPhaseStrategist, "started", map[string]interface{}{
		"facts": len(st.ExtractedFacts),
		"flags": len(st.RiskFlags),
	})

	prompt := fmt.Sprintf(phaseStrategistPrompt,
		st.TargetName,
		st.TargetContext,
		strings.Join(st.ResearchObjectives, "; "),
		findingsSummary(st),
	)

	start := time.Now()
	var decision strategyDecision
	err := p.deps.Gateway.CompleteJSON(ctx, llm.TaskPhaseStrategist, []provider.Message{
		{Role: "user", Content: prompt},
	}, &decision)
	if err != nil {
		return nil, fmt.Errorf("phase strategist: %w", err)
	}

	if decision.Action != "add_phases" || len(decision.PhasesToAdd) == 0 {
		audit := newAudit(p.deps, StepPhaseStrategist, "decide_strategy", "",
			"Concluding with synthesis: "+decision.Reasoning, time.Since(start))
		events.Emit(p.deps.Emit, StepPhaseStrategist, "complete", map[string]interface{}{"action": "synthesize"})
		return state.Patch{
			state.FieldDynamicPhases: false,
			state.FieldAuditLog:      []state.AuditEntry{audit},
		}, nil
	}

	// Renumber contiguously after the existing plan and cap at four new
	// phases, whatever numbering the model proposed.
	added := decision.PhasesToAdd
	if len(added) > 4 {
		added = added[:4]
	}
	plan := append(append([]state.PhaseDescriptor{}, st.ResearchPlan...), added...)
	base := len(st.ResearchPlan) + 1
	for i := range plan[len(st.ResearchPlan):] {
		plan[len(st.ResearchPlan)+i].PhaseNumber = base + i
	}

	audit := newAudit(p.deps, StepPhaseStrategist, "decide_strategy", "",
		fmt.Sprintf("Added %d phases: %s", len(added), decision.Reasoning), time.Since(start))

	events.Emit(p.deps.Emit, StepPhaseStrategist, "complete", map[string]interface{}{
		"action":       "add_phases",
		"phases_added": len(added),
	})

	return state.Patch{
		state.FieldResearchPlan:      plan,
		state.FieldMaxPhases:         len(plan),
		state.FieldCurrentPhase:      base,
		state.FieldPhaseComplete:     false,
		state.FieldPhaseSearched:     false,
		state.FieldPhaseVerified:     false,
		state.FieldPhaseRiskAssessed: false,
		state.FieldDynamicPhases:     false,
		state.FieldPendingQueries:    plan[base-1].Queries,
		state.FieldAuditLog:          []state.AuditEntry{audit},
	}, nil
}

// findingsSummary condenses the run's findings into a bounded prompt block,
// keeping only the most recent items of each kind.
func findingsSummary(st *state.ResearchState) string {
	var b strings.Builder

	if len(st.ExtractedFacts) == 0 {
		b.WriteString("No significant facts were extracted in Phase 1. The target may have a minimal public footprint.\n")
	} else {
		b.WriteString("Facts:\n")
		for _, f := range tailFacts(st.ExtractedFacts, 15) {
			fmt.Fprintf(&b, "- [%s, conf %.2f] %s\n", f.Category, f.Confidence, f.Fact)
		}
	}

	if len(st.Entities) > 0 {
		b.WriteString("\nEntities:\n")
		ents := st.Entities
		if len(ents) > 10 {
			ents = ents[len(ents)-10:]
		}
		for _, e := range ents {
			fmt.Fprintf(&b, "- %s (%s)\n", e.Name, e.Type)
		}
	}

	if len(st.VerifiedFacts) > 0 {
		b.WriteString("\nVerified:\n")
		vf := st.VerifiedFacts
		if len(vf) > 8 {
			vf = vf[len(vf)-8:]
		}
		for _, f := range vf {
			fmt.Fprintf(&b, "- [%s, conf %.2f] %s\n", f.VerificationMethod, f.FinalConfidence, f.Fact)
		}
	}

	if len(st.RiskFlags) > 0 {
		b.WriteString("\nRisk flags:\n")
		flags := st.RiskFlags
		if len(flags) > 8 {
			flags = flags[len(flags)-8:]
		}
		for _, fl := range flags {
			fmt.Fprintf(&b, "- [%s/%s] %s\n", fl.Category, fl.Severity, fl.Flag)
		}
	}

	if len(st.UnverifiedClaims) > 0 {
		b.WriteString("\nUnverified claims:\n")
		claims := st.UnverifiedClaims
		if len(claims) > 5 {
			claims = claims[len(claims)-5:]
		}
		for _, c := range claims {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	return b.String()
}

func tailFacts(facts []state.Fact, n int) []state.Fact {
	if len(facts) > n {
		return facts[len(facts)-n:]
	}
	return facts
}
