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

// Planner generates the phased research plan for the target.
type Planner struct {
	deps Deps
}

func NewPlanner(deps Deps) *Planner { return &Planner{deps: deps} }

func (p *Planner) Name() string { return StepPlanner }

type planSchema struct {
	Phases                []state.PhaseDescriptor `json:"phases"`
	TotalEstimatedQueries int                     `json:"total_estimated_queries"`
	Rationale             string                  `json:"rationale"`
}

func (p *Planner) Run(ctx context.Context, st *state.ResearchState) (state.Patch, error) {
	events.Emit(p.deps.Emit, StepPlanner, "started", map[string]interface{}{"max_phases": st.MaxPhases})

	prompt := fmt.Sprintf(plannerPrompt,
		st.TargetName,
		st.TargetContext,
		strings.Join(st.ResearchObjectives, ", "),
		st.MaxPhases,
	)

	start := time.Now()
	var plan planSchema
	err := p.deps.Gateway.CompleteJSON(ctx, llm.TaskPlanner, []provider.Message{
		{Role: "system", Content: prompt},
		{Role: "user", Content: "Generate the research plan now."},
	}, &plan)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	phases := plan.Phases
	if len(phases) > st.MaxPhases {
		p.deps.logf("planner generated %d phases, trimming to %d", len(phases), st.MaxPhases)
		phases = phases[:st.MaxPhases]
	}
	for i := range phases {
		phases[i].PhaseNumber = i + 1
	}

	audit := newAudit(p.deps, StepPlanner, "generate_plan", "",
		fmt.Sprintf("Generated %d-phase plan with %d queries", len(phases), plan.TotalEstimatedQueries),
		time.Since(start))

	events.Emit(p.deps.Emit, StepPlanner, "complete", map[string]interface{}{"phases": len(phases)})

	return state.Patch{
		state.FieldResearchPlan:      phases,
		state.FieldCurrentPhase:      1,
		state.FieldPhaseComplete:     false,
		state.FieldPhaseSearched:     false,
		state.FieldPhaseVerified:     false,
		state.FieldPhaseRiskAssessed: false,
		state.FieldAuditLog:          []state.AuditEntry{audit},
	}, nil
}
