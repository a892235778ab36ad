package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/llm"
	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/provider"
)

// Synthesizer writes the final Markdown report from the verified material.
// It is the only step producing free text instead of structured JSON.
type Synthesizer struct {
	deps Deps
}

func NewSynthesizer(deps Deps) *Synthesizer { return &Synthesizer{deps: deps} }

func (s *Synthesizer) Name() string { return StepSynthesizer }

func (s *Synthesizer) Run(ctx context.Context, st *state.ResearchState) (state.Patch, error) {
	events.Emit(s.deps.Emit, StepSynthesizer, "started", map[string]interface{}{
		"verified_facts": len(st.VerifiedFacts),
		"risk_flags":     len(st.RiskFlags),
	})

	phasesCompleted := st.CurrentPhase
	if phasesCompleted > len(st.ResearchPlan) {
		phasesCompleted = len(st.ResearchPlan)
	}

	prompt := fmt.Sprintf(synthesizerPrompt,
		st.TargetName,
		st.TargetContext,
		jsonTrunc(st.VerifiedFacts, 30000),
		jsonTrunc(st.Entities, 15000),
		jsonTrunc(st.RiskFlags, 15000),
		jsonTrunc(st.UnverifiedClaims, 10000),
		len(st.SearchQueriesExecuted),
		len(st.URLsVisited),
		phasesCompleted,
	)

	start := time.Now()
	report, err := s.deps.Gateway.Complete(ctx, llm.TaskSynthesizer, []provider.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesizer: %w", err)
	}
	if report == "" {
		return nil, fmt.Errorf("synthesizer: empty report")
	}

	audit := newAudit(s.deps, StepSynthesizer, "write_report", "",
		fmt.Sprintf("Report of %d characters", len(report)), time.Since(start))

	events.Emit(s.deps.Emit, StepSynthesizer, "complete", map[string]interface{}{
		"report_chars": len(report),
	})

	return state.Patch{
		state.FieldFinalReport: report,
		state.FieldAuditLog:    []state.AuditEntry{audit},
	}, nil
}
