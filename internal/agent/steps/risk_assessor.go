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

// RiskAssessor scans the newly verified findings for red flags. Like the
// verifier it works on a delta cursor and never re-assesses old material.
type RiskAssessor struct {
	deps Deps
}

func NewRiskAssessor(deps Deps) *RiskAssessor { return &RiskAssessor{deps: deps} }

func (r *RiskAssessor) Name() string { return StepRiskAssessor }

type riskSchema struct {
	RiskFlags        []state.RiskFlag `json:"risk_flags"`
	OverallRiskScore float64          `json:"overall_risk_score"`
	Summary          string           `json:"summary"`
}

func (r *RiskAssessor) Run(ctx context.Context, st *state.ResearchState) (state.Patch, error) {
	cursor := st.RiskAssessedFactsCount

	// Primary input is the verified-fact delta. When verification produced
	// nothing for this phase, fall back to the raw facts the verifier already
	// consumed so risk signals in thin phases are not silently dropped.
	var findings interface{}
	var deltaLen int
	if cursor < len(st.VerifiedFacts) {
		delta := st.VerifiedFacts[cursor:]
		findings, deltaLen = delta, len(delta)
	} else if cursor < st.FactsVerifiedCount && cursor < len(st.ExtractedFacts) {
		end := st.FactsVerifiedCount
		if end > len(st.ExtractedFacts) {
			end = len(st.ExtractedFacts)
		}
		delta := st.ExtractedFacts[cursor:end]
		findings, deltaLen = delta, len(delta)
		events.Emit(r.deps.Emit, StepRiskAssessor, "fallback", map[string]interface{}{
			"reason": "no verified facts in delta, assessing raw facts",
		})
	}

	if deltaLen == 0 {
		r.deps.logf("risk_assessor: no new findings since cursor %d, marking phase assessed", cursor)
		events.Emit(r.deps.Emit, StepRiskAssessor, "skipped", map[string]interface{}{"reason": "no new findings"})
		return state.Patch{state.FieldPhaseRiskAssessed: true}, nil
	}

	events.Emit(r.deps.Emit, StepRiskAssessor, "started", map[string]interface{}{
		"findings_to_assess": deltaLen,
		"phase":              st.CurrentPhase,
	})

	prompt := fmt.Sprintf(riskAssessorPrompt,
		st.TargetName,
		st.TargetContext,
		jsonTrunc(st.RiskFlags, 10000),
		jsonTrunc(findings, 20000),
		jsonTrunc(st.Relationships, 8000),
	)

	start := time.Now()
	var assessment riskSchema
	err := r.deps.Gateway.CompleteJSON(ctx, llm.TaskRiskAssessor, []provider.Message{
		{Role: "user", Content: prompt},
	}, &assessment)
	if err != nil {
		return nil, fmt.Errorf("risk assessor: %w", err)
	}

	audit := newAudit(r.deps, StepRiskAssessor, "assess_risk",
		fmt.Sprintf("%d new findings", deltaLen),
		fmt.Sprintf("%d new flags, overall score %.2f", len(assessment.RiskFlags), assessment.OverallRiskScore),
		time.Since(start))

	events.Emit(r.deps.Emit, StepRiskAssessor, "complete", map[string]interface{}{
		"new_flags":  len(assessment.RiskFlags),
		"risk_score": assessment.OverallRiskScore,
	})

	return state.Patch{
		state.FieldRiskFlags:              assessment.RiskFlags,
		state.FieldOverallRiskScore:       assessment.OverallRiskScore,
		state.FieldRiskAssessedFactsCount: cursor + deltaLen,
		state.FieldPhaseRiskAssessed:      true,
		state.FieldAuditLog:               []state.AuditEntry{audit},
	}, nil
}
