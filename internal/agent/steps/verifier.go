package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/llm"
	"github.com/arguslabs/argus/internal/agent/state"
)

// Verifier independently cross-checks the facts extracted since its last
// invocation. It operates on a delta cursor so a fact is never verified twice.
type Verifier struct {
	deps Deps
}

func NewVerifier(deps Deps) *Verifier { return &Verifier{deps: deps} }

func (v *Verifier) Name() string { return StepVerifier }

type verificationSubmission struct {
	VerifiedFacts    []state.VerifiedFact  `json:"verified_facts"`
	UnverifiedClaims []string              `json:"unverified_claims"`
	Contradictions   []state.Contradiction `json:"contradictions"`
}

func (v *Verifier) Run(ctx context.Context, st *state.ResearchState) (state.Patch, error) {
	cursor := st.FactsVerifiedCount
	if cursor > len(st.ExtractedFacts) {
		cursor = len(st.ExtractedFacts)
	}
	newFacts := st.ExtractedFacts[cursor:]

	if len(newFacts) == 0 {
		v.deps.logf("verifier: no new facts since cursor %d, marking phase verified", cursor)
		events.Emit(v.deps.Emit, StepVerifier, "skipped", map[string]interface{}{"reason": "no new facts"})
		return state.Patch{state.FieldPhaseVerified: true}, nil
	}

	events.Emit(v.deps.Emit, StepVerifier, "started", map[string]interface{}{
		"facts_to_verify": len(newFacts),
		"phase":           st.CurrentPhase,
	})

	budget := v.deps.Research.MaxVerificationSearches
	if budget <= 0 {
		budget = 10
	}
	system := fmt.Sprintf(verifierSystem, st.TargetName, st.TargetContext, st.SupervisorInstructions, budget)
	user := "Verify these facts:\n" + jsonTrunc(newFacts, 20000)

	start := time.Now()
	var verification verificationSubmission
	loop, err := v.deps.runToolLoop(ctx, llm.TaskVerifier, system, user,
		v.deps.Research.ToolLoopLimit, budget, &verification)

	var errEntries []state.ErrorEntry
	if err != nil {
		if !errors.Is(err, ErrNoSubmission) {
			return nil, fmt.Errorf("verifier: %w", err)
		}
		// Without a structured submission no fact can be promoted to
		// verified. Downgrade everything in the delta to unverified claims.
		v.deps.logf("verifier ended without a submission, downgrading %d facts to unverified", len(newFacts))
		verification = verificationSubmission{}
		for _, f := range newFacts {
			verification.UnverifiedClaims = append(verification.UnverifiedClaims, f.Fact)
		}
		errEntries = append(errEntries, state.ErrorEntry{
			Node:      StepVerifier,
			Message:   err.Error(),
			Timestamp: nowISO(),
		})
	}

	audit := newAudit(v.deps, StepVerifier, "verify_facts",
		fmt.Sprintf("%d new facts", len(newFacts)),
		fmt.Sprintf("%d verified, %d unverified, %d contradictions, %d searches",
			len(verification.VerifiedFacts), len(verification.UnverifiedClaims),
			len(verification.Contradictions), loop.SearchesRun),
		time.Since(start))

	patch := state.Patch{
		state.FieldVerifiedFacts:         verification.VerifiedFacts,
		state.FieldUnverifiedClaims:      verification.UnverifiedClaims,
		state.FieldContradictions:        verification.Contradictions,
		state.FieldSearchQueriesExecuted: loop.QueriesRun,
		state.FieldURLsVisited:           loop.URLsScraped,
		state.FieldFactsVerifiedCount:    cursor + len(newFacts),
		state.FieldPhaseVerified:         true,
		state.FieldAuditLog:              []state.AuditEntry{audit},
	}
	if len(errEntries) > 0 {
		patch[state.FieldErrors] = errEntries
	}

	events.Emit(v.deps.Emit, StepVerifier, "complete", map[string]interface{}{
		"verified":       len(verification.VerifiedFacts),
		"unverified":     len(verification.UnverifiedClaims),
		"contradictions": len(verification.Contradictions),
	})
	return patch, nil
}
