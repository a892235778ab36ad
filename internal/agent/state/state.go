package state

// ResearchState is the single shared record threaded through every step of a
// research run. It is owned exclusively by the run's driver loop and mutated
// only through Apply (see merge.go).
type ResearchState struct {
	// Input, set once at run start.
	ResearchID         string   `json:"research_id"`
	TargetName         string   `json:"target_name"`
	TargetContext      string   `json:"target_context"`
	ResearchObjectives []string `json:"research_objectives"`

	// Supervisor control.
	SupervisorInstructions string            `json:"supervisor_instructions"`
	ResearchPlan           []PhaseDescriptor `json:"research_plan,omitempty"`
	CurrentPhase           int               `json:"current_phase"`
	MaxPhases              int               `json:"max_phases"`
	DynamicPhases          bool              `json:"dynamic_phases"`
	PhaseComplete          bool              `json:"phase_complete"`
	PendingQueries         []string          `json:"pending_queries,omitempty"`

	// Per-phase progress flags, reset to false on every phase advance.
	// PhaseSearched implies both searched AND analyzed: search-and-analyze
	// sets it once the pending-query queue is drained and findings extracted.
	PhaseSearched     bool `json:"current_phase_searched"`
	PhaseVerified     bool `json:"current_phase_verified"`
	PhaseRiskAssessed bool `json:"current_phase_risk_assessed"`

	// Delta cursors: never reset, only advance.
	FactsVerifiedCount     int `json:"facts_verified_count"`
	RiskAssessedFactsCount int `json:"risk_assessed_facts_count"`

	// Search.
	SearchQueriesExecuted []ExecutedQuery `json:"search_queries_executed,omitempty"`
	URLsVisited           URLSet          `json:"urls_visited,omitempty"`

	// Findings (written by search-and-analyze).
	ExtractedFacts []Fact          `json:"extracted_facts,omitempty"`
	Entities       []Entity        `json:"entities,omitempty"`
	Relationships  []Relationship  `json:"relationships,omitempty"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`

	// Verification.
	VerifiedFacts    []VerifiedFact `json:"verified_facts,omitempty"`
	UnverifiedClaims []string       `json:"unverified_claims,omitempty"`

	// Risk.
	RiskFlags        []RiskFlag `json:"risk_flags,omitempty"`
	OverallRiskScore *float64   `json:"overall_risk_score,omitempty"`

	// Graph sink bookkeeping.
	GraphNodesCreated         []string `json:"graph_nodes_created,omitempty"`
	GraphRelationshipsCreated []string `json:"graph_relationships_created,omitempty"`

	// Output.
	FinalReport string `json:"final_report,omitempty"`

	// Meta and audit.
	IterationCount  int          `json:"iteration_count"`
	TotalTokensUsed int64        `json:"total_tokens_used"`
	TotalCostUSD    float64      `json:"total_cost_usd"`
	Errors          []ErrorEntry `json:"errors,omitempty"`
	AuditLog        []AuditEntry `json:"audit_log,omitempty"`
}

// New seeds a fresh state for a run. maxPhases is the planned phase count;
// when dynamic is true the run starts with a single phase and the phase
// strategist decides expansion after phase 1.
func New(researchID, targetName, targetContext string, objectives []string, maxPhases int, dynamic bool) *ResearchState {
	return &ResearchState{
		ResearchID:         researchID,
		TargetName:         targetName,
		TargetContext:      targetContext,
		ResearchObjectives: objectives,
		MaxPhases:          maxPhases,
		DynamicPhases:      dynamic,
		URLsVisited:        make(URLSet),
	}
}

// CurrentPhaseInfo returns the descriptor of the current phase, or a zero
// descriptor when the plan does not cover it.
func (s *ResearchState) CurrentPhaseInfo() PhaseDescriptor {
	idx := s.CurrentPhase - 1
	if idx < 0 || idx >= len(s.ResearchPlan) {
		return PhaseDescriptor{PhaseNumber: s.CurrentPhase}
	}
	return s.ResearchPlan[idx]
}

// HasPlan reports whether the planner has produced a research plan.
func (s *ResearchState) HasPlan() bool { return len(s.ResearchPlan) > 0 }

// HasReport reports whether the synthesizer has produced the final report.
func (s *ResearchState) HasReport() bool { return s.FinalReport != "" }
