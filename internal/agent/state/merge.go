package state

import "fmt"

// Field names a patchable state field. Steps build patches keyed by these
// constants; the driver applies them through the merge policy table below.
type Field string

const (
	FieldSupervisorInstructions Field = "supervisor_instructions"
	FieldResearchPlan           Field = "research_plan"
	FieldCurrentPhase           Field = "current_phase"
	FieldMaxPhases              Field = "max_phases"
	FieldDynamicPhases          Field = "dynamic_phases"
	FieldPhaseComplete          Field = "phase_complete"
	FieldPendingQueries         Field = "pending_queries"
	FieldPhaseSearched          Field = "current_phase_searched"
	FieldPhaseVerified          Field = "current_phase_verified"
	FieldPhaseRiskAssessed      Field = "current_phase_risk_assessed"
	FieldFactsVerifiedCount     Field = "facts_verified_count"
	FieldRiskAssessedFactsCount Field = "risk_assessed_facts_count"
	FieldSearchQueriesExecuted  Field = "search_queries_executed"
	FieldURLsVisited            Field = "urls_visited"
	FieldExtractedFacts         Field = "extracted_facts"
	FieldEntities               Field = "entities"
	FieldRelationships          Field = "relationships"
	FieldContradictions         Field = "contradictions"
	FieldVerifiedFacts          Field = "verified_facts"
	FieldUnverifiedClaims       Field = "unverified_claims"
	FieldRiskFlags              Field = "risk_flags"
	FieldOverallRiskScore       Field = "overall_risk_score"
	FieldGraphNodesCreated      Field = "graph_nodes_created"
	FieldGraphRelsCreated       Field = "graph_relationships_created"
	FieldFinalReport            Field = "final_report"
	FieldIterationCount         Field = "iteration_count"
	FieldErrors                 Field = "errors"
	FieldAuditLog               Field = "audit_log"
)

// Patch is a partial state update. A step signals "no change" for a field by
// omitting the key entirely; an explicitly empty value is applied as such.
type Patch map[Field]interface{}

type mergePolicy int

const (
	policyOverwrite mergePolicy = iota
	policyAppend
	policyUnion
)

var mergePolicies = map[Field]mergePolicy{
	FieldSupervisorInstructions: policyOverwrite,
	FieldResearchPlan:           policyOverwrite,
	FieldCurrentPhase:           policyOverwrite,
	FieldMaxPhases:              policyOverwrite,
	FieldDynamicPhases:          policyOverwrite,
	FieldPhaseComplete:          policyOverwrite,
	FieldPendingQueries:         policyOverwrite,
	FieldPhaseSearched:          policyOverwrite,
	FieldPhaseVerified:          policyOverwrite,
	FieldPhaseRiskAssessed:      policyOverwrite,
	FieldFactsVerifiedCount:     policyOverwrite,
	FieldRiskAssessedFactsCount: policyOverwrite,
	FieldSearchQueriesExecuted:  policyAppend,
	FieldURLsVisited:            policyUnion,
	FieldExtractedFacts:         policyAppend,
	FieldEntities:               policyAppend,
	FieldRelationships:          policyAppend,
	FieldContradictions:         policyAppend,
	FieldVerifiedFacts:          policyAppend,
	FieldUnverifiedClaims:       policyAppend,
	FieldRiskFlags:              policyAppend,
	FieldOverallRiskScore:       policyOverwrite,
	FieldGraphNodesCreated:      policyAppend,
	FieldGraphRelsCreated:       policyAppend,
	FieldFinalReport:            policyOverwrite,
	FieldIterationCount:         policyOverwrite,
	FieldErrors:                 policyAppend,
	FieldAuditLog:               policyAppend,
}

// Apply merges a partial patch into the state using the per-field policy
// table. Unknown fields and mistyped values are rejected so a buggy step
// cannot silently corrupt the run.
func (s *ResearchState) Apply(p Patch) error {
	for field, value := range p {
		policy, ok := mergePolicies[field]
		if !ok {
			return fmt.Errorf("apply patch: unknown field %q", field)
		}
		if err := s.applyField(field, policy, value); err != nil {
			return fmt.Errorf("apply patch: field %q: %w", field, err)
		}
	}
	return nil
}

func (s *ResearchState) applyField(field Field, policy mergePolicy, value interface{}) error {
	switch field {
	case FieldSupervisorInstructions:
		return setString(&s.SupervisorInstructions, value)
	case FieldResearchPlan:
		v, ok := value.([]PhaseDescriptor)
		if !ok {
			return typeError(value, "[]state.PhaseDescriptor")
		}
		s.ResearchPlan = v
	case FieldCurrentPhase:
		return setInt(&s.CurrentPhase, value)
	case FieldMaxPhases:
		return setInt(&s.MaxPhases, value)
	case FieldDynamicPhases:
		return setBool(&s.DynamicPhases, value)
	case FieldPhaseComplete:
		return setBool(&s.PhaseComplete, value)
	case FieldPendingQueries:
		v, ok := value.([]string)
		if !ok {
			return typeError(value, "[]string")
		}
		s.PendingQueries = v
	case FieldPhaseSearched:
		return setBool(&s.PhaseSearched, value)
	case FieldPhaseVerified:
		return setBool(&s.PhaseVerified, value)
	case FieldPhaseRiskAssessed:
		return setBool(&s.PhaseRiskAssessed, value)
	case FieldFactsVerifiedCount:
		return setInt(&s.FactsVerifiedCount, value)
	case FieldRiskAssessedFactsCount:
		return setInt(&s.RiskAssessedFactsCount, value)
	case FieldSearchQueriesExecuted:
		v, ok := value.([]ExecutedQuery)
		if !ok {
			return typeError(value, "[]state.ExecutedQuery")
		}
		s.SearchQueriesExecuted = append(s.SearchQueriesExecuted, v...)
	case FieldURLsVisited:
		v, ok := value.([]string)
		if !ok {
			return typeError(value, "[]string")
		}
		if s.URLsVisited == nil {
			s.URLsVisited = make(URLSet)
		}
		s.URLsVisited.Add(v...)
	case FieldExtractedFacts:
		v, ok := value.([]Fact)
		if !ok {
			return typeError(value, "[]state.Fact")
		}
		s.ExtractedFacts = append(s.ExtractedFacts, v...)
	case FieldEntities:
		v, ok := value.([]Entity)
		if !ok {
			return typeError(value, "[]state.Entity")
		}
		s.Entities = append(s.Entities, v...)
	case FieldRelationships:
		v, ok := value.([]Relationship)
		if !ok {
			return typeError(value, "[]state.Relationship")
		}
		s.Relationships = append(s.Relationships, v...)
	case FieldContradictions:
		v, ok := value.([]Contradiction)
		if !ok {
			return typeError(value, "[]state.Contradiction")
		}
		s.Contradictions = append(s.Contradictions, v...)
	case FieldVerifiedFacts:
		v, ok := value.([]VerifiedFact)
		if !ok {
			return typeError(value, "[]state.VerifiedFact")
		}
		s.VerifiedFacts = append(s.VerifiedFacts, v...)
	case FieldUnverifiedClaims:
		v, ok := value.([]string)
		if !ok {
			return typeError(value, "[]string")
		}
		s.UnverifiedClaims = append(s.UnverifiedClaims, v...)
	case FieldRiskFlags:
		v, ok := value.([]RiskFlag)
		if !ok {
			return typeError(value, "[]state.RiskFlag")
		}
		s.RiskFlags = append(s.RiskFlags, v...)
	case FieldOverallRiskScore:
		v, ok := value.(float64)
		if !ok {
			return typeError(value, "float64")
		}
		score := v
		s.OverallRiskScore = &score
	case FieldGraphNodesCreated:
		v, ok := value.([]string)
		if !ok {
			return typeError(value, "[]string")
		}
		s.GraphNodesCreated = append(s.GraphNodesCreated, v...)
	case FieldGraphRelsCreated:
		v, ok := value.([]string)
		if !ok {
			return typeError(value, "[]string")
		}
		s.GraphRelationshipsCreated = append(s.GraphRelationshipsCreated, v...)
	case FieldFinalReport:
		return setString(&s.FinalReport, value)
	case FieldIterationCount:
		return setInt(&s.IterationCount, value)
	case FieldErrors:
		v, ok := value.([]ErrorEntry)
		if !ok {
			return typeError(value, "[]state.ErrorEntry")
		}
		s.Errors = append(s.Errors, v...)
	case FieldAuditLog:
		v, ok := value.([]AuditEntry)
		if !ok {
			return typeError(value, "[]state.AuditEntry")
		}
		s.AuditLog = append(s.AuditLog, v...)
	default:
		return fmt.Errorf("no merge handler for policy %d", policy)
	}
	return nil
}

func setString(dst *string, value interface{}) error {
	v, ok := value.(string)
	if !ok {
		return typeError(value, "string")
	}
	*dst = v
	return nil
}

func setInt(dst *int, value interface{}) error {
	v, ok := value.(int)
	if !ok {
		return typeError(value, "int")
	}
	*dst = v
	return nil
}

func setBool(dst *bool, value interface{}) error {
	v, ok := value.(bool)
	if !ok {
		return typeError(value, "bool")
	}
	*dst = v
	return nil
}

func typeError(value interface{}, want string) error {
	return fmt.Errorf("got %T, want %s", value, want)
}
