package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/llm"
	"github.com/arguslabs/argus/internal/agent/state"
)

// SearchAnalyze drains a batch of pending queries through the research tool
// loop and extracts structured findings from what it reads.
type SearchAnalyze struct {
	deps Deps
}

func NewSearchAnalyze(deps Deps) *SearchAnalyze { return &SearchAnalyze{deps: deps} }

func (s *SearchAnalyze) Name() string { return StepSearchAnalyze }

type findingsSubmission struct {
	Facts         []state.Fact         `json:"facts"`
	Entities      []state.Entity       `json:"entities"`
	Relationships []state.Relationship `json:"relationships"`
}

func (s *SearchAnalyze) Run(ctx context.Context, st *state.ResearchState) (state.Patch, error) {
	if len(st.PendingQueries) == 0 {
		s.deps.logf("search_and_analyze invoked with empty queue, nothing to do")
		return state.Patch{}, nil
	}

	batchSize := s.deps.Research.MaxQueriesPerBatch
	if batchSize <= 0 {
		batchSize = 6
	}
	batch := st.PendingQueries
	if len(batch) > batchSize {
		batch = batch[:batchSize]
	}
	remaining := st.PendingQueries[len(batch):]

	events.Emit(s.deps.Emit, StepSearchAnalyze, "started", map[string]interface{}{
		"batch_size": len(batch),
		"deferred":   len(remaining),
		"phase":      st.CurrentPhase,
	})

	phase := st.CurrentPhaseInfo()
	phaseContext := fmt.Sprintf("Target: %s (%s)\nPhase %d: %s\n%s",
		st.TargetName, st.TargetContext, phase.PhaseNumber, phase.Name, phase.Description)

	var b strings.Builder
	b.WriteString("Execute each of these queries with a search action, scrape the most promising results, then submit your findings:\n")
	for i, q := range batch {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}

	system := fmt.Sprintf(searchAnalyzeSystem, phaseContext, st.SupervisorInstructions)

	start := time.Now()
	var findings findingsSubmission
	loop, err := s.deps.runToolLoop(ctx, llm.TaskSearchAnalyze, system, b.String(),
		s.deps.Research.ToolLoopLimit, len(batch)+2, &findings)

	patch := state.Patch{}
	var errEntries []state.ErrorEntry
	if err != nil {
		if !errors.Is(err, ErrNoSubmission) {
			return nil, fmt.Errorf("search and analyze: %w", err)
		}
		// No structured submission means no trustworthy findings. Record the
		// tool activity that did happen and move on with empty results.
		s.deps.logf("search_and_analyze ended without a submission after %d tool calls", loop.ToolCalls)
		findings = findingsSubmission{}
		errEntries = append(errEntries, state.ErrorEntry{
			Node:      StepSearchAnalyze,
			Message:   err.Error(),
			Timestamp: nowISO(),
		})
	}

	// Every batch query is recorded as executed regardless of what the model
	// actually searched; results_count reflects the extracted yield.
	executed := make([]state.ExecutedQuery, 0, len(batch))
	now := nowISO()
	for _, q := range batch {
		executed = append(executed, state.ExecutedQuery{
			Query:        q,
			Timestamp:    now,
			ResultsCount: len(findings.Facts),
		})
	}

	phaseSearched := len(remaining) == 0

	audit := newAudit(s.deps, StepSearchAnalyze, "search_and_extract",
		fmt.Sprintf("%d queries", len(batch)),
		fmt.Sprintf("%d facts, %d entities, %d relationships, %d searches, %d scrapes",
			len(findings.Facts), len(findings.Entities), len(findings.Relationships),
			loop.SearchesRun, len(loop.URLsScraped)),
		time.Since(start))

	patch[state.FieldSearchQueriesExecuted] = executed
	patch[state.FieldURLsVisited] = loop.URLsScraped
	patch[state.FieldPendingQueries] = remaining
	patch[state.FieldExtractedFacts] = findings.Facts
	patch[state.FieldEntities] = findings.Entities
	patch[state.FieldRelationships] = findings.Relationships
	patch[state.FieldPhaseSearched] = phaseSearched
	patch[state.FieldAuditLog] = []state.AuditEntry{audit}
	if len(errEntries) > 0 {
		patch[state.FieldErrors] = errEntries
	}

	events.Emit(s.deps.Emit, StepSearchAnalyze, "complete", map[string]interface{}{
		"facts_extracted": len(findings.Facts),
		"entities_found":  len(findings.Entities),
		"phase_searched":  phaseSearched,
	})
	return patch, nil
}
