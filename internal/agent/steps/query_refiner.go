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

// QueryRefiner generates new search queries for the current phase, refined by
// the findings so far and filtered against everything already executed.
type QueryRefiner struct {
	deps Deps
}

func NewQueryRefiner(deps Deps) *QueryRefiner { return &QueryRefiner{deps: deps} }

func (q *QueryRefiner) Name() string { return StepQueryRefiner }

type refinedQueriesSchema struct {
	Queries   []string `json:"queries"`
	Reasoning string   `json:"reasoning"`
}

func (q *QueryRefiner) Run(ctx context.Context, st *state.ResearchState) (state.Patch, error) {
	events.Emit(q.deps.Emit, StepQueryRefiner, "started", map[string]interface{}{"phase": st.CurrentPhase})

	phase := st.CurrentPhaseInfo()

	executed := make([]string, 0, len(st.SearchQueriesExecuted))
	for _, eq := range st.SearchQueriesExecuted {
		executed = append(executed, eq.Query)
	}
	executedTail := executed
	if len(executedTail) > 20 {
		executedTail = executedTail[len(executedTail)-20:]
	}

	factsSummary := "No findings yet."
	if n := len(st.ExtractedFacts); n > 0 {
		tail := st.ExtractedFacts
		if n > 10 {
			tail = tail[n-10:]
		}
		var b strings.Builder
		for _, f := range tail {
			fmt.Fprintf(&b, "- %s\n", f.Fact)
		}
		factsSummary = b.String()
	}

	prompt := fmt.Sprintf(queryRefinerPrompt,
		st.TargetName,
		st.TargetContext,
		phase.PhaseNumber,
		phase.Name,
		phase.Description,
		jsonTrunc(phase.Queries, 4000),
		factsSummary,
		jsonTrunc(executedTail, 4000),
	)

	start := time.Now()
	var refined refinedQueriesSchema
	err := q.deps.Gateway.CompleteJSON(ctx, llm.TaskQueryRefiner, []provider.Message{
		{Role: "system", Content: "You are a search query generation specialist."},
		{Role: "user", Content: prompt},
	}, &refined)
	if err != nil {
		return nil, fmt.Errorf("query refiner: %w", err)
	}

	// Exact-string filter: never re-emit a query that already ran.
	seen := make(map[string]struct{}, len(executed))
	for _, e := range executed {
		seen[e] = struct{}{}
	}
	newQueries := make([]string, 0, len(refined.Queries))
	for _, query := range refined.Queries {
		if _, dup := seen[query]; dup || strings.TrimSpace(query) == "" {
			continue
		}
		seen[query] = struct{}{}
		newQueries = append(newQueries, query)
	}

	audit := newAudit(q.deps, StepQueryRefiner, "generate_queries", "",
		fmt.Sprintf("Generated %d new queries for phase %d", len(newQueries), st.CurrentPhase),
		time.Since(start))

	events.Emit(q.deps.Emit, StepQueryRefiner, "complete", map[string]interface{}{"queries_generated": len(newQueries)})

	return state.Patch{
		state.FieldPendingQueries: newQueries,
		state.FieldAuditLog:       []state.AuditEntry{audit},
	}, nil
}
