package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/state"
)

// GraphBuilder flushes the accumulated entities and relationships into the
// identity graph. Writes are idempotent merges, so re-submitting material
// from earlier phases is harmless; individual write failures never abort the
// phase.
type GraphBuilder struct {
	deps Deps
}

func NewGraphBuilder(deps Deps) *GraphBuilder { return &GraphBuilder{deps: deps} }

func (g *GraphBuilder) Name() string { return StepGraphBuilder }

var knownEntityTypes = map[string]struct{}{
	"person":       {},
	"organization": {},
	"fund":         {},
	"location":     {},
	"event":        {},
	"document":     {},
}

func (g *GraphBuilder) Run(ctx context.Context, st *state.ResearchState) (state.Patch, error) {
	events.Emit(g.deps.Emit, StepGraphBuilder, "started", map[string]interface{}{
		"entities":      len(st.Entities),
		"relationships": len(st.Relationships),
		"phase":         st.CurrentPhase,
	})

	start := time.Now()
	var nodeKeys []string
	var relKeys []string
	var failures int

	for _, e := range st.Entities {
		if _, ok := knownEntityTypes[e.Type]; !ok {
			g.deps.logf("graph_builder: skipping entity %q with unknown type %q", e.Name, e.Type)
			continue
		}
		key, err := g.deps.Sink.MergeEntity(ctx, e, st.ResearchID)
		if err != nil {
			failures++
			g.deps.logf("graph_builder: merge entity %q failed: %v", e.Name, err)
			continue
		}
		nodeKeys = append(nodeKeys, key)
	}

	for _, r := range st.Relationships {
		key, err := g.deps.Sink.MergeRelationship(ctx, r, st.ResearchID)
		if err != nil {
			failures++
			g.deps.logf("graph_builder: merge relationship %s-[%s]->%s failed: %v",
				r.SourceEntity, r.RelationshipType, r.TargetEntity, err)
			continue
		}
		relKeys = append(relKeys, key)
	}

	audit := newAudit(g.deps, StepGraphBuilder, "build_graph",
		fmt.Sprintf("%d entities, %d relationships", len(st.Entities), len(st.Relationships)),
		fmt.Sprintf("%d nodes merged, %d relationships merged, %d failures",
			len(nodeKeys), len(relKeys), failures),
		time.Since(start))

	patch := state.Patch{
		state.FieldGraphNodesCreated: nodeKeys,
		state.FieldGraphRelsCreated:  relKeys,
		state.FieldPhaseComplete:     true,
		state.FieldAuditLog:          []state.AuditEntry{audit},
	}
	if failures > 0 {
		patch[state.FieldErrors] = []state.ErrorEntry{{
			Node:      StepGraphBuilder,
			Message:   fmt.Sprintf("%d graph writes failed", failures),
			Timestamp: nowISO(),
		}}
	}

	events.Emit(g.deps.Emit, StepGraphBuilder, "complete", map[string]interface{}{
		"nodes_merged":         len(nodeKeys),
		"relationships_merged": len(relKeys),
	})
	return patch, nil
}
