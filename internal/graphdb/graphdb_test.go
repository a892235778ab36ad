package graphdb

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/arguslabs/argus/internal/agent/state"
)

func testGraph() *Graph {
	return &Graph{logger: log.New(io.Discard, "", 0)}
}

func TestMergeEntityRejectsBeforeAnyWrite(t *testing.T) {
	g := testGraph()

	if _, err := g.MergeEntity(context.Background(), state.Entity{Name: "X", Type: "alien"}, "res-1"); err == nil {
		t.Fatalf("expected unknown type error")
	}
	if _, err := g.MergeEntity(context.Background(), state.Entity{Type: "person"}, "res-1"); err == nil {
		t.Fatalf("expected missing name error")
	}
}

func TestMergeRelationshipRejectsMissingEndpoints(t *testing.T) {
	g := testGraph()
	if _, err := g.MergeRelationship(context.Background(), state.Relationship{SourceEntity: "A"}, "res-1"); err == nil {
		t.Fatalf("expected missing endpoint error")
	}
}

func TestEntityQueriesCoverEveryType(t *testing.T) {
	for _, etype := range []string{"person", "organization", "fund", "location", "event", "document"} {
		q, ok := mergeEntityQueries[etype]
		if !ok {
			t.Fatalf("no merge query for %q", etype)
		}
		if !strings.Contains(q, "MERGE") || !strings.Contains(q, "research_ids") {
			t.Fatalf("query for %q must be an idempotent merge tagging research_ids", etype)
		}
	}
	if !strings.Contains(mergeEntityQueries["document"], "{url: $url}") {
		t.Fatalf("documents must be keyed by url")
	}
}

func TestTypedRelationshipSet(t *testing.T) {
	want := []string{
		"WORKS_AT", "OWNS", "BOARD_MEMBER_OF", "ASSOCIATED_WITH", "LITIGATED",
		"MANAGES", "INVESTED_IN", "LOCATED_IN", "MENTIONED_IN",
	}
	if len(typedRelationships) != len(want) {
		t.Fatalf("expected %d typed relationships, got %d", len(want), len(typedRelationships))
	}
	for _, relType := range want {
		q, ok := typedRelationships[relType]
		if !ok {
			t.Fatalf("missing typed query for %s", relType)
		}
		if !strings.Contains(q, "[r:"+relType+"]") {
			t.Fatalf("query for %s must merge its own label: %s", relType, q)
		}
	}
	if !strings.Contains(mergeAssociatedFallback, "rel_subtype") {
		t.Fatalf("fallback must preserve the original type as rel_subtype")
	}
}
