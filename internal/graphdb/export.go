package graphdb

import (
	"context"
	"fmt"
	"strings"
)

// GraphNode is one node in an exported subgraph.
type GraphNode struct {
	ID         string                 `json:"id"`
	Labels     []string               `json:"labels"`
	Properties map[string]interface{} `json:"properties"`
}

// GraphEdge is one relationship in an exported subgraph.
type GraphEdge struct {
	Source     string                 `json:"source"`
	Target     string                 `json:"target"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

// Subgraph is the JSON shape served by the graph export endpoint.
type Subgraph struct {
	ResearchID string      `json:"research_id"`
	Nodes      []GraphNode `json:"nodes"`
	Edges      []GraphEdge `json:"edges"`
}

// ResearchSubgraph exports every node and edge tagged with the research ID.
func (g *Graph) ResearchSubgraph(ctx context.Context, researchID string) (*Subgraph, error) {
	result, err := g.run(ctx, subgraphForResearch, map[string]interface{}{"research_id": researchID})
	if err != nil {
		return nil, fmt.Errorf("export subgraph for %s: %w", researchID, err)
	}
	sub := &Subgraph{ResearchID: researchID, Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	if len(result.Records) == 0 {
		return sub, nil
	}
	rec := result.Records[0]

	if raw, ok := rec.Get("nodes"); ok {
		for _, item := range asSlice(raw) {
			m := asMap(item)
			if m == nil {
				continue
			}
			sub.Nodes = append(sub.Nodes, GraphNode{
				ID:         asString(m["id"]),
				Labels:     asStrings(m["labels"]),
				Properties: asMap(m["properties"]),
			})
		}
	}
	if raw, ok := rec.Get("edges"); ok {
		for _, item := range asSlice(raw) {
			m := asMap(item)
			if m == nil || m["type"] == nil {
				continue
			}
			sub.Edges = append(sub.Edges, GraphEdge{
				Source:     asString(m["source"]),
				Target:     asString(m["target"]),
				Type:       asString(m["type"]),
				Properties: asMap(m["properties"]),
			})
		}
	}
	return sub, nil
}

// EntityConnections summarizes the stored neighborhood of a named entity as
// readable text.
func (g *Graph) EntityConnections(ctx context.Context, name string) (string, error) {
	result, err := g.run(ctx, entityConnections, map[string]interface{}{"name": name})
	if err != nil {
		return "", fmt.Errorf("query connections for %q: %w", name, err)
	}
	if len(result.Records) == 0 {
		return fmt.Sprintf("No graph data found for %q", name), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Graph connections for %q:\n", name)
	for _, rec := range result.Records {
		relType, _ := rec.Get("rel_type")
		target, _ := rec.Get("target")
		labels, _ := rec.Get("target_labels")
		fmt.Fprintf(&b, "  -[%s]-> %s (%s)\n",
			asString(relType), asString(target), strings.Join(asStrings(labels), ", "))
	}
	return b.String(), nil
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asStrings(v interface{}) []string {
	items := asSlice(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
