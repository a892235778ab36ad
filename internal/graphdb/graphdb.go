package graphdb

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/internal/agent/state"
)

// Graph wraps the Neo4j driver for the identity graph. It is safe for
// concurrent use; the driver pools connections internally.
type Graph struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *log.Logger
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg config.Neo4jConfig, logger *log.Logger) (*Graph, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[GRAPH] ", log.LstdFlags)
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	logger.Printf("connected to neo4j at %s", cfg.URI)
	return &Graph{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// InitSchema creates constraints and indexes. Statements that fail (already
// present under a different name, insufficient privileges) are logged and
// skipped; the graph works without them, just slower.
func (g *Graph) InitSchema(ctx context.Context) {
	for _, stmt := range schemaStatements {
		if _, err := g.run(ctx, stmt, nil); err != nil {
			g.logger.Printf("schema statement skipped: %v", err)
		}
	}
	g.logger.Printf("neo4j schema initialized")
}

// MergeEntity upserts an entity node, returning "type:name" as the node key.
// research_id is appended to the node's research_ids without duplicates, so
// shared entities stay queryable per investigation.
func (g *Graph) MergeEntity(ctx context.Context, e state.Entity, researchID string) (string, error) {
	etype := strings.ToLower(e.Type)
	query, ok := mergeEntityQueries[etype]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", e.Type)
	}
	if e.Name == "" {
		return "", fmt.Errorf("entity has no name")
	}

	props := make(map[string]interface{}, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		props[k] = v
	}
	if len(e.Sources) > 0 {
		props["source_urls"] = e.Sources
	}

	params := map[string]interface{}{
		"properties":  props,
		"research_id": researchID,
	}
	if etype == "document" {
		url := e.Attributes["url"]
		if url == "" {
			url = e.Name
		}
		params["url"] = url
	} else {
		params["name"] = e.Name
	}

	if _, err := g.run(ctx, query, params); err != nil {
		return "", fmt.Errorf("merge %s %q: %w", etype, e.Name, err)
	}
	return etype + ":" + e.Name, nil
}

// MergeRelationship upserts an edge between two named nodes. Known types get
// their own relationship label; unknown types collapse to ASSOCIATED_WITH
// with the original type kept as rel_subtype.
func (g *Graph) MergeRelationship(ctx context.Context, r state.Relationship, researchID string) (string, error) {
	if r.SourceEntity == "" || r.TargetEntity == "" {
		return "", fmt.Errorf("relationship missing endpoints")
	}
	relType := strings.ToUpper(r.RelationshipType)
	if relType == "" {
		relType = "ASSOCIATED_WITH"
	}

	params := map[string]interface{}{
		"from_name": r.SourceEntity,
		"to_name":   r.TargetEntity,
		"properties": map[string]interface{}{
			"confidence":  r.Confidence,
			"evidence":    r.Evidence,
			"source_url":  r.SourceURL,
			"research_id": researchID,
		},
	}

	query, ok := typedRelationships[relType]
	if !ok {
		g.logger.Printf("unknown relationship type %q, falling back to ASSOCIATED_WITH", relType)
		query = mergeAssociatedFallback
		params["rel_type"] = relType
	}

	if _, err := g.run(ctx, query, params); err != nil {
		return "", fmt.Errorf("merge relationship %s-[%s]->%s: %w", r.SourceEntity, relType, r.TargetEntity, err)
	}
	return fmt.Sprintf("%s-[%s]->%s", r.SourceEntity, relType, r.TargetEntity), nil
}

func (g *Graph) run(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, g.driver, query, params,
		neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(g.database))
}
