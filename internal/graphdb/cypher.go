package graphdb

import "fmt"

// Parameterized Cypher templates for the identity graph. Every entity write
// is a MERGE keyed on the node's natural identifier, so re-submitting
// material from earlier phases is idempotent.

const (
	mergePerson = `
MERGE (p:Person {name: $name})
SET p += $properties, p.last_updated = datetime(),
    p.research_ids = [id IN coalesce(p.research_ids, []) WHERE id <> $research_id] + $research_id
RETURN p.name AS key`

	mergeOrganization = `
MERGE (o:Organization {name: $name})
SET o += $properties, o.last_updated = datetime(),
    o.research_ids = [id IN coalesce(o.research_ids, []) WHERE id <> $research_id] + $research_id
RETURN o.name AS key`

	mergeFund = `
MERGE (f:Fund {name: $name})
SET f += $properties, f.last_updated = datetime(),
    f.research_ids = [id IN coalesce(f.research_ids, []) WHERE id <> $research_id] + $research_id
RETURN f.name AS key`

	mergeLocation = `
MERGE (l:Location {name: $name})
SET l += $properties,
    l.research_ids = [id IN coalesce(l.research_ids, []) WHERE id <> $research_id] + $research_id
RETURN l.name AS key`

	mergeEvent = `
MERGE (e:Event {event_id: $name})
SET e += $properties, e.last_updated = datetime(),
    e.research_ids = [id IN coalesce(e.research_ids, []) WHERE id <> $research_id] + $research_id
RETURN e.event_id AS key`

	// Documents are keyed by URL, not name.
	mergeDocument = `
MERGE (d:Document {url: $url})
SET d += $properties,
    d.research_ids = [id IN coalesce(d.research_ids, []) WHERE id <> $research_id] + $research_id
RETURN d.url AS key`

	// Fallback for relationship types outside the typed set. The original
	// type survives as a property so nothing is silently flattened.
	mergeAssociatedFallback = `
MATCH (a {name: $from_name}), (b {name: $to_name})
MERGE (a)-[r:ASSOCIATED_WITH]->(b)
SET r += $properties, r.rel_subtype = $rel_type
RETURN type(r) AS key`

	subgraphForResearch = `
MATCH (n)
WHERE $research_id IN n.research_ids
OPTIONAL MATCH (n)-[r]->(m)
WHERE $research_id IN m.research_ids
RETURN
    collect(DISTINCT {id: elementId(n), labels: labels(n), properties: properties(n)}) AS nodes,
    collect(DISTINCT {source: elementId(n), target: elementId(m), type: type(r), properties: properties(r)}) AS edges`

	entityConnections = `
MATCH (n {name: $name})-[r]-(connected)
RETURN n.name AS source, type(r) AS rel_type,
       connected.name AS target, labels(connected) AS target_labels
LIMIT 50`
)

var mergeEntityQueries = map[string]string{
	"person":       mergePerson,
	"organization": mergeOrganization,
	"fund":         mergeFund,
	"location":     mergeLocation,
	"event":        mergeEvent,
	"document":     mergeDocument,
}

// typedRelationships is the closed set of relationship types the analyzer is
// instructed to produce. Anything else goes through the fallback template.
var typedRelationships = map[string]string{}

func init() {
	for _, relType := range []string{
		"WORKS_AT", "OWNS", "BOARD_MEMBER_OF", "ASSOCIATED_WITH", "LITIGATED",
		"MANAGES", "INVESTED_IN", "LOCATED_IN", "MENTIONED_IN",
	} {
		typedRelationships[relType] = fmt.Sprintf(
			"MATCH (a {name: $from_name}), (b {name: $to_name}) MERGE (a)-[r:%s]->(b) SET r += $properties RETURN type(r) AS key",
			relType)
	}
}

var schemaStatements = []string{
	"CREATE CONSTRAINT person_name IF NOT EXISTS FOR (p:Person) REQUIRE p.name IS UNIQUE",
	"CREATE CONSTRAINT org_name IF NOT EXISTS FOR (o:Organization) REQUIRE o.name IS UNIQUE",
	"CREATE CONSTRAINT fund_name IF NOT EXISTS FOR (f:Fund) REQUIRE f.name IS UNIQUE",
	"CREATE CONSTRAINT event_id IF NOT EXISTS FOR (e:Event) REQUIRE e.event_id IS UNIQUE",
	"CREATE CONSTRAINT location_name IF NOT EXISTS FOR (l:Location) REQUIRE l.name IS UNIQUE",
	"CREATE CONSTRAINT document_url IF NOT EXISTS FOR (d:Document) REQUIRE d.url IS UNIQUE",
	"CREATE INDEX person_search IF NOT EXISTS FOR (p:Person) ON (p.name)",
	"CREATE INDEX org_search IF NOT EXISTS FOR (o:Organization) ON (o.name)",
	"CREATE INDEX fund_search IF NOT EXISTS FOR (f:Fund) ON (f.name)",
}
