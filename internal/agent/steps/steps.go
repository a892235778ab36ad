package steps

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/provider"
	"github.com/arguslabs/argus/tools/web_scrape"
	"github.com/arguslabs/argus/tools/web_search"
)

// Step node names. These are the values a supervisor decision routes on.
const (
	StepSupervisor      = "supervisor"
	StepPlanner         = "planner"
	StepQueryRefiner    = "query_refiner"
	StepSearchAnalyze   = "search_and_analyze"
	StepVerifier        = "verifier"
	StepRiskAssessor    = "risk_assessor"
	StepGraphBuilder    = "graph_builder"
	StepPhaseStrategist = "phase_strategist"
	StepSynthesizer     = "synthesizer"
	Finish              = "FINISH"
)

// Step is one specialist in the research pipeline. Run reads the shared state
// and returns a partial patch; it never mutates the state directly.
type Step interface {
	Name() string
	Run(ctx context.Context, st *state.ResearchState) (state.Patch, error)
}

// Delegator is the slice of the LLM gateway the steps need. Satisfied by
// *llm.Gateway and by scripted fakes in tests.
type Delegator interface {
	Complete(ctx context.Context, task string, messages []provider.Message) (string, error)
	CompleteJSON(ctx context.Context, task string, messages []provider.Message, out interface{}) error
	LastUsage() (provider.Usage, float64, string)
}

// EntitySink receives entities and relationships for the identity graph. The
// graph builder step depends only on this interface; the Neo4j implementation
// lives in internal/graphdb.
type EntitySink interface {
	MergeEntity(ctx context.Context, e state.Entity, researchID string) (string, error)
	MergeRelationship(ctx context.Context, r state.Relationship, researchID string) (string, error)
}

// Deps carries the shared dependencies injected into every step.
type Deps struct {
	Gateway  Delegator
	Searcher web_search.WebSearcher
	Scraper  web_scrape.WebScraper
	Sink     EntitySink
	Emit     events.Sink
	Research config.ResearchConfig
	Logger   *log.Logger
}

func (d Deps) logf(format string, args ...interface{}) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339) }

// newAudit builds an audit entry stamped with the gateway's last-call usage.
func newAudit(d Deps, node, action, inputSummary, outputSummary string, elapsed time.Duration) state.AuditEntry {
	entry := state.AuditEntry{
		Node:          node,
		Action:        action,
		Timestamp:     nowISO(),
		InputSummary:  inputSummary,
		OutputSummary: outputSummary,
		DurationMS:    elapsed.Milliseconds(),
	}
	if d.Gateway != nil {
		usage, cost, model := d.Gateway.LastUsage()
		entry.ModelUsed = model
		entry.TokensConsumed = usage.TotalTokens
		entry.CostUSD = cost
	}
	return entry
}

// jsonTrunc marshals v and truncates the result, keeping prompt sizes bounded.
func jsonTrunc(v interface{}, max int) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	s := string(raw)
	if len(s) > max {
		s = s[:max]
	}
	return s
}
