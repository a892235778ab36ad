package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/provider"
	searchmodels "github.com/arguslabs/argus/tools/web_search/models"
)

// fakeDelegate replays a queue of canned JSON replies, one per call.
type fakeDelegate struct {
	replies []string
	calls   int
	tasks   []string
}

func (f *fakeDelegate) next() (string, error) {
	if f.calls >= len(f.replies) {
		return "", fmt.Errorf("no scripted reply for call %d", f.calls)
	}
	r := f.replies[f.calls]
	f.calls++
	return r, nil
}

func (f *fakeDelegate) Complete(_ context.Context, task string, _ []provider.Message) (string, error) {
	f.tasks = append(f.tasks, task)
	return f.next()
}

func (f *fakeDelegate) CompleteJSON(_ context.Context, task string, _ []provider.Message, out interface{}) error {
	f.tasks = append(f.tasks, task)
	r, err := f.next()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(r), out)
}

func (f *fakeDelegate) LastUsage() (provider.Usage, float64, string) {
	return provider.Usage{TotalTokens: 100}, 0.001, "test-model"
}

type fakeSearcher struct{ calls int }

func (f *fakeSearcher) Search(_ context.Context, q string, k int) ([]searchmodels.Result, error) {
	f.calls++
	return []searchmodels.Result{{Title: "Result for " + q, URL: "https://example.com/1", Snippet: "snippet"}}, nil
}

type fakeScraper struct{ urls []string }

func (f *fakeScraper) Scrape(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return "page text for " + url, nil
}

type fakeSink struct {
	entities []string
	rels     []string
	failFor  string
}

func (f *fakeSink) MergeEntity(_ context.Context, e state.Entity, _ string) (string, error) {
	if e.Name == f.failFor {
		return "", fmt.Errorf("write refused")
	}
	f.entities = append(f.entities, e.Name)
	return e.Type + ":" + e.Name, nil
}

func (f *fakeSink) MergeRelationship(_ context.Context, r state.Relationship, _ string) (string, error) {
	key := r.SourceEntity + "-" + r.RelationshipType + "->" + r.TargetEntity
	f.rels = append(f.rels, key)
	return key, nil
}

func testDeps(d *fakeDelegate) Deps {
	return Deps{
		Gateway:  d,
		Searcher: &fakeSearcher{},
		Scraper:  &fakeScraper{},
		Sink:     &fakeSink{},
		Research: config.ResearchConfig{
			DefaultMaxPhases:        5,
			MaxQueriesPerBatch:      6,
			MaxVerificationSearches: 10,
			MinFactsForVerification: 5,
			ToolLoopLimit:           24,
		},
		Logger: log.New(io.Discard, "", 0),
	}
}

func testState() *state.ResearchState {
	return state.New("res-1", "Marcus Halvorsen", "Fund manager at Meridian Capital",
		[]string{"background check"}, 5, false)
}

func submitReply(submission string) string {
	return `{"action":"submit","submission":` + submission + `}`
}

func TestPlannerTrimsAndRenumbers(t *testing.T) {
	plan := `{"phases":[` +
		`{"phase_number":9,"name":"A","queries":["q1"]},` +
		`{"phase_number":1,"name":"B","queries":["q2"]},` +
		`{"phase_number":3,"name":"C","queries":["q3"]}` +
		`],"total_estimated_queries":3,"rationale":"r"}`
	d := &fakeDelegate{replies: []string{plan}}
	st := testState()
	st.MaxPhases = 2

	patch, err := NewPlanner(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("planner: %v", err)
	}
	if err := st.Apply(patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(st.ResearchPlan) != 2 {
		t.Fatalf("expected plan trimmed to 2 phases, got %d", len(st.ResearchPlan))
	}
	if st.ResearchPlan[0].PhaseNumber != 1 || st.ResearchPlan[1].PhaseNumber != 2 {
		t.Fatalf("expected contiguous numbering, got %d and %d",
			st.ResearchPlan[0].PhaseNumber, st.ResearchPlan[1].PhaseNumber)
	}
	if st.CurrentPhase != 1 {
		t.Fatalf("expected current phase 1, got %d", st.CurrentPhase)
	}
}

func TestQueryRefinerFiltersExecutedQueries(t *testing.T) {
	d := &fakeDelegate{replies: []string{
		`{"queries":["old query","new query","","new query"],"reasoning":"r"}`,
	}}
	st := testState()
	st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1, Name: "Surface", Queries: []string{"seed"}}}
	st.CurrentPhase = 1
	st.SearchQueriesExecuted = []state.ExecutedQuery{{Query: "old query"}}

	patch, err := NewQueryRefiner(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("query refiner: %v", err)
	}
	queries, ok := patch[state.FieldPendingQueries].([]string)
	if !ok {
		t.Fatalf("expected pending_queries in patch")
	}
	if len(queries) != 1 || queries[0] != "new query" {
		t.Fatalf("expected only the new query once, got %v", queries)
	}
}

func TestSearchAnalyzeBatchesAndDefersRemainder(t *testing.T) {
	d := &fakeDelegate{replies: []string{
		submitReply(`{"facts":[{"fact":"f1","category":"professional","confidence":0.7}],"entities":[],"relationships":[]}`),
	}}
	st := testState()
	st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1, Name: "Surface"}}
	st.CurrentPhase = 1
	for i := 0; i < 8; i++ {
		st.PendingQueries = append(st.PendingQueries, fmt.Sprintf("query %d", i))
	}

	patch, err := NewSearchAnalyze(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("search and analyze: %v", err)
	}
	remaining := patch[state.FieldPendingQueries].([]string)
	if len(remaining) != 2 {
		t.Fatalf("expected 2 deferred queries, got %d", len(remaining))
	}
	if searched := patch[state.FieldPhaseSearched].(bool); searched {
		t.Fatalf("phase must not be searched while queries remain")
	}
	executed := patch[state.FieldSearchQueriesExecuted].([]state.ExecutedQuery)
	if len(executed) != 6 {
		t.Fatalf("expected 6 executed queries, got %d", len(executed))
	}
}

func TestSearchAnalyzeDrainedQueueSetsSearched(t *testing.T) {
	d := &fakeDelegate{replies: []string{
		submitReply(`{"facts":[],"entities":[],"relationships":[]}`),
	}}
	st := testState()
	st.CurrentPhase = 1
	st.PendingQueries = []string{"only query"}

	patch, err := NewSearchAnalyze(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("search and analyze: %v", err)
	}
	if searched := patch[state.FieldPhaseSearched].(bool); !searched {
		t.Fatalf("expected phase searched after draining the queue")
	}
}

func TestSearchAnalyzeNoSubmissionRecordsErrorAndContinues(t *testing.T) {
	deps := testDeps(nil)
	deps.Research.ToolLoopLimit = 1
	// One non-submit round, then the forced round also refuses to submit.
	d := &fakeDelegate{replies: []string{
		`{"action":"search","query":"q"}`,
		`{"action":"search","query":"again"}`,
	}}
	deps.Gateway = d
	st := testState()
	st.PendingQueries = []string{"query a"}

	patch, err := NewSearchAnalyze(deps).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if _, ok := patch[state.FieldErrors]; !ok {
		t.Fatalf("expected an error entry for the missing submission")
	}
	facts := patch[state.FieldExtractedFacts].([]state.Fact)
	if len(facts) != 0 {
		t.Fatalf("expected no facts without a submission, got %d", len(facts))
	}
	if searched := patch[state.FieldPhaseSearched].(bool); !searched {
		t.Fatalf("phase still counts as searched once its queue drains")
	}
}

func TestVerifierEmptyDeltaOnlySetsFlag(t *testing.T) {
	d := &fakeDelegate{}
	st := testState()
	st.ExtractedFacts = []state.Fact{{Fact: "f1"}, {Fact: "f2"}}
	st.FactsVerifiedCount = 2

	patch, err := NewVerifier(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	if len(patch) != 1 {
		t.Fatalf("expected flag-only patch, got %d fields", len(patch))
	}
	if v := patch[state.FieldPhaseVerified].(bool); !v {
		t.Fatalf("expected phase verified flag")
	}
	if d.calls != 0 {
		t.Fatalf("expected no delegate calls on empty delta, got %d", d.calls)
	}
}

func TestVerifierAdvancesCursorOverDelta(t *testing.T) {
	d := &fakeDelegate{replies: []string{
		submitReply(`{"verified_facts":[{"fact":"f3","final_confidence":0.9,"verification_method":"web_verified"}],"unverified_claims":[],"contradictions":[]}`),
	}}
	st := testState()
	st.ExtractedFacts = []state.Fact{{Fact: "f1"}, {Fact: "f2"}, {Fact: "f3"}}
	st.FactsVerifiedCount = 2

	patch, err := NewVerifier(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	if cursor := patch[state.FieldFactsVerifiedCount].(int); cursor != 3 {
		t.Fatalf("expected cursor 3, got %d", cursor)
	}
	verified := patch[state.FieldVerifiedFacts].([]state.VerifiedFact)
	if len(verified) != 1 || verified[0].Fact != "f3" {
		t.Fatalf("expected only the delta fact verified, got %v", verified)
	}
}

func TestVerifierNoSubmissionDowngradesToUnverified(t *testing.T) {
	deps := testDeps(nil)
	deps.Research.ToolLoopLimit = 1
	d := &fakeDelegate{replies: []string{
		`{"action":"search","query":"q"}`,
		`{"action":"scrape","url":"https://example.com"}`,
	}}
	deps.Gateway = d
	st := testState()
	st.ExtractedFacts = []state.Fact{{Fact: "claim one"}, {Fact: "claim two"}}

	patch, err := NewVerifier(deps).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("expected conservative downgrade, got %v", err)
	}
	unverified := patch[state.FieldUnverifiedClaims].([]string)
	if len(unverified) != 2 {
		t.Fatalf("expected both facts downgraded, got %v", unverified)
	}
	if verified := patch[state.FieldVerifiedFacts].([]state.VerifiedFact); len(verified) != 0 {
		t.Fatalf("no fact may be promoted without a submission")
	}
	if cursor := patch[state.FieldFactsVerifiedCount].(int); cursor != 2 {
		t.Fatalf("cursor must still advance, got %d", cursor)
	}
}

func TestRiskAssessorEmptyDeltaOnlySetsFlag(t *testing.T) {
	d := &fakeDelegate{}
	st := testState()
	st.VerifiedFacts = []state.VerifiedFact{{Fact: "f1"}}
	st.RiskAssessedFactsCount = 1
	st.FactsVerifiedCount = 1

	patch, err := NewRiskAssessor(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("risk assessor: %v", err)
	}
	if len(patch) != 1 {
		t.Fatalf("expected flag-only patch, got %d fields", len(patch))
	}
	if d.calls != 0 {
		t.Fatalf("expected no delegate calls, got %d", d.calls)
	}
}

func TestRiskAssessorFallsBackToRawFacts(t *testing.T) {
	d := &fakeDelegate{replies: []string{
		`{"risk_flags":[{"flag":"resume gap","category":"behavioral","severity":"medium","confidence":0.6}],"overall_risk_score":0.4,"summary":"s"}`,
	}}
	st := testState()
	// Verification consumed three facts but promoted none.
	st.ExtractedFacts = []state.Fact{{Fact: "f1"}, {Fact: "f2"}, {Fact: "f3"}}
	st.FactsVerifiedCount = 3

	patch, err := NewRiskAssessor(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("risk assessor: %v", err)
	}
	if cursor := patch[state.FieldRiskAssessedFactsCount].(int); cursor != 3 {
		t.Fatalf("expected cursor 3 after raw-fact fallback, got %d", cursor)
	}
	flags := patch[state.FieldRiskFlags].([]state.RiskFlag)
	if len(flags) != 1 || flags[0].Category != "behavioral" {
		t.Fatalf("unexpected flags %v", flags)
	}
	if score := patch[state.FieldOverallRiskScore].(float64); score != 0.4 {
		t.Fatalf("expected score 0.4, got %v", score)
	}
}

func TestGraphBuilderSkipsUnknownTypesAndIsolatesFailures(t *testing.T) {
	deps := testDeps(&fakeDelegate{})
	sink := &fakeSink{failFor: "Broken Corp"}
	deps.Sink = sink
	st := testState()
	st.Entities = []state.Entity{
		{Name: "Marcus Halvorsen", Type: "person"},
		{Name: "Meridian Capital", Type: "organization"},
		{Name: "Broken Corp", Type: "organization"},
		{Name: "Something", Type: "alien_artifact"},
	}
	st.Relationships = []state.Relationship{
		{SourceEntity: "Marcus Halvorsen", TargetEntity: "Meridian Capital", RelationshipType: "WORKS_AT"},
	}

	patch, err := NewGraphBuilder(deps).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("graph builder: %v", err)
	}
	nodes := patch[state.FieldGraphNodesCreated].([]string)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 merged nodes, got %v", nodes)
	}
	rels := patch[state.FieldGraphRelsCreated].([]string)
	if len(rels) != 1 {
		t.Fatalf("expected 1 merged relationship, got %v", rels)
	}
	if complete := patch[state.FieldPhaseComplete].(bool); !complete {
		t.Fatalf("phase must complete even with partial write failures")
	}
	if _, ok := patch[state.FieldErrors]; !ok {
		t.Fatalf("expected an error entry for the failed write")
	}
}

func TestPhaseStrategistSynthesizeDisablesDynamicMode(t *testing.T) {
	d := &fakeDelegate{replies: []string{
		`{"action":"synthesize","phases_to_add":[],"reasoning":"minimal footprint"}`,
	}}
	st := testState()
	st.DynamicPhases = true
	st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1, Name: "Surface"}}
	st.CurrentPhase = 1
	st.MaxPhases = 1
	st.PhaseComplete = true

	patch, err := NewPhaseStrategist(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("phase strategist: %v", err)
	}
	if dyn := patch[state.FieldDynamicPhases].(bool); dyn {
		t.Fatalf("synthesize decision must turn dynamic mode off")
	}
	if _, ok := patch[state.FieldResearchPlan]; ok {
		t.Fatalf("synthesize decision must not touch the plan")
	}
}

func TestPhaseStrategistAddPhasesRenumbersAndSeedsQueue(t *testing.T) {
	d := &fakeDelegate{replies: []string{
		`{"action":"add_phases","phases_to_add":[` +
			`{"phase_number":7,"name":"Corporate Structure","queries":["Meridian Capital SEC filings"]},` +
			`{"phase_number":2,"name":"Network Mapping","queries":["Meridian Capital co-investors"]}` +
			`],"reasoning":"corporate signals"}`,
	}}
	st := testState()
	st.DynamicPhases = true
	st.ResearchPlan = []state.PhaseDescriptor{{PhaseNumber: 1, Name: "Surface"}}
	st.CurrentPhase = 1
	st.MaxPhases = 1
	st.PhaseComplete = true
	st.PhaseSearched = true
	st.PhaseVerified = true
	st.PhaseRiskAssessed = true

	patch, err := NewPhaseStrategist(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("phase strategist: %v", err)
	}
	if err := st.Apply(patch); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(st.ResearchPlan) != 3 || st.MaxPhases != 3 {
		t.Fatalf("expected 3-phase plan, got %d phases max %d", len(st.ResearchPlan), st.MaxPhases)
	}
	if st.ResearchPlan[1].PhaseNumber != 2 || st.ResearchPlan[2].PhaseNumber != 3 {
		t.Fatalf("expected contiguous numbering, got %d and %d",
			st.ResearchPlan[1].PhaseNumber, st.ResearchPlan[2].PhaseNumber)
	}
	if st.CurrentPhase != 2 {
		t.Fatalf("expected current phase 2, got %d", st.CurrentPhase)
	}
	if st.PhaseComplete || st.PhaseSearched || st.PhaseVerified || st.PhaseRiskAssessed {
		t.Fatalf("phase flags must reset for the new phase")
	}
	if len(st.PendingQueries) != 1 || !strings.Contains(st.PendingQueries[0], "SEC filings") {
		t.Fatalf("expected queue seeded from the first new phase, got %v", st.PendingQueries)
	}
	if st.DynamicPhases {
		t.Fatalf("dynamic mode must switch off after expansion")
	}
}

func TestSynthesizerProducesReportPatch(t *testing.T) {
	d := &fakeDelegate{replies: []string{"# Investigation Report\n\nFindings."}}
	st := testState()
	st.VerifiedFacts = []state.VerifiedFact{{Fact: "f1", FinalConfidence: 0.9}}

	patch, err := NewSynthesizer(testDeps(d)).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("synthesizer: %v", err)
	}
	report := patch[state.FieldFinalReport].(string)
	if !strings.HasPrefix(report, "# Investigation Report") {
		t.Fatalf("unexpected report %q", report)
	}
}
