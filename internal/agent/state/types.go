package state

// PhaseDescriptor is one stage of the research plan.
type PhaseDescriptor struct {
	PhaseNumber       int      `json:"phase_number"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Queries           []string `json:"queries"`
	ExpectedInfoTypes []string `json:"expected_info_types"`
	Priority          int      `json:"priority"` // 1=highest, 5=lowest
}

// Fact is a single extracted claim about the target.
type Fact struct {
	Fact             string   `json:"fact"`
	Category         string   `json:"category"` // biographical|professional|financial|legal|social|behavioral
	Confidence       float64  `json:"confidence"`
	SourceURL        string   `json:"source_url"`
	SourceType       string   `json:"source_type"` // official|news|social|forum|filing|unknown
	DateMentioned    string   `json:"date_mentioned,omitempty"`
	EntitiesInvolved []string `json:"entities_involved,omitempty"`
}

// Entity is a person, organization, fund, location, event, or document.
type Entity struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Sources    []string          `json:"sources,omitempty"`
}

// Relationship links two named entities.
type Relationship struct {
	SourceEntity     string  `json:"source_entity"`
	TargetEntity     string  `json:"target_entity"`
	RelationshipType string  `json:"relationship_type"`
	Evidence         string  `json:"evidence,omitempty"`
	Confidence       float64 `json:"confidence"`
	SourceURL        string  `json:"source_url,omitempty"`
}

// VerifiedFact is a fact after independent corroboration.
type VerifiedFact struct {
	Fact                 string   `json:"fact"`
	Category             string   `json:"category"`
	FinalConfidence      float64  `json:"final_confidence"`
	VerificationMethod   string   `json:"verification_method"` // web_verified|cross_referenced|unverifiable|self_reported_only
	SupportingSources    []string `json:"supporting_sources,omitempty"`
	ContradictingSources []string `json:"contradicting_sources,omitempty"`
	Notes                string   `json:"notes,omitempty"`
}

// Contradiction is a pair of mutually incompatible claims with a resolution.
type Contradiction struct {
	ClaimA     string `json:"claim_a"`
	ClaimB     string `json:"claim_b"`
	SourceA    string `json:"source_a"`
	SourceB    string `json:"source_b"`
	Resolution string `json:"resolution,omitempty"`
}

// RiskFlag is a red flag raised by the risk assessor.
type RiskFlag struct {
	Flag                 string   `json:"flag"`
	Category             string   `json:"category"` // legal|financial|reputational|behavioral|network
	Severity             string   `json:"severity"` // low|medium|high|critical
	Confidence           float64  `json:"confidence"`
	Evidence             []string `json:"evidence,omitempty"`
	SourceURLs           []string `json:"source_urls,omitempty"`
	RecommendedFollowup string   `json:"recommended_followup,omitempty"`
}

// ExecutedQuery records one search query that was issued.
type ExecutedQuery struct {
	Query        string `json:"query"`
	Timestamp    string `json:"timestamp"`
	ResultsCount int    `json:"results_count"`
}

// AuditEntry captures one step execution for the run's audit trail.
type AuditEntry struct {
	Node           string  `json:"node"`
	Action         string  `json:"action"`
	Timestamp      string  `json:"timestamp"`
	ModelUsed      string  `json:"model_used,omitempty"`
	InputSummary   string  `json:"input_summary,omitempty"`
	OutputSummary  string  `json:"output_summary,omitempty"`
	TokensConsumed int64   `json:"tokens_consumed,omitempty"`
	CostUSD        float64 `json:"cost_usd,omitempty"`
	DurationMS     int64   `json:"duration_ms,omitempty"`
}

// ErrorEntry records a recovered failure inside a step.
type ErrorEntry struct {
	Node      string `json:"node"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
