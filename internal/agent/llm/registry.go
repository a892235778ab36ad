package llm

import "github.com/arguslabs/argus/config"

// Task names the delegate roles a research run needs. Every specialist step
// resolves its model through one of these.
const (
	TaskSupervisor      = "supervisor"
	TaskPlanner         = "planner"
	TaskQueryRefiner    = "query_refiner"
	TaskSearchAnalyze   = "search_and_analyze"
	TaskVerifier        = "verifier"
	TaskRiskAssessor    = "risk_assessor"
	TaskPhaseStrategist = "phase_strategist"
	TaskSynthesizer     = "synthesizer"
)

// TaskSpec pins a task to a model slug with sampling settings.
type TaskSpec struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// defaultTasks maps each task to the model chosen for its characteristics.
// All slugs are OpenRouter model names; config overrides any entry.
var defaultTasks = map[string]TaskSpec{
	TaskSupervisor:      {Model: "anthropic/claude-sonnet-4.6", Temperature: 0.1, MaxTokens: 2048},
	TaskPlanner:         {Model: "anthropic/claude-sonnet-4.6", Temperature: 0.3, MaxTokens: 4096},
	TaskQueryRefiner:    {Model: "openai/gpt-4.1-mini", Temperature: 0.4, MaxTokens: 1024},
	TaskSearchAnalyze:   {Model: "google/gemini-2.5-pro", Temperature: 0.1, MaxTokens: 8192},
	TaskVerifier:        {Model: "anthropic/claude-sonnet-4.6", Temperature: 0.0, MaxTokens: 4096},
	TaskRiskAssessor:    {Model: "x-ai/grok-3", Temperature: 0.5, MaxTokens: 4096},
	TaskPhaseStrategist: {Model: "anthropic/claude-sonnet-4.6", Temperature: 0.3, MaxTokens: 2048},
	TaskSynthesizer:     {Model: "anthropic/claude-sonnet-4.6", Temperature: 0.2, MaxTokens: 8192},
}

// defaultFallbacks chains alternates per model slug, tried in order after the
// primary fails. The fallback inherits the task's sampling settings.
var defaultFallbacks = map[string][]string{
	"anthropic/claude-sonnet-4.6": {"google/gemini-2.5-pro", "openai/gpt-4.1-mini"},
	"google/gemini-2.5-pro":       {"anthropic/claude-sonnet-4.6", "openai/gpt-4.1-mini"},
	"x-ai/grok-3":                 {"anthropic/claude-sonnet-4.6", "openai/gpt-4.1-mini"},
	"openai/gpt-4.1-mini":         {"anthropic/claude-sonnet-4.6"},
}

// defaultCosts holds per-1K-token prices for cost accounting when the config
// does not supply its own table.
var defaultCosts = map[string]config.ModelPrice{
	"anthropic/claude-sonnet-4.6": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"google/gemini-2.5-pro":       {InputPer1K: 0.00125, OutputPer1K: 0.010},
	"openai/gpt-4.1-mini":         {InputPer1K: 0.0004, OutputPer1K: 0.0016},
	"x-ai/grok-3":                 {InputPer1K: 0.003, OutputPer1K: 0.015},
}

func buildTasks(cfg config.LLMConfig) map[string]TaskSpec {
	tasks := make(map[string]TaskSpec, len(defaultTasks))
	for name, spec := range defaultTasks {
		tasks[name] = spec
	}
	for name, tm := range cfg.Tasks {
		spec := tasks[name]
		if tm.Model != "" {
			spec.Model = tm.Model
		}
		if tm.MaxTokens > 0 {
			spec.MaxTokens = tm.MaxTokens
		}
		spec.Temperature = tm.Temperature
		tasks[name] = spec
	}
	return tasks
}

func buildFallbacks(cfg config.LLMConfig) map[string][]string {
	chains := make(map[string][]string, len(defaultFallbacks))
	for slug, chain := range defaultFallbacks {
		chains[slug] = chain
	}
	for slug, chain := range cfg.Fallbacks {
		chains[slug] = chain
	}
	return chains
}

func buildCosts(cfg config.LLMConfig) map[string]config.ModelPrice {
	costs := make(map[string]config.ModelPrice, len(defaultCosts))
	for slug, price := range defaultCosts {
		costs[slug] = price
	}
	for slug, price := range cfg.ModelCosts {
		costs[slug] = price
	}
	return costs
}
