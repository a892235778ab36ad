package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/provider"
)

// AllDelegatesFailedError reports that the primary model and every fallback in
// its chain failed for a task. Last holds the final attempt's error.
type AllDelegatesFailedError struct {
	Task string
	Last error
}

func (e *AllDelegatesFailedError) Error() string {
	return fmt.Sprintf("all delegates failed for task %q: %v", e.Task, e.Last)
}

func (e *AllDelegatesFailedError) Unwrap() error { return e.Last }

// TaskStats accumulates per-task call accounting.
type TaskStats struct {
	Calls  int64   `json:"calls"`
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// Gateway routes delegate calls to the model registered for each task, trying
// the task's fallback chain in order when a call or a structured parse fails.
type Gateway struct {
	prov      provider.Provider
	tasks     map[string]TaskSpec
	fallbacks map[string][]string
	costs     map[string]config.ModelPrice
	logger    *log.Logger

	mu        sync.Mutex
	stats     map[string]*TaskStats
	lastUsage provider.Usage
	lastCost  float64
	lastModel string
}

// NewGateway builds a gateway over prov using cfg's task table merged onto the
// built-in defaults.
func NewGateway(cfg config.LLMConfig, prov provider.Provider, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(log.Writer(), "[LLM] ", log.LstdFlags)
	}
	g := &Gateway{
		prov:      prov,
		tasks:     buildTasks(cfg),
		fallbacks: buildFallbacks(cfg),
		costs:     buildCosts(cfg),
		logger:    logger,
		stats:     make(map[string]*TaskStats),
	}
	for name := range g.tasks {
		g.stats[name] = &TaskStats{}
	}
	return g
}

// Complete invokes the task's model chain and returns the raw assistant text.
func (g *Gateway) Complete(ctx context.Context, task string, messages []provider.Message) (string, error) {
	return g.invoke(ctx, task, messages, false, nil)
}

// CompleteJSON invokes the task's model chain asking for a JSON object and
// decodes it into out. A reply that does not decode counts as a failed
// attempt and the next model in the chain is tried.
func (g *Gateway) CompleteJSON(ctx context.Context, task string, messages []provider.Message, out interface{}) error {
	_, err := g.invoke(ctx, task, messages, true, out)
	return err
}

func (g *Gateway) invoke(ctx context.Context, task string, messages []provider.Message, jsonOnly bool, out interface{}) (string, error) {
	spec, ok := g.tasks[task]
	if !ok {
		return "", fmt.Errorf("no model registered for task %q", task)
	}

	models := append([]string{spec.Model}, g.fallbacks[spec.Model]...)
	var lastErr error
	for i, model := range models {
		start := time.Now()
		resp, err := g.prov.Chat(ctx, provider.ChatRequest{
			Model:       model,
			Messages:    messages,
			Temperature: spec.Temperature,
			MaxTokens:   spec.MaxTokens,
			JSONOnly:    jsonOnly,
		})
		if err != nil {
			lastErr = err
			g.logger.Printf("task=%s model=%s attempt=%d failed: %v", task, model, i, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if out != nil {
			if err := json.Unmarshal([]byte(ExtractJSON(resp.Content)), out); err != nil {
				lastErr = fmt.Errorf("structured output did not parse: %w", err)
				g.logger.Printf("task=%s model=%s attempt=%d failed: %v", task, model, i, lastErr)
				continue
			}
		}
		g.recordUsage(task, model, resp.Usage)
		if i > 0 {
			g.logger.Printf("task=%s fell back to model=%s after %d failed attempts (%dms)",
				task, model, i, time.Since(start).Milliseconds())
		}
		return resp.Content, nil
	}
	return "", &AllDelegatesFailedError{Task: task, Last: lastErr}
}

func (g *Gateway) recordUsage(task, model string, usage provider.Usage) {
	price := g.costs[model]
	cost := float64(usage.PromptTokens)/1000*price.InputPer1K +
		float64(usage.CompletionTokens)/1000*price.OutputPer1K

	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.stats[task]
	if !ok {
		st = &TaskStats{}
		g.stats[task] = st
	}
	st.Calls++
	st.Tokens += usage.TotalTokens
	st.Cost += cost
	g.lastUsage = usage
	g.lastCost = cost
	g.lastModel = model
}

// LastUsage reports the usage, dollar cost, and model of the most recent
// successful delegate call.
func (g *Gateway) LastUsage() (provider.Usage, float64, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastUsage, g.lastCost, g.lastModel
}

// Stats returns a copy of the per-task call counters.
func (g *Gateway) Stats() map[string]TaskStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]TaskStats, len(g.stats))
	for name, st := range g.stats {
		out[name] = *st
	}
	return out
}

// ExtractJSON pulls the outermost JSON object or array out of a model reply,
// tolerating markdown code fences and surrounding prose.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var closer byte = '}'
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s
	}
	return s[start : end+1]
}
