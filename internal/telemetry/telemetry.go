package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/internal/agent/events"
)

// Telemetry tracks run outcomes, step timings and LLM spend. Metrics go to
// prometheus (scraped via the server's /metrics endpoint); the cost tracker
// keeps an in-process running total per model for the lifetime of the service.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	stepExecs     *prometheus.CounterVec
	stepDurations *prometheus.HistogramVec
	llmTokens     *prometheus.CounterVec
	llmCost       *prometheus.CounterVec

	costs *CostTracker
}

// CostTracker accumulates LLM usage per gateway task.
type CostTracker struct {
	mu         sync.RWMutex
	TaskTokens map[string]int64
	TaskCosts  map[string]float64
	TotalTokens int64
	TotalCost   float64
}

// CostSummary is a point-in-time copy of the cost tracker.
type CostSummary struct {
	TaskTokens  map[string]int64   `json:"task_tokens"`
	TaskCosts   map[string]float64 `json:"task_costs"`
	TotalTokens int64              `json:"total_tokens"`
	TotalCost   float64            `json:"total_cost"`
}

// New registers metrics with the default prometheus registerer.
func New(cfg config.TelemetryConfig) *Telemetry {
	return NewWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewWithRegistry registers metrics with a caller-supplied registerer.
// When telemetry is disabled nothing is registered and every method no-ops.
func NewWithRegistry(cfg config.TelemetryConfig, reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		costs: &CostTracker{
			TaskTokens: make(map[string]int64),
			TaskCosts:  make(map[string]float64),
		},
	}
	if !cfg.Enabled {
		return t
	}

	t.runsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "argus",
		Name:      "runs_started_total",
		Help:      "Research runs launched.",
	})
	t.runsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Name:      "runs_finished_total",
		Help:      "Research runs by terminal status.",
	}, []string{"status"})
	t.stepExecs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Name:      "step_executions_total",
		Help:      "Specialist step completions by outcome.",
	}, []string{"step", "status"})
	t.stepDurations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "argus",
		Name:      "step_duration_seconds",
		Help:      "Wall time per specialist step.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"step"})
	t.llmTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Name:      "llm_tokens_total",
		Help:      "Tokens consumed per gateway task.",
	}, []string{"task"})
	t.llmCost = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Name:      "llm_cost_usd_total",
		Help:      "Estimated spend per gateway task in USD.",
	}, []string{"task"})

	reg.MustRegister(t.runsStarted, t.runsFinished, t.stepExecs, t.stepDurations, t.llmTokens, t.llmCost)
	return t
}

// Enabled reports whether metrics collection is active.
func (t *Telemetry) Enabled() bool { return t != nil && t.config.Enabled }

// RecordLLMUsage adds accumulated gateway usage for one task to the
// counters. Cost accumulation can be switched off independently via
// cost_tracking.
func (t *Telemetry) RecordLLMUsage(task string, tokens int64, cost float64) {
	if t == nil || task == "" {
		return
	}
	if t.config.Enabled {
		t.llmTokens.WithLabelValues(task).Add(float64(tokens))
		if t.config.CostTracking {
			t.llmCost.WithLabelValues(task).Add(cost)
		}
	}
	t.costs.mu.Lock()
	t.costs.TaskTokens[task] += tokens
	t.costs.TotalTokens += tokens
	if t.config.CostTracking {
		t.costs.TaskCosts[task] += cost
		t.costs.TotalCost += cost
	}
	t.costs.mu.Unlock()
}

// Costs returns a snapshot of accumulated LLM spend.
func (t *Telemetry) Costs() CostSummary {
	out := CostSummary{
		TaskTokens: make(map[string]int64),
		TaskCosts:  make(map[string]float64),
	}
	if t == nil {
		return out
	}
	t.costs.mu.RLock()
	defer t.costs.mu.RUnlock()
	for k, v := range t.costs.TaskTokens {
		out.TaskTokens[k] = v
	}
	for k, v := range t.costs.TaskCosts {
		out.TaskCosts[k] = v
	}
	out.TotalTokens = t.costs.TotalTokens
	out.TotalCost = t.costs.TotalCost
	return out
}

// ObserveSink wraps a per-run event sink so step starts, completions and the
// terminal driver event feed the metrics. The returned sink forwards every
// event to next untouched. Call once per run; the start-time table inside the
// closure is scoped to that run.
func (t *Telemetry) ObserveSink(next events.Sink) events.Sink {
	if t == nil || !t.config.Enabled {
		return next
	}
	t.runsStarted.Inc()

	var mu sync.Mutex
	starts := make(map[string]time.Time)

	return func(ev events.Event) {
		switch {
		case ev.Node == "driver" && ev.Status == "done":
			status := "unknown"
			if s, ok := ev.Fields["status"].(string); ok && s != "" {
				status = s
			}
			t.runsFinished.WithLabelValues(status).Inc()
		case ev.Status == "started":
			mu.Lock()
			starts[ev.Node] = ev.Timestamp
			mu.Unlock()
		case ev.Status == "complete" || ev.Status == "skipped":
			t.stepExecs.WithLabelValues(ev.Node, ev.Status).Inc()
			mu.Lock()
			began, ok := starts[ev.Node]
			delete(starts, ev.Node)
			mu.Unlock()
			if ok {
				t.stepDurations.WithLabelValues(ev.Node).Observe(ev.Timestamp.Sub(began).Seconds())
			}
		}
		if next != nil {
			next(ev)
		}
	}
}
