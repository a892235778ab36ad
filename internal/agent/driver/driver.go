package driver

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/internal/agent/steps"
	"github.com/arguslabs/argus/internal/agent/supervisor"
	"github.com/arguslabs/argus/internal/checkpoint"
)

var tracer = otel.Tracer("argus/internal/agent/driver")

// Terminal run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
	StatusExhausted = "exhausted"
)

// UsageFunc reports the total tokens and cost accumulated so far, polled by
// the engine after every step to keep the state's totals current.
type UsageFunc func() (tokens int64, cost float64)

// Engine owns one research run end to end: it alternates supervisor ticks
// with specialist steps, applies each resulting patch, and checkpoints after
// every mutation. The state is never touched concurrently.
type Engine struct {
	sup      *supervisor.Supervisor
	registry map[string]steps.Step
	store    checkpoint.Store
	emit     events.Sink
	usage    UsageFunc
	limit    int
	logger   *log.Logger
}

// NewEngine wires an engine over the supervisor and specialist set. limit
// bounds the total number of supervisor iterations before the run is
// declared exhausted.
func NewEngine(sup *supervisor.Supervisor, specialists []steps.Step, store checkpoint.Store,
	emit events.Sink, usage UsageFunc, limit int, logger *log.Logger) *Engine {
	if limit <= 0 {
		limit = 150
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[DRIVER] ", log.LstdFlags)
	}
	registry := make(map[string]steps.Step, len(specialists))
	for _, s := range specialists {
		registry[s.Name()] = s
	}
	return &Engine{
		sup:      sup,
		registry: registry,
		store:    store,
		emit:     emit,
		usage:    usage,
		limit:    limit,
		logger:   logger,
	}
}

// Run drives st to a terminal status. The returned error is non-nil only for
// failed runs; cancelled and exhausted runs terminate cleanly.
func (e *Engine) Run(ctx context.Context, st *state.ResearchState) (status string, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Engine.Run")
	span.SetAttributes(attribute.String("research_id", st.ResearchID))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			status = StatusFailed
			err = fmt.Errorf("research run panicked: %v", r)
			e.logger.Printf("research %s panicked: %v", st.ResearchID, r)
			st.Errors = append(st.Errors, state.ErrorEntry{
				Node:      "driver",
				Message:   fmt.Sprintf("panic: %v", r),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			e.checkpointQuiet(st)
		}
		e.syncTotals(st)
		span.SetAttributes(
			attribute.String("status", status),
			attribute.Int("iterations", st.IterationCount),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		events.Emit(e.emit, "driver", "done", map[string]interface{}{
			"status":     status,
			"iterations": st.IterationCount,
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	}()

	for {
		if err := ctx.Err(); err != nil {
			return StatusCancelled, nil
		}
		if st.IterationCount >= e.limit {
			e.logger.Printf("research %s hit the iteration ceiling %d", st.ResearchID, e.limit)
			return StatusExhausted, nil
		}

		decision, patch, err := e.sup.Tick(ctx, st)
		if err != nil {
			return StatusFailed, fmt.Errorf("supervisor tick: %w", err)
		}
		if err := st.Apply(patch); err != nil {
			return StatusFailed, fmt.Errorf("apply supervisor patch: %w", err)
		}
		e.syncTotals(st)
		e.checkpointQuiet(st)

		if decision.NextAgent == steps.Finish {
			if decision.Cancelled {
				return StatusCancelled, nil
			}
			if !st.HasReport() {
				return StatusFailed, fmt.Errorf("run finished without a report: %s", decision.Reasoning)
			}
			return StatusCompleted, nil
		}

		step, ok := e.registry[decision.NextAgent]
		if !ok {
			return StatusFailed, fmt.Errorf("no specialist registered for %q", decision.NextAgent)
		}

		stepCtx, stepSpan := tracer.Start(ctx, "step."+decision.NextAgent)
		stepPatch, err := step.Run(stepCtx, st)
		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()
			e.logger.Printf("research %s step %s failed: %v", st.ResearchID, step.Name(), err)
			st.Errors = append(st.Errors, state.ErrorEntry{
				Node:      step.Name(),
				Message:   err.Error(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			e.checkpointQuiet(st)
			return StatusFailed, fmt.Errorf("step %s: %w", step.Name(), err)
		}
		stepSpan.End()
		if err := st.Apply(stepPatch); err != nil {
			return StatusFailed, fmt.Errorf("apply %s patch: %w", step.Name(), err)
		}
		e.syncTotals(st)
		e.checkpointQuiet(st)
	}
}

// syncTotals writes the accumulated token and cost totals into the state. The
// totals live outside the patch protocol; only the engine writes them.
func (e *Engine) syncTotals(st *state.ResearchState) {
	if e.usage == nil {
		return
	}
	tokens, cost := e.usage()
	st.TotalTokensUsed = tokens
	st.TotalCostUSD = cost
}

// checkpointQuiet saves the state, logging instead of failing the run. A lost
// checkpoint costs at most one step of replay, never the whole investigation.
func (e *Engine) checkpointQuiet(st *state.ResearchState) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(context.Background(), st); err != nil {
		e.logger.Printf("checkpoint for %s failed: %v", st.ResearchID, err)
	}
}
