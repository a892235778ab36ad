package research

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/internal/agent/driver"
	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/internal/agent/supervisor"
	"github.com/arguslabs/argus/internal/checkpoint"
)

// scriptedRunner finishes immediately with a fixed status, mutating the state
// the way a real run would.
type scriptedRunner struct {
	status string
	err    error
	emit   events.Sink
	mutate func(st *state.ResearchState)
	store  checkpoint.Store
}

func (r *scriptedRunner) Run(ctx context.Context, st *state.ResearchState) (string, error) {
	if r.mutate != nil {
		r.mutate(st)
	}
	if r.store != nil {
		_ = r.store.Save(ctx, st)
	}
	events.Emit(r.emit, "planner", "complete", map[string]interface{}{"phases": 2})
	return r.status, r.err
}

type runnerFunc func(ctx context.Context, st *state.ResearchState) (string, error)

func (f runnerFunc) Run(ctx context.Context, st *state.ResearchState) (string, error) {
	return f(ctx, st)
}

func newTestService(t *testing.T, status string, mutate func(st *state.ResearchState)) (*Service, checkpoint.Store) {
	t.Helper()
	store := checkpoint.NewMemoryStore()
	factory := func(emit events.Sink) Runner {
		return &scriptedRunner{status: status, emit: emit, mutate: mutate, store: store}
	}
	cfg := config.ResearchConfig{DefaultMaxPhases: 5}
	svc := NewService(factory, NewMemoryJobStore(), store, supervisor.NewRegistry(), cfg, log.New(io.Discard, "", 0))
	return svc, store
}

func TestStartRunsToCompletion(t *testing.T) {
	svc, _ := newTestService(t, driver.StatusCompleted, func(st *state.ResearchState) {
		st.FinalReport = "# Report"
		st.VerifiedFacts = []state.VerifiedFact{{Fact: "f", FinalConfidence: 0.9}}
	})

	depth := 3
	job, err := svc.Start(context.Background(), Request{
		TargetName: "Marcus Halvorsen",
		MaxDepth:   &depth,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("expected queued, got %q", job.Status)
	}
	svc.Wait()

	res, err := svc.Result(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.Status != driver.StatusCompleted {
		t.Fatalf("expected completed, got %q", res.Status)
	}
	if res.FinalReport != "# Report" || res.FactsCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestStartRejectsMissingTarget(t *testing.T) {
	svc, _ := newTestService(t, driver.StatusCompleted, nil)
	if _, err := svc.Start(context.Background(), Request{}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestStartDefaultsToDynamicSinglePhase(t *testing.T) {
	var captured *state.ResearchState
	svc, _ := newTestService(t, driver.StatusCompleted, func(st *state.ResearchState) {
		captured = st
	})

	job, err := svc.Start(context.Background(), Request{TargetName: "Target"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	if captured == nil {
		t.Fatalf("runner never saw the state for %s", job.ID)
	}
	if captured.MaxPhases != 1 || !captured.DynamicPhases {
		t.Fatalf("omitted max_depth must mean one dynamic phase, got phases=%d dynamic=%t",
			captured.MaxPhases, captured.DynamicPhases)
	}
}

func TestStartClampsDepthToConfiguredMaximum(t *testing.T) {
	var captured *state.ResearchState
	svc, _ := newTestService(t, driver.StatusCompleted, func(st *state.ResearchState) {
		captured = st
	})

	depth := 50
	if _, err := svc.Start(context.Background(), Request{TargetName: "Target", MaxDepth: &depth}); err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	if captured.MaxPhases != 5 {
		t.Fatalf("expected depth clamped to 5, got %d", captured.MaxPhases)
	}
	if captured.DynamicPhases {
		t.Fatalf("explicit depth must not enable dynamic mode")
	}
}

func TestCancelTerminalJobConflicts(t *testing.T) {
	svc, _ := newTestService(t, driver.StatusCompleted, nil)
	job, err := svc.Start(context.Background(), Request{TargetName: "Target"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	err = svc.Cancel(context.Background(), job.ID)
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
	if err := svc.Cancel(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestStatusReadsLiveCheckpoint(t *testing.T) {
	svc, store := newTestService(t, driver.StatusCompleted, func(st *state.ResearchState) {
		st.CurrentPhase = 2
		st.ExtractedFacts = []state.Fact{{Fact: "f1"}, {Fact: "f2"}}
		st.AuditLog = []state.AuditEntry{{Node: "verifier", Action: "verify_facts"}}
	})

	job, err := svc.Start(context.Background(), Request{TargetName: "Target"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	svc.Wait()

	// Checkpoint state should be visible through Status.
	if _, err := store.Load(context.Background(), job.ID); err != nil {
		t.Fatalf("checkpoint missing: %v", err)
	}
	info, err := svc.Status(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if info.FactsExtracted != 2 || info.CurrentPhase != 2 {
		t.Fatalf("unexpected status %+v", info)
	}
	if info.CurrentNode != "verifier" {
		t.Fatalf("expected current node from audit tail, got %q", info.CurrentNode)
	}
}

func TestStreamDeliversEventsAndExactlyOneDone(t *testing.T) {
	// Gate the runner so the subscription is in place before any event fires.
	subscribed := make(chan struct{})
	store := checkpoint.NewMemoryStore()
	factory := func(emit events.Sink) Runner {
		return runnerFunc(func(ctx context.Context, st *state.ResearchState) (string, error) {
			<-subscribed
			events.Emit(emit, "planner", "complete", map[string]interface{}{"phases": 2})
			return driver.StatusCompleted, nil
		})
	}
	svc := NewService(factory, NewMemoryJobStore(), store, supervisor.NewRegistry(),
		config.ResearchConfig{DefaultMaxPhases: 5}, log.New(io.Discard, "", 0))

	job, err := svc.Start(context.Background(), Request{TargetName: "Target"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ch, cancel := svc.Stream(job.ID)
	defer cancel()
	close(subscribed)

	var doneCount int
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				if doneCount != 1 {
					t.Fatalf("expected exactly one done event, got %d", doneCount)
				}
				svc.Wait()
				return
			}
			if ev.Node == "driver" && ev.Status == "done" {
				doneCount++
				if got := ev.Fields["status"]; got != driver.StatusCompleted {
					t.Fatalf("done event carries status %v", got)
				}
			}
		case <-timeout:
			t.Fatalf("stream never finished")
		}
	}
}
