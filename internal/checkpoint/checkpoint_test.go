package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/arguslabs/argus/internal/agent/state"
)

func sampleState() *state.ResearchState {
	st := state.New("res-42", "Marcus Halvorsen", "Fund manager", []string{"background"}, 3, false)
	st.CurrentPhase = 2
	st.ExtractedFacts = []state.Fact{{Fact: "f1", Confidence: 0.8}}
	st.URLsVisited.Add("https://example.com")
	return st
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	st := sampleState()
	if err := m.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the original must not leak into the stored snapshot.
	st.CurrentPhase = 99

	got, err := m.Load(ctx, "res-42")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.CurrentPhase != 2 {
		t.Fatalf("expected snapshot phase 2, got %d", got.CurrentPhase)
	}
	if len(got.ExtractedFacts) != 1 || got.ExtractedFacts[0].Fact != "f1" {
		t.Fatalf("facts did not survive the round trip: %v", got.ExtractedFacts)
	}

	if _, err := m.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, time.Hour, 2*time.Hour)

	st := sampleState()
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("argus:job:res-42:state") {
		t.Fatalf("expected checkpoint key in redis")
	}

	got, err := store.Load(ctx, "res-42")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.CurrentPhase != 2 || got.TargetName != "Marcus Halvorsen" {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := store.Load(ctx, "res-42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after TTL, got %v", err)
	}
}

func TestRedisStoreEvalSnapshotOutlivesCheckpoint(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, time.Hour, 10*time.Hour)

	st := sampleState()
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveEval(ctx, st); err != nil {
		t.Fatalf("save eval: %v", err)
	}

	mr.FastForward(5 * time.Hour)
	if _, err := store.Load(ctx, "res-42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired checkpoint, got %v", err)
	}
	got, err := store.LoadEval(ctx, "res-42")
	if err != nil {
		t.Fatalf("load eval: %v", err)
	}
	if got.ResearchID != "res-42" {
		t.Fatalf("unexpected eval snapshot %+v", got)
	}
}

func TestEvalSnapshotStripsWorkingFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	st := sampleState()
	st.PendingQueries = []string{"leftover query"}
	st.SupervisorInstructions = "focus on funds"
	st.VerifiedFacts = []state.VerifiedFact{{Fact: "v1"}}
	st.FinalReport = "# Report"
	if err := m.SaveEval(ctx, st); err != nil {
		t.Fatalf("save eval: %v", err)
	}

	got, err := m.LoadEval(ctx, "res-42")
	if err != nil {
		t.Fatalf("load eval: %v", err)
	}
	if len(got.PendingQueries) != 0 || got.SupervisorInstructions != "" || len(got.ExtractedFacts) != 0 {
		t.Fatalf("working fields survived the eval snapshot: %+v", got)
	}
	if got.FinalReport != "# Report" || len(got.VerifiedFacts) != 1 {
		t.Fatalf("terminal output missing from eval snapshot: %+v", got)
	}
}

func TestLayeredReadThroughAndForget(t *testing.T) {
	ctx := context.Background()
	durable := NewMemoryStore()
	store := NewLayered(durable)

	st := sampleState()
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	// A wiped durable layer must not be visible while memory holds the run.
	durable.Forget("res-42")
	got, err := store.Load(ctx, "res-42")
	if err != nil {
		t.Fatalf("load from memory layer: %v", err)
	}
	if got.CurrentPhase != 2 {
		t.Fatalf("unexpected snapshot phase %d", got.CurrentPhase)
	}

	// After eviction the durable layer is the only source.
	store.Forget("res-42")
	if _, err := store.Load(ctx, "res-42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after forget, got %v", err)
	}

	// Read-through repopulates memory from the durable layer.
	if err := durable.Save(ctx, st); err != nil {
		t.Fatalf("seed durable: %v", err)
	}
	if _, err := store.Load(ctx, "res-42"); err != nil {
		t.Fatalf("read through: %v", err)
	}
	durable.Forget("res-42")
	if _, err := store.Load(ctx, "res-42"); err != nil {
		t.Fatalf("memory layer not repopulated: %v", err)
	}
}
