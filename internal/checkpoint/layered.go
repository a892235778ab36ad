package checkpoint

import (
	"context"
	"errors"

	"github.com/arguslabs/argus/internal/agent/state"
)

// Layered composes a fast in-memory layer over a durable backend. Writes go
// to the durable layer first, then to memory; reads hit memory and fall back
// to the durable layer, repopulating memory on the way out. One store, one
// interface: status queries in the owning process never pay a network round
// trip, while restarts and other replicas read the durable layer.
type Layered struct {
	mem     *MemoryStore
	durable Store
}

func NewLayered(durable Store) *Layered {
	return &Layered{mem: NewMemoryStore(), durable: durable}
}

func (l *Layered) Save(ctx context.Context, st *state.ResearchState) error {
	if err := l.durable.Save(ctx, st); err != nil {
		return err
	}
	return l.mem.Save(ctx, st)
}

func (l *Layered) Load(ctx context.Context, researchID string) (*state.ResearchState, error) {
	st, err := l.mem.Load(ctx, researchID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	st, err = l.durable.Load(ctx, researchID)
	if err != nil {
		return nil, err
	}
	_ = l.mem.Save(ctx, st)
	return st, nil
}

// Eval snapshots bypass the memory layer: they are written once at the end of
// a run and read rarely, long after the run's memory entry is gone.
func (l *Layered) SaveEval(ctx context.Context, st *state.ResearchState) error {
	return l.durable.SaveEval(ctx, st)
}

func (l *Layered) LoadEval(ctx context.Context, researchID string) (*state.ResearchState, error) {
	return l.durable.LoadEval(ctx, researchID)
}

// Forget evicts a finished run from the memory layer. The durable layer
// keeps serving it until its TTL expires.
func (l *Layered) Forget(researchID string) {
	l.mem.Forget(researchID)
}
