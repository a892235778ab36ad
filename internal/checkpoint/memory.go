package checkpoint

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/arguslabs/argus/internal/agent/state"
)

// MemoryStore keeps checkpoints in process memory. Used for tests and for
// single-node runs without Redis; snapshots do not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
	evals  map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string][]byte),
		evals:  make(map[string][]byte),
	}
}

func (m *MemoryStore) Save(_ context.Context, st *state.ResearchState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.ResearchID] = raw
	return nil
}

func (m *MemoryStore) Load(_ context.Context, researchID string) (*state.ResearchState, error) {
	m.mu.RLock()
	raw, ok := m.states[researchID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var st state.ResearchState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (m *MemoryStore) SaveEval(_ context.Context, st *state.ResearchState) error {
	raw, err := json.Marshal(evalSnapshot(st))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evals[st.ResearchID] = raw
	return nil
}

// Forget drops a run's checkpoint from memory. Eval snapshots are kept.
func (m *MemoryStore) Forget(researchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, researchID)
}

func (m *MemoryStore) LoadEval(_ context.Context, researchID string) (*state.ResearchState, error) {
	m.mu.RLock()
	raw, ok := m.evals[researchID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var st state.ResearchState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
