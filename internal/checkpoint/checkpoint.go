package checkpoint

import (
	"context"
	"errors"

	"github.com/arguslabs/argus/internal/agent/state"
)

// ErrNotFound reports that no checkpoint exists for the research ID.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists research state snapshots. The driver saves after every
// applied patch, so the latest checkpoint is always at most one step behind a
// crash and status queries read live progress from here.
type Store interface {
	Save(ctx context.Context, st *state.ResearchState) error
	Load(ctx context.Context, researchID string) (*state.ResearchState, error)
	// SaveEval snapshots a finished run for later scoring, under a longer
	// retention than the run checkpoint itself.
	SaveEval(ctx context.Context, st *state.ResearchState) error
	LoadEval(ctx context.Context, researchID string) (*state.ResearchState, error)
}

// evalSnapshot copies a terminal state and strips the working fields that
// only matter mid-run. Verified findings, the report, risk output, audit log
// and totals all survive; the work queue and raw fact pool do not.
func evalSnapshot(st *state.ResearchState) *state.ResearchState {
	snap := *st
	snap.PendingQueries = nil
	snap.SupervisorInstructions = ""
	snap.ExtractedFacts = nil
	return &snap
}
