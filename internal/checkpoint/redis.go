package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arguslabs/argus/internal/agent/state"
)

// RedisStore persists checkpoints in Redis so a run's progress survives the
// process and can be read by any replica serving status requests.
type RedisStore struct {
	rdb      redis.UniversalClient
	stateTTL time.Duration
	evalTTL  time.Duration
}

// NewRedisStore builds a store over rdb. stateTTL bounds how long a run
// checkpoint lives after its last write; evalTTL applies to finished-run
// snapshots kept for scoring.
func NewRedisStore(rdb redis.UniversalClient, stateTTL, evalTTL time.Duration) *RedisStore {
	if stateTTL <= 0 {
		stateTTL = 7 * 24 * time.Hour
	}
	if evalTTL <= 0 {
		evalTTL = 30 * 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, stateTTL: stateTTL, evalTTL: evalTTL}
}

func stateKey(researchID string) string { return "argus:job:" + researchID + ":state" }
func evalKey(researchID string) string  { return "argus:eval:" + researchID }

func (r *RedisStore) Save(ctx context.Context, st *state.ResearchState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := r.rdb.Set(ctx, stateKey(st.ResearchID), raw, r.stateTTL).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, researchID string) (*state.ResearchState, error) {
	return r.load(ctx, stateKey(researchID))
}

func (r *RedisStore) SaveEval(ctx context.Context, st *state.ResearchState) error {
	raw, err := json.Marshal(evalSnapshot(st))
	if err != nil {
		return fmt.Errorf("marshal eval snapshot: %w", err)
	}
	if err := r.rdb.Set(ctx, evalKey(st.ResearchID), raw, r.evalTTL).Err(); err != nil {
		return fmt.Errorf("save eval snapshot: %w", err)
	}
	return nil
}

func (r *RedisStore) LoadEval(ctx context.Context, researchID string) (*state.ResearchState, error) {
	return r.load(ctx, evalKey(researchID))
}

func (r *RedisStore) load(ctx context.Context, key string) (*state.ResearchState, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	var st state.ResearchState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &st, nil
}
