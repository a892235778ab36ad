package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrJobNotFound reports an unknown research ID.
var ErrJobNotFound = errors.New("research job not found")

// Job is the durable record of one research run.
type Job struct {
	ID          string     `json:"id"`
	TargetName  string     `json:"target_name"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// JobStore persists job records.
type JobStore interface {
	SaveJob(ctx context.Context, job Job) error
	LoadJob(ctx context.Context, id string) (Job, error)
}

// MemoryJobStore keeps job records in process memory.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]Job)}
}

func (m *MemoryJobStore) SaveJob(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *MemoryJobStore) LoadJob(_ context.Context, id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

// RedisJobStore persists job records in Redis with a retention TTL, refreshed
// on every save.
type RedisJobStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisJobStore(rdb redis.UniversalClient, ttl time.Duration) *RedisJobStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisJobStore{rdb: rdb, ttl: ttl}
}

func jobKey(id string) string { return "argus:job:" + id }

func (r *RedisJobStore) SaveJob(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.rdb.Set(ctx, jobKey(job.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (r *RedisJobStore) LoadJob(ctx context.Context, id string) (Job, error) {
	raw, err := r.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("load job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
