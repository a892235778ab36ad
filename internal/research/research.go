package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arguslabs/argus/config"
	"github.com/arguslabs/argus/internal/agent/driver"
	"github.com/arguslabs/argus/internal/agent/events"
	"github.com/arguslabs/argus/internal/agent/state"
	"github.com/arguslabs/argus/internal/agent/supervisor"
	"github.com/arguslabs/argus/internal/checkpoint"
)

// Job lifecycle statuses before the driver takes over.
const (
	StatusQueued  = "queued"
	StatusRunning = driver.StatusRunning
)

// ErrAlreadyTerminal reports a cancel request against a finished job.
var ErrAlreadyTerminal = errors.New("job already in a terminal state")

// Request starts one investigation. MaxDepth nil selects dynamic mode: the
// run starts with a single surface phase and the phase strategist decides how
// deep to go based on what that phase finds.
type Request struct {
	TargetName    string   `json:"target_name"`
	TargetContext string   `json:"context"`
	Objectives    []string `json:"objectives"`
	MaxDepth      *int     `json:"max_depth,omitempty"`
}

// StatusInfo is the live progress view of a run, read from the latest
// checkpoint rather than the job record.
type StatusInfo struct {
	ResearchID     string             `json:"research_id"`
	Status         string             `json:"status"`
	CurrentPhase   int                `json:"current_phase"`
	MaxPhases      int                `json:"max_phases"`
	FactsExtracted int                `json:"facts_extracted"`
	Entities       int                `json:"entities_discovered"`
	VerifiedFacts  int                `json:"verified_facts"`
	RiskFlags      int                `json:"risk_flags"`
	GraphNodes     int                `json:"graph_nodes"`
	Searches       int                `json:"searches_executed"`
	IterationCount int                `json:"iteration_count"`
	CurrentNode    string             `json:"current_node,omitempty"`
	Errors         []state.ErrorEntry `json:"errors,omitempty"`
}

// Result is the terminal view of a run.
type Result struct {
	ResearchID       string             `json:"research_id"`
	Status           string             `json:"status"`
	TargetName       string             `json:"target_name"`
	FinalReport      string             `json:"final_report,omitempty"`
	FactsCount       int                `json:"facts_count"`
	EntitiesCount    int                `json:"entities_count"`
	RiskFlagsCount   int                `json:"risk_flags_count"`
	OverallRiskScore *float64           `json:"overall_risk_score,omitempty"`
	TotalTokensUsed  int64              `json:"total_tokens_used"`
	TotalCostUSD     float64            `json:"total_cost_usd"`
	AuditLog         []state.AuditEntry `json:"audit_log,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// Runner drives one research state to a terminal status.
type Runner interface {
	Run(ctx context.Context, st *state.ResearchState) (string, error)
}

// RunnerFactory builds a fresh runner per job so usage accounting and the
// event sink are scoped to that run.
type RunnerFactory func(emit events.Sink) Runner

// Service owns the research job lifecycle: start, live status, results,
// cancellation, and event streaming.
type Service struct {
	factory  RunnerFactory
	jobs     JobStore
	ckpt     checkpoint.Store
	registry *supervisor.Registry
	hub      *streamHub
	cfg      config.ResearchConfig
	logger   *log.Logger
	wg       sync.WaitGroup
}

func NewService(factory RunnerFactory, jobs JobStore, ckpt checkpoint.Store,
	registry *supervisor.Registry, cfg config.ResearchConfig, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags)
	}
	return &Service{
		factory:  factory,
		jobs:     jobs,
		ckpt:     ckpt,
		registry: registry,
		hub:      newStreamHub(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Start validates the request, registers the job, and launches the run in the
// background. The returned job is in status queued.
func (s *Service) Start(ctx context.Context, req Request) (Job, error) {
	if req.TargetName == "" {
		return Job{}, fmt.Errorf("target_name is required")
	}

	dynamic := req.MaxDepth == nil
	maxPhases := 1
	if !dynamic {
		maxPhases = *req.MaxDepth
		if maxPhases < 1 {
			return Job{}, fmt.Errorf("max_depth must be at least 1")
		}
		if limit := s.cfg.DefaultMaxPhases; limit > 0 && maxPhases > limit {
			maxPhases = limit
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	job := Job{ID: id, TargetName: req.TargetName, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return Job{}, fmt.Errorf("register job: %w", err)
	}

	st := state.New(id, req.TargetName, req.TargetContext, req.Objectives, maxPhases, dynamic)
	if err := s.ckpt.Save(ctx, st); err != nil {
		return Job{}, fmt.Errorf("seed checkpoint: %w", err)
	}

	s.logger.Printf("research %s queued for target %q (phases=%d dynamic=%t)",
		id, req.TargetName, maxPhases, dynamic)

	s.wg.Add(1)
	go s.execute(job, st)
	return job, nil
}

func (s *Service) execute(job Job, st *state.ResearchState) {
	defer s.wg.Done()
	ctx := context.Background()

	job.Status = StatusRunning
	job.UpdatedAt = time.Now().UTC()
	s.saveJobQuiet(ctx, job)

	emit := func(ev events.Event) { s.hub.Publish(job.ID, ev) }
	runner := s.factory(emit)

	status, err := runner.Run(ctx, st)

	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err != nil {
		job.Error = err.Error()
	}
	s.saveJobQuiet(ctx, job)

	if status == driver.StatusCompleted {
		if err := s.ckpt.SaveEval(ctx, st); err != nil {
			s.logger.Printf("eval snapshot for %s failed: %v", job.ID, err)
		}
	}
	// Safety net: the supervisor normally clears the signal, but a run that
	// fails before the next tick would leak it.
	if s.registry != nil {
		s.registry.Clear(job.ID)
	}
	// Finished runs leave the checkpoint store's fast layer; the durable
	// layer keeps serving status and result reads until its TTL.
	if layered, ok := s.ckpt.(*checkpoint.Layered); ok {
		layered.Forget(job.ID)
	}

	s.logger.Printf("research %s finished with status %s", job.ID, status)
	s.hub.Finish(job.ID, events.Event{
		Node:      "driver",
		Status:    "done",
		Timestamp: now,
		Fields:    map[string]interface{}{"status": status},
	})
}

// Status reads lifecycle status from the job record and live progress from
// the latest checkpoint.
func (s *Service) Status(ctx context.Context, id string) (StatusInfo, error) {
	job, err := s.jobs.LoadJob(ctx, id)
	if err != nil {
		return StatusInfo{}, err
	}
	info := StatusInfo{ResearchID: id, Status: job.Status}

	st, err := s.ckpt.Load(ctx, id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return info, nil
		}
		return StatusInfo{}, err
	}
	info.CurrentPhase = st.CurrentPhase
	info.MaxPhases = st.MaxPhases
	info.FactsExtracted = len(st.ExtractedFacts)
	info.Entities = len(st.Entities)
	info.VerifiedFacts = len(st.VerifiedFacts)
	info.RiskFlags = len(st.RiskFlags)
	info.GraphNodes = len(st.GraphNodesCreated)
	info.Searches = len(st.SearchQueriesExecuted)
	info.IterationCount = st.IterationCount
	info.Errors = st.Errors
	if n := len(st.AuditLog); n > 0 {
		info.CurrentNode = st.AuditLog[n-1].Node
	}
	return info, nil
}

// Result returns the full outcome of a run, served from the checkpoint.
func (s *Service) Result(ctx context.Context, id string) (Result, error) {
	job, err := s.jobs.LoadJob(ctx, id)
	if err != nil {
		return Result{}, err
	}
	res := Result{ResearchID: id, Status: job.Status, TargetName: job.TargetName, Error: job.Error}

	st, err := s.ckpt.Load(ctx, id)
	if errors.Is(err, checkpoint.ErrNotFound) {
		// Run checkpoint expired; the eval snapshot outlives it.
		st, err = s.ckpt.LoadEval(ctx, id)
	}
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return res, nil
		}
		return Result{}, err
	}
	res.FinalReport = st.FinalReport
	res.FactsCount = len(st.VerifiedFacts)
	res.EntitiesCount = len(st.Entities)
	res.RiskFlagsCount = len(st.RiskFlags)
	res.OverallRiskScore = st.OverallRiskScore
	res.TotalTokensUsed = st.TotalTokensUsed
	res.TotalCostUSD = st.TotalCostUSD
	res.AuditLog = st.AuditLog
	return res, nil
}

// Cancel signals cooperative cancellation. The run stops at the next
// supervisor tick; steps already in flight finish first.
func (s *Service) Cancel(ctx context.Context, id string) error {
	job, err := s.jobs.LoadJob(ctx, id)
	if err != nil {
		return err
	}
	if isTerminal(job.Status) {
		return fmt.Errorf("%w: %s", ErrAlreadyTerminal, job.Status)
	}
	s.registry.Cancel(id)
	s.logger.Printf("cancellation signalled for research %s", id)
	return nil
}

// Stream subscribes to the run's live event feed.
func (s *Service) Stream(id string) (<-chan events.Event, func()) {
	return s.hub.Subscribe(id)
}

// Wait blocks until every background run has finished. Test helper.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) saveJobQuiet(ctx context.Context, job Job) {
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		s.logger.Printf("job record save for %s failed: %v", job.ID, err)
	}
}

func isTerminal(status string) bool {
	switch status {
	case driver.StatusCompleted, driver.StatusFailed, driver.StatusCancelled, driver.StatusExhausted:
		return true
	}
	return false
}
