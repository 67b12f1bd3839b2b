package generation

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"charforge/internal/domain"
	"charforge/internal/engine"
	"charforge/internal/infra"
	"charforge/internal/workflow"
)

// State enumerates the orchestrator's job states.
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
)

// EngineClient is the subset of the engine API the orchestrator drives.
type EngineClient interface {
	Submit(ctx context.Context, wf any) (string, error)
	Poll(ctx context.Context, jobID string) (*engine.JobSnapshot, error)
	FetchResult(ctx context.Context, ref engine.ImageRef) ([]byte, error)
}

// Result carries one completed generation.
type Result struct {
	Bytes    []byte
	Filename string
	JobID    string
}

// Options configures an Orchestrator.
type Options struct {
	Client       EngineClient
	MaxAttempts  int
	PollInterval time.Duration
	Logger       *infra.Logger
}

// Orchestrator submits a single workflow and drives a bounded poll loop
// until its output image is available, the attempt budget is exhausted, or
// the engine reports failure. It owns exactly one job's lifetime per Run.
type Orchestrator struct {
	client   EngineClient
	attempts int
	interval time.Duration
	logger   *infra.Logger
}

// NewOrchestrator constructs an orchestrator with bounded polling defaults.
func NewOrchestrator(opts Options) *Orchestrator {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 60
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Orchestrator{
		client:   opts.Client,
		attempts: attempts,
		interval: interval,
		logger:   logger,
	}
}

// Run executes the workflow to completion. The output node is located per
// workflow before submission, since node ids are template-specific; a
// workflow without a save node fails immediately instead of burning the
// poll budget.
func (o *Orchestrator) Run(ctx context.Context, wf workflow.Workflow) (*Result, error) {
	outputID, err := wf.OutputNode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResultRetrieval, err)
	}

	jobID, err := o.client.Submit(ctx, wf)
	if err != nil {
		return nil, err
	}
	state := StateSubmitted
	o.logger.Debug().Str("job_id", jobID).Str("output_node", outputID).Msg("generation: submitted")

	state = StatePolling
	for attempt := 0; attempt < o.attempts; attempt++ {
		if err := o.wait(ctx); err != nil {
			return nil, err
		}
		snapshot, err := o.client.Poll(ctx, jobID)
		if err != nil {
			// Transient history errors are absorbed; the attempt budget bounds them.
			o.logger.Debug().Err(err).Str("job_id", jobID).Int("attempt", attempt).Msg("generation: poll error")
			continue
		}
		if snapshot == nil {
			continue
		}
		if snapshot.Failed() {
			state = StateFailed
			return nil, fmt.Errorf("generation: engine reported failure for job %s", jobID)
		}
		out, ok := snapshot.Outputs[outputID]
		if !ok || len(out.Images) == 0 {
			continue
		}
		ref := out.Images[0]
		data, err := o.client.FetchResult(ctx, ref)
		if err != nil || len(data) == 0 {
			state = StateFailed
			if err == nil {
				err = fmt.Errorf("empty image body")
			}
			return nil, fmt.Errorf("%w: job %s: %v", domain.ErrResultRetrieval, jobID, err)
		}
		state = StateCompleted
		o.logger.Info().Str("job_id", jobID).Str("filename", ref.Filename).Str("state", string(state)).Msg("generation: completed")
		return &Result{Bytes: data, Filename: ref.Filename, JobID: jobID}, nil
	}
	state = StateTimedOut
	return nil, fmt.Errorf("%w: job %s after %d attempts (state %s)", domain.ErrGenerationTimeout, jobID, o.attempts, state)
}

// wait is the poll loop's single suspension point.
func (o *Orchestrator) wait(ctx context.Context) error {
	timer := time.NewTimer(o.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
