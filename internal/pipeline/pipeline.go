// Package pipeline runs a ticket through classify, troubleshoot and compose,
// either in-process or across the tool-call bridge.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/itsm-triage/internal/domain"
	"github.com/spec-kit/itsm-triage/internal/events"
	"github.com/spec-kit/itsm-triage/internal/observability"
	apperrors "github.com/spec-kit/itsm-triage/pkg/util"
)

// Runner tags.
const (
	RunnerDirect = "direct"
	RunnerMCP    = "mcp"
)

// Stage names, also used as tool names on the bridge.
const (
	StageClassify     = "classify"
	StageTroubleshoot = "troubleshoot"
	StageCompose      = "compose"
)

// Stages is one way of executing the three pipeline steps.
type Stages interface {
	Classify(ctx context.Context, ticket domain.Ticket) (domain.Classification, error)
	Troubleshoot(ctx context.Context, ticket domain.Ticket, cls domain.Classification) (domain.Troubleshooting, error)
	Compose(ctx context.Context, ticket domain.Ticket, cls domain.Classification, ts domain.Troubleshooting) (domain.Communication, error)
}

// Session is a Stages bound to a resource that must be released.
type Session interface {
	Stages
	Close() error
}

// SessionFactory opens a bridge session for one run.
type SessionFactory func(ctx context.Context) (Session, error)

// Result is the combined output of one run.
type Result struct {
	Ticket          domain.Ticket          `json:"ticket"`
	Classification  domain.Classification  `json:"classification"`
	Troubleshooting domain.Troubleshooting `json:"troubleshooting"`
	Communication   domain.Communication   `json:"communication"`
	Runner          string                 `json:"runner"`
}

// StageError records which stage and runner a failure came from.
type StageError struct {
	Stage  string
	Runner string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage (%s runner): %v", e.Stage, e.Runner, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrorDetails merges the wrapped error's details with stage and runner.
func (e *StageError) ErrorDetails() map[string]any {
	details := map[string]any{}
	var inner interface{ ErrorDetails() map[string]any }
	if errors.As(e.Err, &inner) {
		maps.Copy(details, inner.ErrorDetails())
	}
	details["stage"] = e.Stage
	details["runner"] = e.Runner
	return details
}

// Dependencies bundles collaborators for the runner.
type Dependencies struct {
	Stages      Stages
	OpenSession SessionFactory
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Runner coordinates pipeline runs.
type Runner struct {
	stages      Stages
	openSession SessionFactory
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewRunner creates a runner. Stages backs direct runs and OpenSession
// backs tool-call runs; either may be nil if that mode is not used.
func NewRunner(deps Dependencies) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		stages:      deps.Stages,
		openSession: deps.OpenSession,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
	}
}

// Run dispatches to RunDirect or RunMCP by runner name.
func (r *Runner) Run(ctx context.Context, runner string, ticket domain.Ticket) (Result, error) {
	switch runner {
	case RunnerDirect, "":
		return r.RunDirect(ctx, ticket)
	case RunnerMCP:
		return r.RunMCP(ctx, ticket)
	default:
		return Result{}, apperrors.NewValidationError("unknown runner", map[string]any{
			"runner":  runner,
			"allowed": []string{RunnerDirect, RunnerMCP},
		})
	}
}

// RunDirect runs the stages in-process. Any stage failure ends the run.
func (r *Runner) RunDirect(ctx context.Context, ticket domain.Ticket) (Result, error) {
	if r.stages == nil {
		return Result{}, errors.New("direct runner not configured")
	}
	return r.run(ctx, RunnerDirect, r.stages, ticket)
}

// RunMCP runs each stage as a tool call on a freshly spawned server. The
// session is always closed, whether or not the run succeeds.
func (r *Runner) RunMCP(ctx context.Context, ticket domain.Ticket) (Result, error) {
	if r.openSession == nil {
		return Result{}, errors.New("mcp runner not configured")
	}
	session, err := r.openSession(ctx)
	if err != nil {
		err = &StageError{Stage: "connect", Runner: RunnerMCP, Err: err}
		r.logger.Error("bridge session failed", zap.String("ticket_id", ticket.TicketID), zap.Error(err))
		return Result{}, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			r.logger.Warn("bridge session close", zap.Error(cerr))
		}
	}()
	return r.run(ctx, RunnerMCP, session, ticket)
}

func (r *Runner) run(ctx context.Context, runner string, stages Stages, ticket domain.Ticket) (Result, error) {
	tr := &trace{r: r, runID: uuid.NewString(), runner: runner, ticketID: ticket.TicketID, start: time.Now()}
	tr.publish(ctx, events.EventRunStarted, "", nil)

	cls, err := runStage(ctx, tr, StageClassify, func() (domain.Classification, error) {
		return stages.Classify(ctx, ticket)
	})
	if err != nil {
		return Result{}, tr.fail(ctx, err)
	}
	ts, err := runStage(ctx, tr, StageTroubleshoot, func() (domain.Troubleshooting, error) {
		return stages.Troubleshoot(ctx, ticket, cls)
	})
	if err != nil {
		return Result{}, tr.fail(ctx, err)
	}
	comm, err := runStage(ctx, tr, StageCompose, func() (domain.Communication, error) {
		return stages.Compose(ctx, ticket, cls, ts)
	})
	if err != nil {
		return Result{}, tr.fail(ctx, err)
	}

	tr.publish(ctx, events.EventRunCompleted, "", events.RunCompletedPayload{ElapsedMS: tr.elapsedMS()})
	r.logger.Info("triage run completed",
		zap.String("run_id", tr.runID),
		zap.String("ticket_id", ticket.TicketID),
		zap.String("runner", runner),
		zap.String("category", string(cls.Category)),
		zap.String("priority", string(cls.Priority)),
		zap.Int64("elapsed_ms", tr.elapsedMS()))

	return Result{
		Ticket:          ticket,
		Classification:  cls,
		Troubleshooting: ts,
		Communication:   comm,
		Runner:          runner,
	}, nil
}

func runStage[T any](ctx context.Context, tr *trace, stage string, fn func() (T, error)) (T, error) {
	tr.publish(ctx, events.EventStageStarted, stage, nil)
	start := time.Now()
	out, err := fn()
	elapsed := time.Since(start)
	if err != nil {
		tr.r.metrics.RecordStage(tr.runner, stage, "failed", elapsed)
		err = &StageError{Stage: stage, Runner: tr.runner, Err: err}
		tr.publish(ctx, events.EventStageFailed, stage, failurePayload(elapsed, err))
		return out, err
	}
	tr.r.metrics.RecordStage(tr.runner, stage, "completed", elapsed)
	tr.publish(ctx, events.EventStageCompleted, stage, events.StageCompletedPayload{
		ElapsedMS: elapsed.Milliseconds(),
		Output:    out,
	})
	return out, nil
}

// trace carries per-run identity for events and logs.
type trace struct {
	r        *Runner
	runID    string
	runner   string
	ticketID string
	start    time.Time
}

func (t *trace) elapsedMS() int64 { return time.Since(t.start).Milliseconds() }

func (t *trace) fail(ctx context.Context, err error) error {
	t.publish(ctx, events.EventRunFailed, "", failurePayload(time.Since(t.start), err))
	t.r.logger.Error("triage run failed",
		zap.String("run_id", t.runID),
		zap.String("ticket_id", t.ticketID),
		zap.String("runner", t.runner),
		zap.Error(err))
	return err
}

func (t *trace) publish(ctx context.Context, typ events.EventType, stage string, payload any) {
	if t.r.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		RunID:     t.runID,
		TicketID:  t.ticketID,
		Runner:    t.runner,
		Stage:     stage,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := t.r.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		t.r.logger.Warn("event handler failed", zap.String("event_type", string(typ)), zap.Error(err))
	}
}

func failurePayload(elapsed time.Duration, err error) events.FailurePayload {
	return events.FailurePayload{
		ElapsedMS: elapsed.Milliseconds(),
		Code:      apperrors.ToDomainError(err).Code,
		Error:     err.Error(),
	}
}
