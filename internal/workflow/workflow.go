// Package workflow runs an ordered list of steps where only critical steps
// may abort the run.
package workflow

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Step is a single unit of work.
type Step struct {
	Name string
	// Critical steps abort the run on failure. Failures of other steps are
	// logged and recorded in Result.Failures.
	Critical bool
	Run      func(ctx context.Context) error
}

// Failure records a non-critical step error.
type Failure struct {
	Step string
	Err  error
}

// Result summarises a run.
type Result struct {
	Completed []string
	Failures  []Failure
}

// StepError wraps the error of the critical step that aborted a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Runner executes steps sequentially.
type Runner struct {
	tracer    trace.Tracer
	onFailure func(ctx context.Context, step string)
}

// Option configures a Runner.
type Option func(*Runner)

// WithTracer records a span per step.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithFailureHook is called after every non-critical step failure.
func WithFailureHook(fn func(ctx context.Context, step string)) Option {
	return func(r *Runner) { r.onFailure = fn }
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{tracer: noop.NewTracerProvider().Tracer("")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes steps in order, each awaited before the next starts. It
// stops at the first critical failure and returns a *StepError; steps that
// already ran are not undone.
func (r *Runner) Run(ctx context.Context, steps ...Step) (Result, error) {
	var res Result
	lg := zctx.From(ctx)

	for _, s := range steps {
		err := r.runStep(ctx, s)
		if err == nil {
			res.Completed = append(res.Completed, s.Name)
			continue
		}
		if s.Critical {
			return res, &StepError{Step: s.Name, Err: err}
		}
		lg.Warn("Non-critical step failed",
			zap.String("step", s.Name),
			zap.Error(err),
		)
		res.Failures = append(res.Failures, Failure{Step: s.Name, Err: err})
		if r.onFailure != nil {
			r.onFailure(ctx, s.Name)
		}
	}
	return res, nil
}

func (r *Runner) runStep(ctx context.Context, s Step) error {
	ctx, span := r.tracer.Start(ctx, s.Name, trace.WithAttributes(
		attribute.Bool("workflow.step.critical", s.Critical),
	))
	defer span.End()

	if err := s.Run(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, s.Name)
	}
	return nil
}
