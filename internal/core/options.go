package core

import (
	"context"
	"time"
)

// Clock supplies timestamps for commit bookkeeping.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// Logger is the minimal structured logger the synchronizer writes to.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes the outcome and duration of synchronizer
// operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts spans around synchronizer operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended with the operation outcome.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// ErrorReporter receives diagnostics the synchronizer recovered from.
type ErrorReporter interface {
	ReportError(ctx context.Context, err error)
}

// ErrorReporterFunc adapts a function to the ErrorReporter interface.
type ErrorReporterFunc func(ctx context.Context, err error)

// ReportError implements ErrorReporter.
func (f ErrorReporterFunc) ReportError(ctx context.Context, err error) {
	f(ctx, err)
}

type logReporter struct {
	logger Logger
}

func (r logReporter) ReportError(_ context.Context, err error) {
	r.logger.Error("valsync diagnostic", "error", err)
}

// Option configures a Synchronizer.
type Option func(*options)

type options struct {
	clock      Clock
	logger     Logger
	metrics    MetricsRecorder
	tracer     Tracer
	reporter   ErrorReporter
	validators map[string]Validator
}

func defaultOptions() options {
	return options{
		clock:      ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:     noopLogger{},
		metrics:    noopMetricsRecorder{},
		tracer:     noopTracer{},
		validators: make(map[string]Validator),
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger routes synchronizer logs to logger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder records commit and unmount outcomes.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer wraps commits and unmounts in spans.
func WithTracer(tracer Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithErrorReporter receives recovered diagnostics. Without it diagnostics
// are logged at error level.
func WithErrorReporter(reporter ErrorReporter) Option {
	return func(o *options) {
		if reporter != nil {
			o.reporter = reporter
		}
	}
}

// WithValidators registers named prop validators referenced by code
// component metadata.
func WithValidators(validators map[string]Validator) Option {
	return func(o *options) {
		for name, v := range validators {
			if name != "" && v != nil {
				o.validators[name] = v
			}
		}
	}
}
