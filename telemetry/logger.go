package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wardenhq/warden/types"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("component", component).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for governance events

// LogDecision records a governor verdict
func (l *Logger) LogDecision(ctx context.Context, action types.Action, decision types.Decision) {
	l.WithContext(ctx).Info().
		Str("action_id", action.ID).
		Str("action_type", action.Type).
		Strs("targets", action.Targets).
		Str("risk_tier", string(action.RiskTier)).
		Float64("confidence", action.Confidence).
		Str("verdict", string(decision.Verdict)).
		Strs("reasons", decision.Reasons).
		Msg("action evaluated")
}

// LogAttempt records one path attempt
func (l *Logger) LogAttempt(ctx context.Context, attempt types.ExecutionAttempt) {
	event := l.WithContext(ctx).Info()
	if attempt.Outcome != types.OutcomeSuccess {
		event = l.WithContext(ctx).Warn()
	}
	event.
		Str("action_id", attempt.ActionID).
		Str("path", attempt.Path).
		Str("outcome", string(attempt.Outcome)).
		Dur("duration", attempt.FinishedAt.Sub(attempt.StartedAt)).
		Str("error", attempt.Error).
		Msg("path attempt finished")
}

// LogStateChange records a lifecycle transition
func (l *Logger) LogStateChange(ctx context.Context, actionID string, from, to types.ActionState) {
	l.WithContext(ctx).Info().
		Str("action_id", actionID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("action state changed")
}

// LogHaltTripped records an autonomy suspension
func (l *Logger) LogHaltTripped(ctx context.Context, reason string) {
	l.WithContext(ctx).Error().
		Str("reason", reason).
		Msg("autonomy halted")
}

// LogHaltReset records a manual halt release
func (l *Logger) LogHaltReset(ctx context.Context) {
	l.WithContext(ctx).Info().
		Msg("autonomy resumed")
}

// LogDroppedEvent records a state-machine event that was logged and dropped
func (l *Logger) LogDroppedEvent(ctx context.Context, actionID string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("action_id", actionID).
		Msg("state transition rejected, event dropped")
}
