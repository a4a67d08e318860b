package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/types"
)

func bufferedLogger(buf *bytes.Buffer) *Logger {
	logger := zerolog.New(buf).With().Timestamp().Str("component", "test").Logger().Hook(OTELHook{})
	return &Logger{Logger: logger}
}

func TestLogDecision(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferedLogger(&buf)

	action := types.Action{
		ID:         "act-1",
		Type:       types.ActionDeploy,
		Targets:    []string{"svc1", "svc2"},
		RiskTier:   types.TierHigh,
		Confidence: 0.92,
		ProposedAt: time.Now(),
	}
	decision := types.Decision{
		ActionID:    "act-1",
		Verdict:     types.VerdictAllow,
		Reasons:     []string{types.ReasonAdmitted},
		EvaluatedAt: time.Now(),
	}

	logger.LogDecision(context.Background(), action, decision)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "act-1", entry["action_id"])
	assert.Equal(t, "allow", entry["verdict"])
	assert.Equal(t, "high", entry["risk_tier"])
	assert.InDelta(t, 0.92, entry["confidence"], 1e-9)
}

func TestLogAttempt_FailureLogsAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferedLogger(&buf)

	attempt := types.ExecutionAttempt{
		ActionID:   "act-2",
		Path:       "webhook",
		StartedAt:  time.Now(),
		FinishedAt: time.Now().Add(time.Second),
		Outcome:    types.OutcomeTimeout,
		Error:      "context deadline exceeded",
	}

	logger.LogAttempt(context.Background(), attempt)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "webhook", entry["path"])
	assert.Equal(t, "timeout", entry["outcome"])
}

func TestOTELHook_NoSpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferedLogger(&buf)

	logger.LogHaltReset(context.Background())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasTrace := entry["trace_id"]
	assert.False(t, hasTrace, "no trace_id expected without an active span")
}
