package main

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/types"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func TestBuildAction_FromFlags(t *testing.T) {
	submitFile = ""
	submitType = "restart"
	submitTargets = []string{"svc-web", "svc-api"}
	submitTier = "medium"
	submitConfidence = 0.9
	submitReason = "error spike"

	action, err := buildAction()
	require.NoError(t, err)

	assert.NotEmpty(t, action.ID)
	assert.Equal(t, "restart", action.Type)
	assert.Equal(t, []string{"svc-web", "svc-api"}, action.Targets)
	assert.Equal(t, types.TierMedium, action.RiskTier)
	assert.Equal(t, 0.9, action.Confidence)
	assert.False(t, action.ProposedAt.IsZero())
	assert.NoError(t, action.Validate())
}

func TestBuildAction_FromFile(t *testing.T) {
	path := t.TempDir() + "/action.json"
	content := `{
		"type": "scale",
		"targets": ["svc-worker"],
		"risk_tier": "low",
		"confidence": 0.85,
		"reason": "queue backlog",
		"proposed_at": "2026-08-30T12:00:00Z"
	}`
	require.NoError(t, writeFile(path, content))

	submitFile = path
	defer func() { submitFile = "" }()

	action, err := buildAction()
	require.NoError(t, err)

	assert.NotEmpty(t, action.ID, "missing id should be generated")
	assert.Equal(t, "scale", action.Type)
	assert.Equal(t, types.TierLow, action.RiskTier)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), action.ProposedAt)
}

func TestLoadRuntimeConfig_Defaults(t *testing.T) {
	configPath = ""
	cfg, err := loadRuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Loop.Interval)
}

func TestLoadRuntimeConfig_MissingFile(t *testing.T) {
	configPath = "/nonexistent/warden.toml"
	defer func() { configPath = "" }()

	_, err := loadRuntimeConfig()
	require.Error(t, err)
}
