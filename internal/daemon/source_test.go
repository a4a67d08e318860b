package daemon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/types"
)

func dropAction(t *testing.T, dir, name string, action types.Action) {
	t.Helper()
	data, err := json.Marshal(action)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
}

func TestDropDirSource_ConsumesDrops(t *testing.T) {
	dir := t.TempDir()
	source, err := NewDropDirSource(dir)
	require.NoError(t, err)

	dropAction(t, dir, "001-restart.json", types.Action{
		ID:         "act-1",
		Type:       types.ActionRestart,
		Targets:    []string{"svc-web"},
		RiskTier:   types.TierLow,
		Confidence: 0.9,
		ProposedAt: time.Now(),
	})
	dropAction(t, dir, "002-scale.json", types.Action{
		ID:         "act-2",
		Type:       types.ActionScale,
		Targets:    []string{"svc-api"},
		RiskTier:   types.TierMedium,
		Confidence: 0.85,
		ProposedAt: time.Now(),
	})

	actions, err := source.GetCandidateActions(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "act-1", actions[0].ID)
	assert.Equal(t, "act-2", actions[1].ID)

	// Consumed: the next cycle sees an empty inbox
	actions, err = source.GetCandidateActions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestDropDirSource_QuarantinesMalformedDrop(t *testing.T) {
	dir := t.TempDir()
	source, err := NewDropDirSource(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o600))
	dropAction(t, dir, "good.json", types.Action{
		ID:         "act-1",
		Type:       types.ActionRestart,
		Targets:    []string{"svc-web"},
		RiskTier:   types.TierLow,
		Confidence: 0.9,
		ProposedAt: time.Now(),
	})

	actions, err := source.GetCandidateActions(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 1, "the good drop must survive the bad one")

	_, err = os.Stat(filepath.Join(dir, "bad.json.rejected"))
	assert.NoError(t, err, "malformed drop must be quarantined, not deleted")
}

func TestDropDirSource_FillsMissingFields(t *testing.T) {
	dir := t.TempDir()
	source, err := NewDropDirSource(dir)
	require.NoError(t, err)

	// Minimal drop: no id, no timestamp
	dropAction(t, dir, "drop.json", types.Action{
		Type:       types.ActionRestart,
		Targets:    []string{"svc-web"},
		RiskTier:   types.TierLow,
		Confidence: 0.9,
	})

	actions, err := source.GetCandidateActions(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.NotEmpty(t, actions[0].ID)
	assert.False(t, actions[0].ProposedAt.IsZero())
}

func TestDropDirSource_IgnoresNonJSON(t *testing.T) {
	dir := t.TempDir()
	source, err := NewDropDirSource(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("drop actions here"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o750))

	actions, err := source.GetCandidateActions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actions)
}
