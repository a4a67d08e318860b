package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/telemetry"
	"github.com/wardenhq/warden/types"
)

// DropDirSource feeds the observe-decide-act loop from a spool directory:
// external detectors and humans propose actions by dropping one JSON file
// per action into the inbox. Consumed files are removed; malformed files
// are renamed aside so one bad drop cannot wedge every cycle.
type DropDirSource struct {
	dir    string
	logger *telemetry.Logger
	now    func() time.Time
}

// NewDropDirSource creates a source reading from dir, creating it if needed
func NewDropDirSource(dir string) (*DropDirSource, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &DropDirSource{
		dir:    dir,
		logger: telemetry.NewLogger("dropdir"),
		now:    time.Now,
	}, nil
}

// GetCandidateActions drains the inbox. Files are consumed in name order,
// so droppers can sequence proposals with sortable names.
func (s *DropDirSource) GetCandidateActions(ctx context.Context) ([]types.Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var actions []types.Action
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())

		data, err := os.ReadFile(path) // #nosec G304 -- path is inside the configured inbox
		if err != nil {
			s.logger.WithContext(ctx).Warn().Err(err).Str("file", entry.Name()).Msg("Reading dropped action failed")
			continue
		}

		var action types.Action
		if err := json.Unmarshal(data, &action); err != nil {
			s.reject(ctx, path, err)
			continue
		}
		if action.ID == "" {
			action.ID = uuid.NewString()
		}
		if action.ProposedAt.IsZero() {
			action.ProposedAt = s.now()
		}

		if err := os.Remove(path); err != nil {
			// Leave it for the next cycle rather than submit twice now
			s.logger.WithContext(ctx).Warn().Err(err).Str("file", entry.Name()).Msg("Consuming dropped action failed")
			continue
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// reject moves a malformed drop aside where an operator can inspect it
func (s *DropDirSource) reject(ctx context.Context, path string, cause error) {
	rejected := path + ".rejected"
	if err := os.Rename(path, rejected); err != nil {
		s.logger.WithContext(ctx).Error().Err(err).Str("file", path).Msg("Quarantining malformed drop failed")
		return
	}
	s.logger.WithContext(ctx).Warn().
		Err(cause).
		Str("file", filepath.Base(rejected)).
		Msg("Malformed action drop quarantined")
}
