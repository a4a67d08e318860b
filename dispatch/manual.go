package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wardenhq/warden/telemetry"
	"github.com/wardenhq/warden/types"
)

// Ticket is a handoff of one action to a human operator
type Ticket struct {
	Action    types.Action `json:"action"`
	CreatedAt time.Time    `json:"created_at"`
	Status    string       `json:"status"`
}

// ManualExecutor is the terminal path: it converts the action into an
// operator ticket instead of executing it. Enqueueing always succeeds,
// so a dispatch chain ending in this path never exhausts. Tickets that
// cannot be written to disk stay queued in memory until the next flush.
type ManualExecutor struct {
	mu      sync.Mutex
	dir     string
	pending []Ticket
	logger  *telemetry.Logger
	now     func() time.Time
}

// NewManualExecutor writes tickets under dir
func NewManualExecutor(dir string) *ManualExecutor {
	return &ManualExecutor{
		dir:    dir,
		logger: telemetry.NewLogger("manual-path"),
		now:    time.Now,
	}
}

func (m *ManualExecutor) Name() string { return "manual" }

// Execute enqueues a ticket for the action. Never returns an error.
func (m *ManualExecutor) Execute(ctx context.Context, action types.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ticket := Ticket{
		Action:    action,
		CreatedAt: m.now(),
		Status:    "open",
	}

	if err := m.writeTicket(ticket); err != nil {
		m.pending = append(m.pending, ticket)
		m.logger.WithContext(ctx).Warn().
			Err(err).
			Str("action_id", action.ID).
			Msg("Ticket write failed, holding in memory")
		return nil
	}

	m.flushPendingLocked()

	m.logger.WithContext(ctx).Info().
		Str("action_id", action.ID).
		Str("action_type", string(action.Type)).
		Msg("Action handed off to operator")
	return nil
}

// Pending returns the number of tickets held in memory awaiting flush
func (m *ManualExecutor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *ManualExecutor) writeTicket(ticket Ticket) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("creating ticket dir: %w", err)
	}
	data, err := json.MarshalIndent(ticket, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ticket: %w", err)
	}
	name := fmt.Sprintf("ticket-%s-%s.json", ticket.CreatedAt.Format("20060102-150405"), ticket.Action.ID)
	return os.WriteFile(filepath.Join(m.dir, name), data, 0644)
}

func (m *ManualExecutor) flushPendingLocked() {
	remaining := m.pending[:0]
	for _, ticket := range m.pending {
		if err := m.writeTicket(ticket); err != nil {
			remaining = append(remaining, ticket)
		}
	}
	m.pending = remaining
}
