package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/types"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]types.Action
	polls   int
	err     error
}

func (f *fakeSource) GetCandidateActions(ctx context.Context) ([]types.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func TestLoop_ProcessesCandidates(t *testing.T) {
	h := newHarness(t, singlePathConfig("api"), &scriptedExecutor{name: "api"})

	source := &fakeSource{batches: [][]types.Action{
		{proposedAction("act-1", 0.95), proposedAction("act-2", 0.95)},
	}}
	loop := NewLoop(h.core, source, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// Give the loop a few ticks to drain the batch
	require.Eventually(t, func() bool {
		record, err := h.store.GetRecord("act-2")
		return err == nil && record != nil && record.State == types.StateSucceeded
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Loop did not stop after cancellation")
	}

	for _, id := range []string{"act-1", "act-2"} {
		record, err := h.store.GetRecord(id)
		require.NoError(t, err)
		require.NotNil(t, record, id)
		assert.Equal(t, types.StateSucceeded, record.State, id)
	}
}

func TestLoop_ShutdownDrainsInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	h := newHarness(t, singlePathConfig("api"))
	h.core.dispatcher.Register(&blockingExecutor{
		name:    "api",
		release: release,
		started: started,
		once:    &once,
	})

	source := &fakeSource{batches: [][]types.Action{
		{proposedAction("act-1", 0.95)},
	}}
	loop := NewLoop(h.core, source, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	<-started // Action is mid-dispatch
	cancel()

	// The loop must not return while the action is still executing
	select {
	case <-done:
		t.Fatal("Loop returned before in-flight action finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Loop did not stop after in-flight action finished")
	}

	record, err := h.store.GetRecord("act-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.State.Terminal(), "in-flight action must settle before shutdown")
}

func TestLoop_ShutdownDoesNotAbortInFlight(t *testing.T) {
	cfg := singlePathConfig("api")
	// A single synthetic failure would suspend autonomy
	cfg.Monitor.CascadingThreshold = 1

	started := make(chan struct{})
	var once sync.Once
	h := newHarness(t, cfg)
	h.core.dispatcher.Register(&ctxAwareExecutor{
		name:    "api",
		delay:   50 * time.Millisecond,
		started: started,
		once:    &once,
	})

	source := &fakeSource{batches: [][]types.Action{
		{proposedAction("act-1", 0.95)},
	}}
	loop := NewLoop(h.core, source, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	<-started // Action is mid-dispatch
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Loop did not stop after cancellation")
	}

	// Cancellation must not turn an executing action into a failure
	record, err := h.store.GetRecord("act-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, types.StateSucceeded, record.State,
		"shutdown mid-dispatch must let the action finish")
	assert.False(t, h.halt.Active(),
		"a plain shutdown must not feed the failure window")
}

func TestLoop_SourceErrorDoesNotStopLoop(t *testing.T) {
	h := newHarness(t, singlePathConfig("api"), &scriptedExecutor{name: "api"})

	source := &fakeSource{err: errors.New("signal backend unreachable")}
	loop := NewLoop(h.core, source, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		return source.pollCount() >= 3
	}, time.Second, 5*time.Millisecond, "loop must keep polling through source errors")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Loop did not stop after cancellation")
	}
}

func TestLoop_HaltedCoreDeniesWholeBatch(t *testing.T) {
	h := newHarness(t, singlePathConfig("api"), &scriptedExecutor{name: "api"})
	h.core.Halt(context.Background(), "manual")

	batch := make([]types.Action, 0, 3)
	for i := 0; i < 3; i++ {
		batch = append(batch, proposedAction(fmt.Sprintf("act-%d", i), 0.95))
	}
	source := &fakeSource{batches: [][]types.Action{batch}}
	loop := NewLoop(h.core, source, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		return source.pollCount() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	// Nothing was admitted, so nothing was recorded
	for i := 0; i < 3; i++ {
		record, err := h.store.GetRecord(fmt.Sprintf("act-%d", i))
		require.NoError(t, err)
		assert.Nil(t, record)
	}
}

// ctxAwareExecutor succeeds after delay but honors cancellation, like a
// real transport would
type ctxAwareExecutor struct {
	name    string
	delay   time.Duration
	started chan struct{}
	once    *sync.Once
}

func (c *ctxAwareExecutor) Name() string { return c.name }

func (c *ctxAwareExecutor) Execute(ctx context.Context, action types.Action) error {
	c.once.Do(func() { close(c.started) })
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.delay):
		return nil
	}
}

type blockingExecutor struct {
	name    string
	release chan struct{}
	started chan struct{}
	once    *sync.Once
}

func (b *blockingExecutor) Name() string { return b.name }

func (b *blockingExecutor) Execute(ctx context.Context, action types.Action) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}
