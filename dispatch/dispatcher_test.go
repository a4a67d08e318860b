package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/types"
)

type fakeExecutor struct {
	name  string
	calls int
	fn    func(ctx context.Context, action types.Action) error
}

func (f *fakeExecutor) Name() string { return f.name }

func (f *fakeExecutor) Execute(ctx context.Context, action types.Action) error {
	f.calls++
	return f.fn(ctx, action)
}

func succeedingExecutor(name string) *fakeExecutor {
	return &fakeExecutor{name: name, fn: func(ctx context.Context, action types.Action) error {
		return nil
	}}
}

func failingExecutor(name string) *fakeExecutor {
	return &fakeExecutor{name: name, fn: func(ctx context.Context, action types.Action) error {
		return errors.New("backend unavailable")
	}}
}

func hangingExecutor(name string) *fakeExecutor {
	return &fakeExecutor{name: name, fn: func(ctx context.Context, action types.Action) error {
		<-ctx.Done()
		return ctx.Err()
	}}
}

type fakeHalt struct{ active bool }

func (f *fakeHalt) Active() bool { return f.active }

func testPaths(names ...string) []config.PathConfig {
	paths := make([]config.PathConfig, 0, len(names))
	for i, name := range names {
		paths = append(paths, config.PathConfig{
			Name:     name,
			Enabled:  true,
			Priority: i + 1,
			Timeout:  50 * time.Millisecond,
		})
	}
	return paths
}

func testAction(id string) types.Action {
	return types.Action{
		ID:         id,
		Type:       types.ActionRestart,
		Targets:    []string{"svc-web"},
		RiskTier:   types.TierLow,
		Confidence: 0.95,
		Reason:     "test",
		ProposedAt: time.Now(),
	}
}

func TestDispatcher_FirstPathSucceeds(t *testing.T) {
	primary := succeedingExecutor("primary")
	secondary := succeedingExecutor("secondary")

	d := New(testPaths("primary", "secondary"), &fakeHalt{})
	d.Register(primary)
	d.Register(secondary)

	result, err := d.Dispatch(context.Background(), testAction("act-1"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if result.Path != "primary" {
		t.Errorf("Path = %q, want primary", result.Path)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("Attempts = %d, want 1", len(result.Attempts))
	}
	if secondary.calls != 0 {
		t.Error("Secondary path should not be tried after primary succeeds")
	}
}

func TestDispatcher_FallsThroughTimeouts(t *testing.T) {
	// Two slow paths time out, the third succeeds
	d := New(testPaths("api", "queue", "webhook"), &fakeHalt{})
	d.Register(hangingExecutor("api"))
	d.Register(hangingExecutor("queue"))
	d.Register(succeedingExecutor("webhook"))

	result, err := d.Dispatch(context.Background(), testAction("act-1"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("Outcome = %v, want success", result.Outcome)
	}
	if result.Path != "webhook" {
		t.Errorf("Path = %q, want webhook", result.Path)
	}
	if len(result.Attempts) != 3 {
		t.Fatalf("Attempts = %d, want 3", len(result.Attempts))
	}
	for _, attempt := range result.Attempts[:2] {
		if attempt.Outcome != types.OutcomeTimeout {
			t.Errorf("Attempt on %s = %v, want timeout", attempt.Path, attempt.Outcome)
		}
		if attempt.Error == "" {
			t.Errorf("Timed-out attempt on %s should carry an error", attempt.Path)
		}
	}
}

func TestDispatcher_AllPathsFail(t *testing.T) {
	d := New(testPaths("api", "queue"), &fakeHalt{})
	d.Register(failingExecutor("api"))
	d.Register(failingExecutor("queue"))

	result, err := d.Dispatch(context.Background(), testAction("act-1"))
	if err == nil {
		t.Fatal("Expected error when every path fails")
	}
	var exhausted *types.DispatchExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected DispatchExhausted, got %T: %v", err, err)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", exhausted.Attempts)
	}
	if result.Outcome != types.OutcomeExhausted {
		t.Errorf("Outcome = %v, want exhausted", result.Outcome)
	}
}

func TestDispatcher_DisabledPathSkipped(t *testing.T) {
	paths := testPaths("api", "manual")
	paths[0].Enabled = false

	api := failingExecutor("api")
	d := New(paths, &fakeHalt{})
	d.Register(api)
	d.Register(succeedingExecutor("manual"))

	result, err := d.Dispatch(context.Background(), testAction("act-1"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if api.calls != 0 {
		t.Error("Disabled path should never be tried")
	}
	if result.Path != "manual" {
		t.Errorf("Path = %q, want manual", result.Path)
	}
}

func TestDispatcher_HaltStopsBetweenAttempts(t *testing.T) {
	halt := &fakeHalt{}
	second := succeedingExecutor("queue")

	d := New(testPaths("api", "queue"), halt)
	d.Register(&fakeExecutor{name: "api", fn: func(ctx context.Context, action types.Action) error {
		halt.active = true // Halt trips while the first attempt runs
		return errors.New("backend unavailable")
	}})
	d.Register(second)

	result, err := d.Dispatch(context.Background(), testAction("act-1"))
	if err == nil {
		t.Fatal("Expected error when dispatch halts")
	}
	if result.Outcome != types.OutcomeHalted {
		t.Errorf("Outcome = %v, want halted", result.Outcome)
	}
	if second.calls != 0 {
		t.Error("No path may start after a halt trips")
	}
	if len(result.Attempts) != 1 {
		t.Errorf("Attempts = %d, want 1", len(result.Attempts))
	}
}

func TestDispatcher_Reload(t *testing.T) {
	d := New(testPaths("api"), &fakeHalt{})
	d.Register(failingExecutor("api"))
	d.Register(succeedingExecutor("queue"))

	d.Reload(testPaths("queue"))

	result, err := d.Dispatch(context.Background(), testAction("act-1"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if result.Path != "queue" {
		t.Errorf("Path = %q, want queue after reload", result.Path)
	}
}

func TestDispatcher_ReverseRequiresReverser(t *testing.T) {
	d := New(testPaths("api"), &fakeHalt{})
	d.Register(failingExecutor("api"))

	err := d.Reverse(context.Background(), "api", testAction("act-1"))
	if err == nil {
		t.Fatal("Expected error reversing through a non-reversing path")
	}
	var adapterErr *types.AdapterFailure
	if !errors.As(err, &adapterErr) {
		t.Fatalf("Expected AdapterFailure, got %T", err)
	}
}

func TestManualExecutor_NeverFails(t *testing.T) {
	m := NewManualExecutor(t.TempDir())

	for i := 0; i < 5; i++ {
		if err := m.Execute(context.Background(), testAction("act-1")); err != nil {
			t.Fatalf("Manual path must never fail, got: %v", err)
		}
	}
}

func TestManualExecutor_HoldsTicketsWhenDirUnwritable(t *testing.T) {
	// A file where the ticket dir should be makes writes fail
	m := NewManualExecutor("/dev/null/tickets")

	if err := m.Execute(context.Background(), testAction("act-1")); err != nil {
		t.Fatalf("Manual path must never fail, got: %v", err)
	}
	if m.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", m.Pending())
	}
}

func TestManualExecutor_TerminalPathAfterExhaustion(t *testing.T) {
	// Typical production chain: flaky backends ending in manual
	d := New(testPaths("api", "queue", "manual"), &fakeHalt{})
	d.Register(failingExecutor("api"))
	d.Register(failingExecutor("queue"))
	d.Register(NewManualExecutor(t.TempDir()))

	result, err := d.Dispatch(context.Background(), testAction("act-1"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if result.Path != "manual" {
		t.Errorf("Path = %q, want manual", result.Path)
	}
}

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func TestWebhookExecutor_Execute(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Warden-Token") != "secret" {
			t.Errorf("Missing auth header")
		}
		if err := jsonDecode(r, &received); err != nil {
			t.Errorf("Decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	w := NewWebhookExecutor("webhook", server.URL, WithHeader("X-Warden-Token", "secret"))

	if err := w.Execute(context.Background(), testAction("act-1")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if received.Action.ID != "act-1" {
		t.Errorf("Payload action = %q, want act-1", received.Action.ID)
	}
	if received.Operation != "execute" {
		t.Errorf("Operation = %q, want execute", received.Operation)
	}
}

func TestWebhookExecutor_ServerErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	w := NewWebhookExecutor("webhook", server.URL)

	if err := w.Execute(context.Background(), testAction("act-1")); err == nil {
		t.Fatal("Expected error on 500 response")
	}
}
