package pipeline

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SamoM225/the-bible-translations/internal/service/ai"
	"github.com/SamoM225/the-bible-translations/pkg/errors"
)

// scriptedEngine returns its responses in order, repeating the last one.
type scriptedEngine struct {
	outputs []ai.Output
	errs    []error
	calls   int
}

func (s *scriptedEngine) Translate(_ context.Context, _, _ string) (ai.Output, error) {
	i := s.calls
	if i >= len(s.errs) {
		i = len(s.errs) - 1
	}
	s.calls++
	return s.outputs[i], s.errs[i]
}

type sleepRecorder struct {
	slept []time.Duration
	err   error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.slept = append(s.slept, d)
	return nil
}

func testPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, RateLimitDelay: 25 * time.Second}
}

func TestRequestRateLimitsDoNotConsumeAttempts(t *testing.T) {
	want := ai.Output{Translations: map[string]string{"k": "v"}}
	engine := &scriptedEngine{
		outputs: []ai.Output{{}, {}, {}, {}, want},
		errs: []error{
			errors.NewRateLimitError("throttled", nil),
			errors.NewRateLimitError("throttled", nil),
			errors.NewRateLimitError("throttled", nil),
			errors.NewRateLimitError("throttled", nil),
			nil,
		},
	}
	rec := &sleepRecorder{}
	r := NewRequester(engine, testPolicy(), zap.NewNop()).WithSleep(rec.sleep)

	out, err := r.Request(context.Background(), "sys", "inst")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if out.Translations["k"] != "v" {
		t.Errorf("unexpected output: %+v", out)
	}
	if engine.calls != 5 {
		t.Errorf("engine called %d times, want 5", engine.calls)
	}
	for i, d := range rec.slept {
		if d != 25*time.Second {
			t.Errorf("sleep %d was %v, want rate-limit cooldown 25s", i, d)
		}
	}
	if len(rec.slept) != 4 {
		t.Errorf("slept %d times, want 4", len(rec.slept))
	}
}

func TestRequestTransientFailureExhaustsCeiling(t *testing.T) {
	engine := &scriptedEngine{
		outputs: []ai.Output{{}},
		errs:    []error{errors.NewEngineError("boom", "Gemini", nil)},
	}
	rec := &sleepRecorder{}
	r := NewRequester(engine, testPolicy(), zap.NewNop()).WithSleep(rec.sleep)

	_, err := r.Request(context.Background(), "sys", "inst")
	if err == nil {
		t.Fatal("expected an error after retry exhaustion")
	}
	if engine.calls != 5 {
		t.Errorf("engine called %d times, want MaxAttempts=5", engine.calls)
	}
	// Backoff between attempts only, so one fewer sleep than attempts.
	if len(rec.slept) != 4 {
		t.Errorf("slept %d times, want 4", len(rec.slept))
	}
	for i, d := range rec.slept {
		if d != 2*time.Second {
			t.Errorf("sleep %d was %v, want base delay 2s", i, d)
		}
	}
}

func TestRequestMixedRateLimitAndTransient(t *testing.T) {
	want := ai.Output{Translations: map[string]string{"k": "v"}}
	engine := &scriptedEngine{
		outputs: []ai.Output{{}, {}, {}, want},
		errs: []error{
			errors.NewRateLimitError("throttled", nil),
			errors.NewEngineError("boom", "Gemini", nil),
			errors.NewRateLimitError("throttled", nil),
			nil,
		},
	}
	rec := &sleepRecorder{}
	r := NewRequester(engine, testPolicy(), zap.NewNop()).WithSleep(rec.sleep)

	out, err := r.Request(context.Background(), "sys", "inst")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if out.Translations["k"] != "v" {
		t.Errorf("unexpected output: %+v", out)
	}

	wantSleeps := []time.Duration{25 * time.Second, 2 * time.Second, 25 * time.Second}
	if len(rec.slept) != len(wantSleeps) {
		t.Fatalf("slept %v, want %v", rec.slept, wantSleeps)
	}
	for i := range wantSleeps {
		if rec.slept[i] != wantSleeps[i] {
			t.Errorf("sleep %d was %v, want %v", i, rec.slept[i], wantSleeps[i])
		}
	}
}

func TestRequestCancellationDuringCooldown(t *testing.T) {
	engine := &scriptedEngine{
		outputs: []ai.Output{{}},
		errs:    []error{errors.NewRateLimitError("throttled", nil)},
	}
	rec := &sleepRecorder{err: context.Canceled}
	r := NewRequester(engine, testPolicy(), zap.NewNop()).WithSleep(rec.sleep)

	_, err := r.Request(context.Background(), "sys", "inst")
	if err != context.Canceled {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if engine.calls != 1 {
		t.Errorf("engine called %d times after cancellation, want 1", engine.calls)
	}
}

func TestRequestCancelledContextShortCircuits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &scriptedEngine{outputs: []ai.Output{{}}, errs: []error{nil}}
	r := NewRequester(engine, testPolicy(), zap.NewNop()).WithSleep((&sleepRecorder{}).sleep)

	if _, err := r.Request(ctx, "sys", "inst"); err != context.Canceled {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if engine.calls != 0 {
		t.Errorf("engine called %d times on a dead context, want 0", engine.calls)
	}
}
