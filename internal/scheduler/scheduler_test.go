package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/chronolens/chronolens/internal/analysis"
	"github.com/chronolens/chronolens/internal/history"
)

type fakeRunner struct {
	running bool
	calls   int
	trigger string
	err     error
}

func (f *fakeRunner) Running() bool { return f.running }

func (f *fakeRunner) Analyze(ctx context.Context, items []history.Item, opts analysis.Options) (*analysis.Result, error) {
	f.calls++
	f.trigger = opts.Trigger
	if f.err != nil {
		return nil, f.err
	}
	return &analysis.Result{TotalURLs: len(items)}, nil
}

func noItems(ctx context.Context) ([]history.Item, error) {
	return nil, nil
}

func TestNewRejectsBadSpec(t *testing.T) {
	if _, err := New("not a cron spec", &fakeRunner{}, noItems, nil); err == nil {
		t.Error("invalid cron spec must be rejected at construction")
	}
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New("@hourly", &fakeRunner{}, nil, nil); err == nil {
		t.Error("nil source must be rejected")
	}
}

func TestRunOnceUsesScheduledTrigger(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New("@hourly", runner, noItems, nil)
	if err != nil {
		t.Fatal(err)
	}

	s.runOnce()

	if runner.calls != 1 {
		t.Fatalf("analyze calls = %d", runner.calls)
	}
	if runner.trigger != analysis.TriggerScheduled {
		t.Errorf("trigger = %q", runner.trigger)
	}
}

func TestRunOnceSkipsWhileActive(t *testing.T) {
	runner := &fakeRunner{running: true}
	s, err := New("@hourly", runner, noItems, nil)
	if err != nil {
		t.Fatal(err)
	}

	s.runOnce()

	if runner.calls != 0 {
		t.Errorf("active run must be skipped, got %d calls", runner.calls)
	}
}

func TestRunOnceSourceFailure(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New("@hourly", runner, func(ctx context.Context) ([]history.Item, error) {
		return nil, errors.New("no export found")
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	s.runOnce()

	if runner.calls != 0 {
		t.Errorf("source failure must not reach the runner, got %d calls", runner.calls)
	}
}
