package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ovnwatch/ovnwatch/internal/ovn"
	"github.com/ovnwatch/ovnwatch/internal/types"
)

// countingExecutor serves rule output derived from generate(call) and
// fails once failAfter calls have been made (0 means never fail).
type countingExecutor struct {
	calls     int64
	failAfter int64
	generate  func(call int64) string
}

func (f *countingExecutor) Exec(ctx context.Context, node string, argv []string) (ovn.ExecResult, error) {
	call := atomic.AddInt64(&f.calls, 1)
	if f.failAfter > 0 && call > f.failAfter {
		return ovn.ExecResult{}, errors.New("node unreachable")
	}
	return ovn.ExecResult{Stdout: f.generate(call)}, nil
}

func constantRules(int64) string {
	return "snat 192.168.1.100 10.244.1.5 port-a"
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleFloor = time.Millisecond
	return cfg
}

func newTestMonitor(exec ovn.Executor) *Monitor {
	return New(ovn.NewExtractor(exec, "", nil), testConfig(), nil)
}

func TestInterval(t *testing.T) {
	m := New(nil, DefaultConfig(), nil)

	// Short windows hit the floor.
	if got := m.Interval(60 * time.Second); got != 30*time.Second {
		t.Errorf("expected the 30s floor, got %v", got)
	}
	// Long windows scale with the divisor.
	if got := m.Interval(10 * time.Minute); got != time.Minute {
		t.Errorf("expected duration/10, got %v", got)
	}
}

func snap(at time.Time, snatCount, lrpCount int, snatFp, lrpFp uint64) types.Snapshot {
	return types.Snapshot{
		TakenAt:         at,
		SNATCount:       snatCount,
		LRPCount:        lrpCount,
		SNATFingerprint: snatFp,
		LRPFingerprint:  lrpFp,
	}
}

func TestDetectChanges(t *testing.T) {
	t0 := time.Now()
	snapshots := []types.Snapshot{
		snap(t0, 2, 3, 10, 20),
		snap(t0.Add(time.Second), 2, 3, 10, 20),
		snap(t0.Add(2*time.Second), 3, 3, 11, 20),
		snap(t0.Add(3*time.Second), 3, 4, 11, 21),
	}

	events := DetectChanges(snapshots)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	// All differing fields of one pair land in a single event.
	first := events[0]
	if first.SNATCount == nil || first.SNATCount.From != 2 || first.SNATCount.To != 3 {
		t.Errorf("unexpected snat count change: %+v", first.SNATCount)
	}
	if first.SNATFingerprint == nil {
		t.Error("the fingerprint change belongs to the same event")
	}
	if first.LRPCount != nil {
		t.Error("unchanged fields must stay nil")
	}
	if !first.At.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("event must carry the later snapshot's time, got %v", first.At)
	}

	second := events[1]
	if second.LRPCount == nil || second.LRPCount.To != 4 {
		t.Errorf("unexpected lrp count change: %+v", second.LRPCount)
	}
}

func TestDetectChanges_Empty(t *testing.T) {
	if events := DetectChanges(nil); len(events) != 0 {
		t.Errorf("no snapshots, no events: %v", events)
	}
	if events := DetectChanges([]types.Snapshot{snap(time.Now(), 1, 1, 1, 1)}); len(events) != 0 {
		t.Errorf("a single snapshot has no adjacent pair: %v", events)
	}
}

func TestAssessStability(t *testing.T) {
	m := New(nil, DefaultConfig(), nil)

	cases := []struct {
		events     int
		level      types.StabilityLevel
		confidence types.Confidence
	}{
		{0, types.Stable, types.ConfidenceHigh},
		{1, types.MostlyStable, types.ConfidenceMedium},
		{2, types.MostlyStable, types.ConfidenceMedium},
		{3, types.Unstable, types.ConfidenceHigh},
		{7, types.Unstable, types.ConfidenceHigh},
	}

	for _, tc := range cases {
		events := make([]types.ChangeEvent, tc.events)
		got := m.AssessStability(events)
		if got.Level != tc.level {
			t.Errorf("%d events: expected %s, got %s", tc.events, tc.level, got.Level)
		}
		if got.Confidence != tc.confidence {
			t.Errorf("%d events: expected confidence %s, got %s", tc.events, tc.confidence, got.Confidence)
		}
		if got.EventCount != tc.events && tc.events > 0 {
			t.Errorf("%d events: count not carried through: %+v", tc.events, got)
		}
	}
}

func TestRun_StableWindow(t *testing.T) {
	exec := &countingExecutor{generate: constantRules}
	m := newTestMonitor(exec)

	res := m.Run(context.Background(), "node-1", 20*time.Millisecond)

	if res.State != Completed {
		t.Fatalf("expected completed, got %s (%s)", res.State, res.AbortReason)
	}
	if len(res.Snapshots) < 2 {
		t.Fatalf("expected baseline plus ticks, got %d snapshots", len(res.Snapshots))
	}
	if len(res.ChangeEvents) != 0 {
		t.Errorf("identical samples must produce no events: %v", res.ChangeEvents)
	}
	if res.Stability.Level != types.Stable {
		t.Errorf("expected stable, got %s", res.Stability.Level)
	}
}

func TestRun_DriftingWindow(t *testing.T) {
	// Every extraction returns a different rule set, so every adjacent
	// snapshot pair differs.
	exec := &countingExecutor{generate: func(call int64) string {
		return fmt.Sprintf("snat 192.168.1.%d 10.244.1.5 port-a", call%250)
	}}
	m := newTestMonitor(exec)

	res := m.Run(context.Background(), "node-1", 20*time.Millisecond)

	if res.State != Completed {
		t.Fatalf("expected completed, got %s (%s)", res.State, res.AbortReason)
	}
	if len(res.ChangeEvents) != len(res.Snapshots)-1 {
		t.Errorf("every pair should differ: %d snapshots, %d events",
			len(res.Snapshots), len(res.ChangeEvents))
	}
	if len(res.ChangeEvents) >= 3 && res.Stability.Level != types.Unstable {
		t.Errorf("expected unstable, got %s", res.Stability.Level)
	}
}

func TestRun_AbortKeepsPartialData(t *testing.T) {
	// One full extraction is two commands; fail on the third.
	exec := &countingExecutor{generate: constantRules, failAfter: 2}
	m := newTestMonitor(exec)

	res := m.Run(context.Background(), "node-1", 50*time.Millisecond)

	if res.State != Aborted {
		t.Fatalf("expected aborted, got %s", res.State)
	}
	if res.AbortReason == "" {
		t.Error("abort must carry a reason")
	}
	if len(res.Snapshots) != 1 {
		t.Errorf("the baseline snapshot must survive the abort, got %d", len(res.Snapshots))
	}
	if res.Stability.Level != types.Stable {
		t.Errorf("one snapshot yields zero events: %+v", res.Stability)
	}
}

func TestRun_ImmediateTransportFailure(t *testing.T) {
	exec := &countingExecutor{generate: constantRules, failAfter: 1}
	exec.calls = 1 // the very next call fails
	m := newTestMonitor(exec)

	res := m.Run(context.Background(), "node-1", 50*time.Millisecond)
	if res.State != Aborted {
		t.Fatalf("expected aborted, got %s", res.State)
	}
	if len(res.Snapshots) != 0 {
		t.Errorf("no sample succeeded, got %d snapshots", len(res.Snapshots))
	}
}

func TestRun_Cancellation(t *testing.T) {
	exec := &countingExecutor{generate: constantRules}
	cfg := testConfig()
	cfg.SampleFloor = time.Second
	m := New(ovn.NewExtractor(exec, "", nil), cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res := m.Run(ctx, "node-1", time.Hour)

	if time.Since(start) > 5*time.Second {
		t.Fatal("cancellation must end the session promptly")
	}
	if res.State != Completed {
		t.Fatalf("cancellation completes the session, got %s", res.State)
	}
	if !res.Cancelled {
		t.Error("the result must be marked cancelled")
	}
	if len(res.Snapshots) != 1 {
		t.Errorf("the baseline snapshot must be preserved, got %d", len(res.Snapshots))
	}
}
