package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ovnwatch/ovnwatch/internal/ovn"
	"github.com/ovnwatch/ovnwatch/internal/types"
)

// State is the lifecycle of one monitoring session.
type State string

const (
	Idle      State = "idle"
	Sampling  State = "sampling"
	Completed State = "completed"
	Aborted   State = "aborted"
)

// Config holds the sampling and stability heuristics. The 30s floor and
// the duration/10 cadence are operational defaults with no deeper
// derivation, so both are tunable.
type Config struct {
	SampleFloor     time.Duration // minimum interval between samples
	SampleDivisor   int           // cadence is max(floor, duration/divisor)
	MostlyStableMax int           // event count up to which the window is mostly_stable
}

// DefaultConfig returns the shipped heuristics.
func DefaultConfig() Config {
	return Config{
		SampleFloor:     30 * time.Second,
		SampleDivisor:   10,
		MostlyStableMax: 2,
	}
}

// Result is everything one session produced. Partial data survives both
// cancellation and aborts.
type Result struct {
	Node         string                    `json:"node"`
	State        State                     `json:"state"`
	AbortReason  string                    `json:"abort_reason,omitempty"`
	Cancelled    bool                      `json:"cancelled,omitempty"`
	Duration     time.Duration             `json:"duration"`
	Interval     time.Duration             `json:"interval"`
	Snapshots    []types.Snapshot          `json:"snapshots"`
	ChangeEvents []types.ChangeEvent       `json:"change_events"`
	Stability    types.StabilityAssessment `json:"stability_assessment"`
}

// Monitor runs drift-detection sessions. The Monitor itself holds no
// per-session state, so sessions against different nodes may run
// concurrently from one Monitor.
type Monitor struct {
	extractor *ovn.Extractor
	cfg       Config
	log       *logrus.Logger
}

// New builds a monitor. A nil logger selects the logrus standard logger.
func New(extractor *ovn.Extractor, cfg Config, log *logrus.Logger) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Monitor{extractor: extractor, cfg: cfg, log: log}
}

// Interval computes the sampling cadence for a requested duration.
func (m *Monitor) Interval(duration time.Duration) time.Duration {
	interval := duration / time.Duration(m.cfg.SampleDivisor)
	if interval < m.cfg.SampleFloor {
		interval = m.cfg.SampleFloor
	}
	return interval
}

// Run samples one node's rule state for the given wall-clock budget and
// classifies its stability. It always returns a structured result:
// transport failure aborts the session but keeps the snapshots taken so
// far, and caller cancellation completes it early without data loss.
func (m *Monitor) Run(ctx context.Context, node string, duration time.Duration) *Result {
	interval := m.Interval(duration)
	res := &Result{
		Node:     node,
		State:    Sampling,
		Duration: duration,
		Interval: interval,
	}
	log := m.log.WithFields(logrus.Fields{"node": node, "duration": duration, "interval": interval})
	log.Info("starting rule drift monitoring")

	// Baseline before any wait.
	if !m.sample(ctx, node, res) {
		m.finish(res)
		return res
	}

	deadline := time.After(duration)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for res.State == Sampling {
		select {
		case <-ctx.Done():
			res.Cancelled = true
			res.State = Completed
		case <-deadline:
			res.State = Completed
		case <-ticker.C:
			m.sample(ctx, node, res)
		}
	}

	m.finish(res)
	log.WithFields(logrus.Fields{
		"state":     res.State,
		"snapshots": len(res.Snapshots),
		"events":    len(res.ChangeEvents),
	}).Info("monitoring session finished")
	return res
}

// sample appends one snapshot; a transport failure flips the session to
// Aborted and reports false.
func (m *Monitor) sample(ctx context.Context, node string, res *Result) bool {
	snap, err := m.extractor.Snapshot(ctx, node)
	if err != nil {
		res.State = Aborted
		res.AbortReason = fmt.Sprintf("rule extraction failed: %v", err)
		return false
	}
	res.Snapshots = append(res.Snapshots, snap)
	return true
}

func (m *Monitor) finish(res *Result) {
	res.ChangeEvents = DetectChanges(res.Snapshots)
	res.Stability = m.AssessStability(res.ChangeEvents)
}

// DetectChanges diffs every adjacent snapshot pair. All differing fields
// of one pair land in a single event stamped with the later snapshot's
// time.
func DetectChanges(snapshots []types.Snapshot) []types.ChangeEvent {
	var events []types.ChangeEvent

	for i := 1; i < len(snapshots); i++ {
		prev, curr := snapshots[i-1], snapshots[i]
		event := types.ChangeEvent{At: curr.TakenAt}
		changed := false

		if prev.SNATCount != curr.SNATCount {
			event.SNATCount = &types.IntChange{From: prev.SNATCount, To: curr.SNATCount}
			changed = true
		}
		if prev.LRPCount != curr.LRPCount {
			event.LRPCount = &types.IntChange{From: prev.LRPCount, To: curr.LRPCount}
			changed = true
		}
		if prev.SNATFingerprint != curr.SNATFingerprint {
			event.SNATFingerprint = &types.HashChange{From: prev.SNATFingerprint, To: curr.SNATFingerprint}
			changed = true
		}
		if prev.LRPFingerprint != curr.LRPFingerprint {
			event.LRPFingerprint = &types.HashChange{From: prev.LRPFingerprint, To: curr.LRPFingerprint}
			changed = true
		}

		if changed {
			events = append(events, event)
		}
	}
	return events
}

// AssessStability classifies a monitoring window from its change events.
func (m *Monitor) AssessStability(events []types.ChangeEvent) types.StabilityAssessment {
	n := len(events)
	switch {
	case n == 0:
		return types.StabilityAssessment{
			Level:      types.Stable,
			Confidence: types.ConfidenceHigh,
			Summary:    "no rule changes detected during monitoring period",
		}
	case n <= m.cfg.MostlyStableMax:
		return types.StabilityAssessment{
			Level:      types.MostlyStable,
			EventCount: n,
			Confidence: types.ConfidenceMedium,
			Summary:    fmt.Sprintf("minor changes detected (%d events)", n),
		}
	default:
		return types.StabilityAssessment{
			Level:      types.Unstable,
			EventCount: n,
			Confidence: types.ConfidenceHigh,
			Summary:    fmt.Sprintf("frequent rule changes detected (%d events)", n),
		}
	}
}
