package history

import (
	"sort"
	"sync"
	"time"

	"github.com/ovnwatch/ovnwatch/internal/trend"
)

// MemoryStore is the in-memory fallback used when no database is
// configured, and the store tests exercise against.
type MemoryStore struct {
	mu          sync.RWMutex
	rules       []RuleMetric
	assignments []AssignmentMetric
	performance []PerformanceResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) RecordRuleMetric(m RuleMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, m)
	return nil
}

func (s *MemoryStore) RecordAssignmentMetric(m AssignmentMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = append(s.assignments, m)
	return nil
}

func (s *MemoryStore) RecordPerformanceResult(r PerformanceResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.performance = append(s.performance, r)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// DailyAggregates buckets stored records by UTC day and computes the
// family's metrics per bucket, oldest first.
func (s *MemoryStore) DailyAggregates(family trend.MetricFamily, since time.Time) ([]trend.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := map[time.Time]*dayBucket{}
	bucket := func(ts time.Time) *dayBucket {
		day := ts.UTC().Truncate(24 * time.Hour)
		b, ok := buckets[day]
		if !ok {
			b = &dayBucket{names: map[string]struct{}{}}
			buckets[day] = b
		}
		return b
	}

	switch family {
	case trend.FamilyAssignments:
		for _, m := range s.assignments {
			if m.Timestamp.Before(since) {
				continue
			}
			b := bucket(m.Timestamp)
			b.names[m.Name] = struct{}{}
			b.podSum += float64(m.PodCount)
			b.count++
		}
	case trend.FamilyOVNRules:
		for _, m := range s.rules {
			if m.Timestamp.Before(since) {
				continue
			}
			b := bucket(m.Timestamp)
			b.snatSum += float64(m.SNATRules)
			b.lrpSum += float64(m.LRPRules)
			if m.ConsistencyScore != nil {
				b.scoreSum += *m.ConsistencyScore
				b.scoreCount++
			}
			b.count++
		}
	case trend.FamilyPerformance:
		for _, r := range s.performance {
			if r.Timestamp.Before(since) {
				continue
			}
			b := bucket(r.Timestamp)
			if r.Passed {
				b.passed++
			}
			b.durationSum += r.Duration.Seconds()
			b.count++
		}
	}

	days := make([]time.Time, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	rows := make([]trend.Aggregate, 0, len(days))
	for _, day := range days {
		rows = append(rows, trend.Aggregate{Date: day, Values: buckets[day].values(family)})
	}
	return rows, nil
}

type dayBucket struct {
	count       int
	names       map[string]struct{}
	podSum      float64
	snatSum     float64
	lrpSum      float64
	scoreSum    float64
	scoreCount  int
	passed      int
	durationSum float64
}

func (b *dayBucket) values(family trend.MetricFamily) map[string]float64 {
	values := map[string]float64{}
	if b.count == 0 {
		return values
	}

	switch family {
	case trend.FamilyAssignments:
		values["unique_egressips"] = float64(len(b.names))
		values["avg_pod_count"] = b.podSum / float64(b.count)
	case trend.FamilyOVNRules:
		values["avg_snat_rules"] = b.snatSum / float64(b.count)
		values["avg_lrp_rules"] = b.lrpSum / float64(b.count)
		if b.scoreCount > 0 {
			values["avg_consistency"] = b.scoreSum / float64(b.scoreCount)
		}
	case trend.FamilyPerformance:
		values["pass_rate"] = float64(b.passed) / float64(b.count)
		values["avg_execution_time"] = b.durationSum / float64(b.count)
	}
	return values
}

func (s *MemoryStore) Summary(since time.Time) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := Summary{Since: since}

	names := map[string]struct{}{}
	podSum := 0.0
	for _, m := range s.assignments {
		if m.Timestamp.Before(since) {
			continue
		}
		summary.Assignments.Records++
		names[m.Name] = struct{}{}
		podSum += float64(m.PodCount)
	}
	summary.Assignments.UniqueObjects = len(names)
	if summary.Assignments.Records > 0 {
		summary.Assignments.AvgPodCount = podSum / float64(summary.Assignments.Records)
	}

	nodes := map[string]struct{}{}
	snatSum, lrpSum, scoreSum := 0.0, 0.0, 0.0
	scoreCount := 0
	for _, m := range s.rules {
		if m.Timestamp.Before(since) {
			continue
		}
		summary.Rules.Records++
		nodes[m.Node] = struct{}{}
		snatSum += float64(m.SNATRules)
		lrpSum += float64(m.LRPRules)
		if m.ConsistencyScore != nil {
			scoreSum += *m.ConsistencyScore
			scoreCount++
		}
	}
	summary.Rules.UniqueNodes = len(nodes)
	if summary.Rules.Records > 0 {
		summary.Rules.AvgSNATRules = snatSum / float64(summary.Rules.Records)
		summary.Rules.AvgLRPRules = lrpSum / float64(summary.Rules.Records)
	}
	if scoreCount > 0 {
		avg := scoreSum / float64(scoreCount)
		summary.Rules.AvgConsistency = &avg
	}

	durationSum := 0.0
	for _, r := range s.performance {
		if r.Timestamp.Before(since) {
			continue
		}
		summary.Performance.Total++
		if r.Passed {
			summary.Performance.Passed++
		}
		durationSum += r.Duration.Seconds()
	}
	if summary.Performance.Total > 0 {
		summary.Performance.AvgDuration = durationSum / float64(summary.Performance.Total)
	}

	return summary, nil
}
