package history

import (
	"time"

	"github.com/ovnwatch/ovnwatch/internal/trend"
)

// RuleMetric is one node's rule-state measurement at one instant.
// ConsistencyScore is nil when correlation was not computed, which is
// different from a real score of zero.
type RuleMetric struct {
	Timestamp        time.Time `json:"timestamp"`
	Node             string    `json:"node"`
	SNATRules        int       `json:"snat_rules_count"`
	LRPRules         int       `json:"lrp_rules_count"`
	ParseErrors      int       `json:"parsing_errors"`
	ConsistencyScore *float64  `json:"consistency_score,omitempty"`
}

// AssignmentMetric is one EgressIP object's observed assignment state.
type AssignmentMetric struct {
	Timestamp     time.Time `json:"timestamp"`
	Name          string    `json:"egressip_name"`
	Namespace     string    `json:"namespace"`
	Status        string    `json:"status"`
	AssignedNodes []string  `json:"assigned_nodes"`
	AssignedIPs   []string  `json:"assigned_ips"`
	PodCount      int       `json:"pod_count"`
}

// PerformanceResult is the outcome of one egress test run.
type PerformanceResult struct {
	Timestamp          time.Time     `json:"timestamp"`
	TestName           string        `json:"test_name"`
	Duration           time.Duration `json:"execution_time"`
	Passed             bool          `json:"test_passed"`
	ScenariosCompleted int           `json:"scenarios_completed"`
	TotalScenarios     int           `json:"total_scenarios"`
}

// Summary aggregates stored metrics over a lookback window.
type Summary struct {
	Since       time.Time          `json:"since"`
	Assignments AssignmentSummary  `json:"egressip_metrics"`
	Rules       RuleSummary        `json:"ovn_rule_metrics"`
	Performance PerformanceSummary `json:"performance_tests"`
}

type AssignmentSummary struct {
	Records       int     `json:"total_records"`
	UniqueObjects int     `json:"unique_egressips"`
	AvgPodCount   float64 `json:"avg_pod_count"`
}

type RuleSummary struct {
	Records        int      `json:"total_records"`
	UniqueNodes    int      `json:"unique_nodes"`
	AvgSNATRules   float64  `json:"avg_snat_rules"`
	AvgLRPRules    float64  `json:"avg_lrp_rules"`
	AvgConsistency *float64 `json:"avg_consistency_score,omitempty"`
}

type PerformanceSummary struct {
	Total       int     `json:"total_tests"`
	Passed      int     `json:"passed_tests"`
	AvgDuration float64 `json:"avg_execution_time"` // seconds
}

// Store is the historical metrics sink and the source the trend
// aggregator reads daily aggregates from.
type Store interface {
	RecordRuleMetric(m RuleMetric) error
	RecordAssignmentMetric(m AssignmentMetric) error
	RecordPerformanceResult(r PerformanceResult) error
	DailyAggregates(family trend.MetricFamily, since time.Time) ([]trend.Aggregate, error)
	Summary(since time.Time) (Summary, error)
	Close() error
}
