package types

import "time"

// RuleKind identifies which OVN rule family a record was extracted from.
type RuleKind string

const (
	KindSNAT RuleKind = "snat"
	KindLRP  RuleKind = "lrp"
)

// SNATRule holds the typed fields of a parsed lr-nat-list entry.
type SNATRule struct {
	ExternalIP  string `json:"external_ip"`
	LogicalIP   string `json:"logical_ip"`
	LogicalPort string `json:"logical_port"`
}

// LRPRule holds the typed fields of a parsed lr-policy-list entry.
// When the priority token is not an integer, Priority is zero,
// RawPriority keeps the token and PriorityErr is non-empty; the record
// still counts as parsed because match and action were understood.
type LRPRule struct {
	Priority    int    `json:"priority"`
	RawPriority string `json:"raw_priority"`
	PriorityErr string `json:"priority_err,omitempty"`
	Match       string `json:"match"`
	Action      string `json:"action"`
}

// RuleRecord is a tagged variant: exactly one of SNAT or LRP is non-nil
// for a parsed record, both are nil for a line that could not be parsed.
// Raw is always preserved.
type RuleRecord struct {
	Kind RuleKind  `json:"kind"`
	Raw  string    `json:"raw_rule"`
	SNAT *SNATRule `json:"snat,omitempty"`
	LRP  *LRPRule  `json:"lrp,omitempty"`
}

// Parsed reports whether the line yielded typed fields.
func (r RuleRecord) Parsed() bool {
	return r.SNAT != nil || r.LRP != nil
}

// RuleSet is one node's rules at one observation instant, partitioned by
// kind and preserving extraction order. It is never mutated after the
// extractor returns it.
type RuleSet struct {
	Node    string       `json:"node"`
	TakenAt time.Time    `json:"taken_at"`
	SNAT    []RuleRecord `json:"snat_rules"`
	LRP     []RuleRecord `json:"lrp_rules"`
}

// ParsedCount returns how many records of the given kind carry typed fields.
func (s RuleSet) ParsedCount(kind RuleKind) int {
	n := 0
	for _, r := range s.byKind(kind) {
		if r.Parsed() {
			n++
		}
	}
	return n
}

func (s RuleSet) byKind(kind RuleKind) []RuleRecord {
	if kind == KindSNAT {
		return s.SNAT
	}
	return s.LRP
}

// DesiredAssignment is one EgressIP object's desired and observed state.
type DesiredAssignment struct {
	Name          string   `json:"name"`
	Namespace     string   `json:"namespace"`
	SpecIPs       []string `json:"spec_ips"`
	AssignedIPs   []string `json:"assigned_ips"`
	AssignedNodes []string `json:"assigned_nodes"`
	Status        string   `json:"status"` // ready | partial | pending
	PodCount      int      `json:"pod_count"`
}

// AssignmentContext aggregates every EgressIP object known to the
// assignment source at one point in time.
type AssignmentContext struct {
	AllAssignedIPs []string            `json:"all_assigned_ips"`
	Objects        []DesiredAssignment `json:"objects"`
}

// CorrelationRating classifies how much of the SNAT surface has a
// matching LRP reference.
type CorrelationRating string

const (
	CorrelationGood     CorrelationRating = "good"
	CorrelationModerate CorrelationRating = "moderate"
	CorrelationPoor     CorrelationRating = "poor"
	CorrelationNoData   CorrelationRating = "no_data"
)

// Correlation is the SNAT/LRP cross-check result. Score is only
// meaningful when Computed is true; an empty rule set on either side
// yields Computed=false and CorrelationNoData, never a zero score.
type Correlation struct {
	Computed        bool              `json:"computed"`
	Score           float64           `json:"score"`
	Rating          CorrelationRating `json:"rating"`
	SNATExternalIPs []string          `json:"snat_external_ips"`
	LRPIPReferences []string          `json:"lrp_ip_references"`
	CorrelatedIPs   []string          `json:"correlated_ips"`
	Issues          []string          `json:"issues,omitempty"`
}

// ValidationResult compares SNAT external IPs against desired EgressIP
// assignments. Possible=false (assignment source unreachable) is
// distinct from a validation that ran and passed.
type ValidationResult struct {
	Possible          bool     `json:"possible"`
	Reason            string   `json:"reason,omitempty"`
	MissingSNAT       []string `json:"missing_snat"`
	UnexpectedSNAT    []string `json:"unexpected_snat"`
	AssignedCount     int      `json:"assigned_count"`
	SNATExternalCount int      `json:"snat_external_count"`
	Passed            bool     `json:"passed"`
}

// ConsistencyReport is the renderer-facing projection of one node
// analysis: counts, cross-checks, and advisories, without the raw
// summaries.
type ConsistencyReport struct {
	Node            string           `json:"node"`
	TakenAt         time.Time        `json:"taken_at"`
	SNATCount       int              `json:"snat_count"`
	LRPCount        int              `json:"lrp_count"`
	Correlation     Correlation      `json:"consistency_check"`
	Validation      ValidationResult `json:"egressip_validation"`
	Recommendations []string         `json:"recommendations"`
}

// Snapshot is a cheap fingerprint of one node's rule state, taken
// repeatedly during drift monitoring. Fingerprints are stable hashes
// over the sorted raw text of all records of a kind, so retrieval order
// never changes them.
type Snapshot struct {
	TakenAt         time.Time `json:"taken_at"`
	SNATCount       int       `json:"snat_count"`
	LRPCount        int       `json:"lrp_count"`
	SNATFingerprint uint64    `json:"snat_fingerprint"`
	LRPFingerprint  uint64    `json:"lrp_fingerprint"`
}

// IntChange and HashChange carry before/after values for one compared
// snapshot field.
type IntChange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type HashChange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// ChangeEvent is emitted for a pair of adjacent snapshots that differ in
// any compared field. Simultaneous differences populate multiple
// sub-fields of one event.
type ChangeEvent struct {
	At              time.Time   `json:"at"`
	SNATCount       *IntChange  `json:"snat_count,omitempty"`
	LRPCount        *IntChange  `json:"lrp_count,omitempty"`
	SNATFingerprint *HashChange `json:"snat_fingerprint,omitempty"`
	LRPFingerprint  *HashChange `json:"lrp_fingerprint,omitempty"`
}

// StabilityLevel classifies a monitoring window.
type StabilityLevel string

const (
	Stable       StabilityLevel = "stable"
	MostlyStable StabilityLevel = "mostly_stable"
	Unstable     StabilityLevel = "unstable"
)

// Confidence qualifies a stability assessment.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// StabilityAssessment summarizes the change events of one monitoring
// session.
type StabilityAssessment struct {
	Level      StabilityLevel `json:"level"`
	EventCount int            `json:"event_count"`
	Confidence Confidence     `json:"confidence"`
	Summary    string         `json:"summary"`
}

// TrendDirection classifies a metric series.
type TrendDirection string

const (
	TrendIncreasing   TrendDirection = "increasing"
	TrendDecreasing   TrendDirection = "decreasing"
	TrendStable       TrendDirection = "stable"
	TrendInsufficient TrendDirection = "insufficient_data"
)

// TrendPoint is one time-bucketed value of a metric.
type TrendPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// TrendResult classifies the direction of one metric series. The
// classification is a two-window average comparison, an approximation
// robust to noise, not a regression fit.
type TrendResult struct {
	Direction     TrendDirection `json:"direction"`
	PercentChange float64        `json:"percent_change"`
	Series        []TrendPoint   `json:"series"`
}
