package analyzer

import (
	"context"
	"net"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ovnwatch/ovnwatch/internal/ovn"
	"github.com/ovnwatch/ovnwatch/internal/types"
)

// AssignmentSource supplies the desired EgressIP state the rules are
// validated against. An error means validation is not possible, which is
// never the same as an empty assignment set.
type AssignmentSource interface {
	ListAssignments(ctx context.Context) (types.AssignmentContext, error)
}

// Config holds the tunable heuristics of the validator. The thresholds
// have no derivation beyond operational experience, so they are
// parameters rather than constants.
type Config struct {
	GoodThreshold     float64       // correlation score above this is "good"
	ModerateThreshold float64       // above this (and <= good) is "moderate"
	NodeTimeout       time.Duration // per-node budget in multi-node comparison
	MaxParallel       int           // fan-out width in multi-node comparison
}

// DefaultConfig mirrors the thresholds the tool has always shipped with.
func DefaultConfig() Config {
	return Config{
		GoodThreshold:     0.8,
		ModerateThreshold: 0.5,
		NodeTimeout:       2 * time.Minute,
		MaxParallel:       4,
	}
}

// SNATSummary aggregates the parsed SNAT records of one node.
type SNATSummary struct {
	Total       int      `json:"total_rules"`
	Parsed      int      `json:"parsed_successfully"`
	ExternalIPs []string `json:"external_ips"`
	LogicalIPs  []string `json:"logical_ips"`
	Issues      []string `json:"issues,omitempty"`
}

// PriorityStats summarizes the priorities seen across parsed LRP records.
type PriorityStats struct {
	Min    int `json:"min"`
	Max    int `json:"max"`
	Unique int `json:"unique_count"`
}

// LRPSummary aggregates the parsed LRP records of one node. ActionVerbs
// counts the first whitespace-delimited token of each action field.
type LRPSummary struct {
	Total         int            `json:"total_rules"`
	Parsed        int            `json:"parsed_successfully"`
	PriorityStats PriorityStats  `json:"priority_stats"`
	ActionVerbs   map[string]int `json:"action_types"`
	Issues        []string       `json:"issues,omitempty"`
}

// NodeAnalysis is the complete diagnosis of one node's rule state.
type NodeAnalysis struct {
	Node            string                 `json:"node"`
	TakenAt         time.Time              `json:"taken_at"`
	SNATCount       int                    `json:"snat_count"`
	LRPCount        int                    `json:"lrp_count"`
	SNAT            SNATSummary            `json:"snat_analysis"`
	LRP             LRPSummary             `json:"lrp_analysis"`
	Correlation     types.Correlation      `json:"consistency_check"`
	Validation      types.ValidationResult `json:"egressip_validation"`
	Database        ovn.DatabaseInfo       `json:"ovn_database_info"`
	Recommendations []string               `json:"recommendations"`
}

// Report converts an analysis into the consistency report shape consumed
// by external renderers.
func (a NodeAnalysis) Report() types.ConsistencyReport {
	return types.ConsistencyReport{
		Node:            a.Node,
		TakenAt:         a.TakenAt,
		SNATCount:       a.SNATCount,
		LRPCount:        a.LRPCount,
		Correlation:     a.Correlation,
		Validation:      a.Validation,
		Recommendations: a.Recommendations,
	}
}

// Analyzer cross-validates extracted rule sets against each other and
// against desired EgressIP state.
type Analyzer struct {
	extractor   *ovn.Extractor
	assignments AssignmentSource
	cfg         Config
	log         *logrus.Logger

	mu          sync.Mutex
	analysisLog []logEntry
}

type logEntry struct {
	Node       string
	At         time.Time
	Duration   time.Duration
	IssueCount int
}

// analysisLogCap bounds the in-memory log ring.
const analysisLogCap = 1000

// New builds an analyzer. assignments may be nil, in which case desired
// state validation is reported as not possible. A nil logger selects the
// logrus standard logger.
func New(extractor *ovn.Extractor, assignments AssignmentSource, cfg Config, log *logrus.Logger) *Analyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Analyzer{
		extractor:   extractor,
		assignments: assignments,
		cfg:         cfg,
		log:         log,
	}
}

// AnalyzeNode extracts, summarizes, correlates, and validates one node's
// rules. Extraction transport failure is the only error path; every
// recoverable condition lands in the returned structure.
func (a *Analyzer) AnalyzeNode(ctx context.Context, node string) (*NodeAnalysis, error) {
	start := time.Now()
	a.log.WithField("node", node).Info("starting OVN rule analysis")

	set, err := a.extractor.RuleSet(ctx, node)
	if err != nil {
		return nil, err
	}

	analysis := a.AnalyzeRuleSet(ctx, set)
	analysis.Database = a.extractor.DatabaseInfo(ctx, node)

	a.record(node, time.Since(start), analysis)
	return analysis, nil
}

// AnalyzeRuleSet runs the validator over an already-extracted rule set.
// Split out from AnalyzeNode so callers holding rule data (tests, replay
// from stored output) get identical scoring.
func (a *Analyzer) AnalyzeRuleSet(ctx context.Context, set types.RuleSet) *NodeAnalysis {
	analysis := &NodeAnalysis{
		Node:      set.Node,
		TakenAt:   set.TakenAt,
		SNATCount: len(set.SNAT),
		LRPCount:  len(set.LRP),
		SNAT:      SummarizeSNAT(set.SNAT),
		LRP:       SummarizeLRP(set.LRP),
	}
	analysis.Correlation = a.Correlate(set.SNAT, set.LRP)
	analysis.Validation = a.validate(ctx, analysis.Correlation.SNATExternalIPs)
	analysis.Recommendations = Recommendations(analysis.SNAT, analysis.LRP, analysis.Correlation, analysis.Validation)
	return analysis
}

// SummarizeSNAT computes the per-kind summary for SNAT records.
func SummarizeSNAT(records []types.RuleRecord) SNATSummary {
	summary := SNATSummary{Total: len(records)}
	external := map[string]struct{}{}
	logical := map[string]struct{}{}

	for _, r := range records {
		if r.SNAT == nil {
			summary.Issues = append(summary.Issues, "failed to parse rule: "+r.Raw)
			continue
		}
		summary.Parsed++
		if r.SNAT.ExternalIP != "" {
			external[r.SNAT.ExternalIP] = struct{}{}
		}
		if r.SNAT.LogicalIP != "" {
			logical[r.SNAT.LogicalIP] = struct{}{}
		}
	}
	summary.ExternalIPs = sortedKeys(external)
	summary.LogicalIPs = sortedKeys(logical)
	return summary
}

// SummarizeLRP computes the per-kind summary for LRP records. Records
// with a malformed priority contribute to the action histogram but not
// to the priority stats, and are reported as issues.
func SummarizeLRP(records []types.RuleRecord) LRPSummary {
	summary := LRPSummary{Total: len(records), ActionVerbs: map[string]int{}}
	var priorities []int
	unique := map[int]struct{}{}

	for _, r := range records {
		if r.LRP == nil {
			summary.Issues = append(summary.Issues, "failed to parse rule: "+r.Raw)
			continue
		}
		summary.Parsed++

		if r.LRP.PriorityErr != "" {
			summary.Issues = append(summary.Issues, r.LRP.PriorityErr)
		} else {
			priorities = append(priorities, r.LRP.Priority)
			unique[r.LRP.Priority] = struct{}{}
		}

		verb := "unknown"
		if fields := strings.Fields(r.LRP.Action); len(fields) > 0 {
			verb = fields[0]
		}
		summary.ActionVerbs[verb]++
	}

	if len(priorities) > 0 {
		stats := PriorityStats{Min: priorities[0], Max: priorities[0], Unique: len(unique)}
		for _, p := range priorities[1:] {
			if p < stats.Min {
				stats.Min = p
			}
			if p > stats.Max {
				stats.Max = p
			}
		}
		summary.PriorityStats = stats
	}
	return summary
}

var ipv4Pattern = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)

// extractIPv4 pulls valid dotted-quad literals out of free text. The
// regex over-matches (e.g. octets above 255), so every candidate is
// re-checked with net.ParseIP.
func extractIPv4(text string) []string {
	var ips []string
	for _, tok := range ipv4Pattern.FindAllString(text, -1) {
		if ip := net.ParseIP(tok); ip != nil && ip.To4() != nil {
			ips = append(ips, tok)
		}
	}
	return ips
}

// Correlate measures how much of the SNAT external-IP surface has a
// corresponding LRP reference. The score is SNAT-anchored and undefined
// when either side has no parsed data.
func (a *Analyzer) Correlate(snat, lrp []types.RuleRecord) types.Correlation {
	snatIPs := map[string]struct{}{}
	for _, r := range snat {
		if r.SNAT != nil && r.SNAT.ExternalIP != "" {
			snatIPs[r.SNAT.ExternalIP] = struct{}{}
		}
	}

	lrpRefs := map[string]struct{}{}
	for _, r := range lrp {
		if r.LRP == nil {
			continue
		}
		for _, ip := range extractIPv4(r.LRP.Match + " " + r.LRP.Action) {
			lrpRefs[ip] = struct{}{}
		}
	}

	corr := types.Correlation{
		Rating:          types.CorrelationNoData,
		SNATExternalIPs: sortedKeys(snatIPs),
		LRPIPReferences: sortedKeys(lrpRefs),
		CorrelatedIPs:   []string{},
	}
	if len(snatIPs) == 0 || len(lrpRefs) == 0 {
		return corr
	}

	correlated := map[string]struct{}{}
	for ip := range snatIPs {
		if _, ok := lrpRefs[ip]; ok {
			correlated[ip] = struct{}{}
		}
	}

	corr.Computed = true
	corr.CorrelatedIPs = sortedKeys(correlated)
	corr.Score = float64(len(correlated)) / float64(len(snatIPs))

	switch {
	case corr.Score > a.cfg.GoodThreshold:
		corr.Rating = types.CorrelationGood
	case corr.Score > a.cfg.ModerateThreshold:
		corr.Rating = types.CorrelationModerate
	default:
		corr.Rating = types.CorrelationPoor
		corr.Issues = append(corr.Issues, "low correlation between SNAT and LRP rules")
	}
	return corr
}

// validate compares SNAT external IPs against currently assigned
// EgressIPs. Source errors mark validation as not possible.
func (a *Analyzer) validate(ctx context.Context, snatExternal []string) types.ValidationResult {
	if a.assignments == nil {
		return types.ValidationResult{Reason: "no assignment source configured"}
	}

	assignCtx, err := a.assignments.ListAssignments(ctx)
	if err != nil {
		a.log.WithError(err).Error("EgressIP assignment lookup failed")
		return types.ValidationResult{Reason: err.Error()}
	}
	return ValidateAgainst(assignCtx, snatExternal)
}

// ValidateAgainst computes the exact set differences between assigned
// EgressIPs and SNAT external IPs. Both directions are reported as full
// sets, never just counts.
func ValidateAgainst(assignCtx types.AssignmentContext, snatExternal []string) types.ValidationResult {
	assigned := map[string]struct{}{}
	for _, ip := range assignCtx.AllAssignedIPs {
		assigned[ip] = struct{}{}
	}
	snat := map[string]struct{}{}
	for _, ip := range snatExternal {
		snat[ip] = struct{}{}
	}

	missing := map[string]struct{}{}
	for ip := range assigned {
		if _, ok := snat[ip]; !ok {
			missing[ip] = struct{}{}
		}
	}
	unexpected := map[string]struct{}{}
	for ip := range snat {
		if _, ok := assigned[ip]; !ok {
			unexpected[ip] = struct{}{}
		}
	}

	return types.ValidationResult{
		Possible:          true,
		MissingSNAT:       sortedKeys(missing),
		UnexpectedSNAT:    sortedKeys(unexpected),
		AssignedCount:     len(assigned),
		SNATExternalCount: len(snat),
		Passed:            len(missing) == 0 && len(unexpected) == 0,
	}
}

func (a *Analyzer) record(node string, d time.Duration, analysis *NodeAnalysis) {
	a.mu.Lock()
	defer a.mu.Unlock()

	issues := len(analysis.SNAT.Issues) + len(analysis.LRP.Issues) + len(analysis.Correlation.Issues)
	a.analysisLog = append(a.analysisLog, logEntry{
		Node:       node,
		At:         time.Now(),
		Duration:   d,
		IssueCount: issues,
	})
	if len(a.analysisLog) > analysisLogCap {
		a.analysisLog = a.analysisLog[len(a.analysisLog)-analysisLogCap:]
	}
}

// Stats summarizes the analyses this instance has run.
func (a *Analyzer) Stats() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := len(a.analysisLog)
	withIssues := 0
	var totalDuration time.Duration
	for _, e := range a.analysisLog {
		if e.IssueCount > 0 {
			withIssues++
		}
		totalDuration += e.Duration
	}

	avg := time.Duration(0)
	if total > 0 {
		avg = totalDuration / time.Duration(total)
	}
	return map[string]interface{}{
		"total_analyses":       total,
		"analyses_with_issues": withIssues,
		"avg_duration_ms":      avg.Milliseconds(),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
