package analyzer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ovnwatch/ovnwatch/internal/ovn"
	"github.com/ovnwatch/ovnwatch/internal/types"
)

// stubSource is a canned AssignmentSource.
type stubSource struct {
	ctx types.AssignmentContext
	err error
}

func (s *stubSource) ListAssignments(context.Context) (types.AssignmentContext, error) {
	return s.ctx, s.err
}

func newTestAnalyzer(src AssignmentSource) *Analyzer {
	return New(nil, src, DefaultConfig(), nil)
}

func snatRecords(lines string) []types.RuleRecord {
	return ovn.ParseRules(types.KindSNAT, lines)
}

func lrpRecords(lines string) []types.RuleRecord {
	return ovn.ParseRules(types.KindLRP, lines)
}

func TestCorrelate_FullMatch(t *testing.T) {
	a := newTestAnalyzer(nil)

	snat := snatRecords("snat 192.168.1.100 10.244.1.5 a\nsnat 192.168.1.101 10.244.1.6 b")
	lrp := lrpRecords(`100 ip4.src == 10.244.1.5 reroute 192.168.1.100
100 ip4.src == 10.244.1.6 reroute 192.168.1.101`)

	corr := a.Correlate(snat, lrp)
	if !corr.Computed {
		t.Fatal("correlation should be computed")
	}
	if corr.Score != 1.0 {
		t.Errorf("expected score 1.0, got %f", corr.Score)
	}
	if corr.Rating != types.CorrelationGood {
		t.Errorf("expected good rating, got %s", corr.Rating)
	}
	if !reflect.DeepEqual(corr.CorrelatedIPs, []string{"192.168.1.100", "192.168.1.101"}) {
		t.Errorf("unexpected correlated IPs: %v", corr.CorrelatedIPs)
	}
}

func TestCorrelate_NoOverlap(t *testing.T) {
	a := newTestAnalyzer(nil)

	snat := snatRecords("snat 192.168.1.100 10.244.1.5 a")
	lrp := lrpRecords("100 ip4.src == 10.244.9.9 reroute 10.0.0.50")

	corr := a.Correlate(snat, lrp)
	if !corr.Computed {
		t.Fatal("both sides have data, score must be computed")
	}
	if corr.Score != 0 {
		t.Errorf("expected score 0, got %f", corr.Score)
	}
	if corr.Rating != types.CorrelationPoor {
		t.Errorf("expected poor rating, got %s", corr.Rating)
	}
	if len(corr.Issues) == 0 {
		t.Error("a poor rating must carry an issue")
	}
}

func TestCorrelate_NoData(t *testing.T) {
	a := newTestAnalyzer(nil)

	// Empty LRP side: the score is undefined, never zero.
	corr := a.Correlate(snatRecords("snat 192.168.1.100 10.244.1.5 a"), nil)
	if corr.Computed {
		t.Fatal("score must not be computed without LRP references")
	}
	if corr.Rating != types.CorrelationNoData {
		t.Errorf("expected no_data rating, got %s", corr.Rating)
	}

	corr = a.Correlate(nil, lrpRecords("100 m reroute 192.168.1.100"))
	if corr.Computed {
		t.Fatal("score must not be computed without SNAT data")
	}
}

func TestExtractIPv4_RejectsInvalidOctets(t *testing.T) {
	ips := extractIPv4("reroute 192.168.1.100 via 999.1.1.1 and 10.0.0.300")
	if !reflect.DeepEqual(ips, []string{"192.168.1.100"}) {
		t.Errorf("expected only the valid address, got %v", ips)
	}
}

func TestValidateAgainst(t *testing.T) {
	assignCtx := types.AssignmentContext{AllAssignedIPs: []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}}
	snat := []string{"10.0.0.2", "10.0.0.3", "10.0.0.4"}

	val := ValidateAgainst(assignCtx, snat)
	if !val.Possible {
		t.Fatal("validation should be possible")
	}
	if !reflect.DeepEqual(val.MissingSNAT, []string{"10.0.0.1"}) {
		t.Errorf("expected missing [10.0.0.1], got %v", val.MissingSNAT)
	}
	if !reflect.DeepEqual(val.UnexpectedSNAT, []string{"10.0.0.4"}) {
		t.Errorf("expected unexpected [10.0.0.4], got %v", val.UnexpectedSNAT)
	}
	if val.Passed {
		t.Error("validation with differences must not pass")
	}
}

func TestValidateAgainst_Clean(t *testing.T) {
	assignCtx := types.AssignmentContext{AllAssignedIPs: []string{"10.0.0.1"}}
	val := ValidateAgainst(assignCtx, []string{"10.0.0.1"})
	if !val.Passed {
		t.Error("matching sets must pass")
	}
}

func TestValidate_NoSource(t *testing.T) {
	a := newTestAnalyzer(nil)
	val := a.validate(context.Background(), []string{"10.0.0.1"})
	if val.Possible {
		t.Fatal("validation without a source must be reported as not possible")
	}
	if val.Reason == "" {
		t.Error("a reason must be given")
	}
}

func TestValidate_SourceError(t *testing.T) {
	a := newTestAnalyzer(&stubSource{err: errors.New("api server unreachable")})
	val := a.validate(context.Background(), []string{"10.0.0.1"})
	if val.Possible {
		t.Fatal("a source error is not an empty assignment set")
	}
	if !strings.Contains(val.Reason, "unreachable") {
		t.Errorf("reason should carry the source error, got %q", val.Reason)
	}
}

func TestSummarizeSNAT(t *testing.T) {
	records := snatRecords("snat 10.0.0.1 10.244.0.1 a\ngarbage with snat inside")
	summary := SummarizeSNAT(records)

	if summary.Total != 2 || summary.Parsed != 1 {
		t.Errorf("expected 2 total / 1 parsed, got %d / %d", summary.Total, summary.Parsed)
	}
	if len(summary.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(summary.Issues))
	}
	if !strings.Contains(summary.Issues[0], "garbage with snat inside") {
		t.Errorf("the issue must carry the raw line, got %q", summary.Issues[0])
	}
}

func TestSummarizeLRP_PriorityStats(t *testing.T) {
	records := lrpRecords(`100 m1 reroute 10.0.0.1
200 m2 allow
abc m3 drop`)
	summary := SummarizeLRP(records)

	if summary.Parsed != 3 {
		t.Errorf("all three records parse, got %d", summary.Parsed)
	}
	if len(summary.Issues) != 1 {
		t.Errorf("the bad priority is an issue, got %v", summary.Issues)
	}
	// The malformed priority must not poison the stats.
	if summary.PriorityStats.Min != 100 || summary.PriorityStats.Max != 200 {
		t.Errorf("unexpected priority stats: %+v", summary.PriorityStats)
	}
	if summary.PriorityStats.Unique != 2 {
		t.Errorf("expected 2 unique priorities, got %d", summary.PriorityStats.Unique)
	}
	if summary.ActionVerbs["reroute"] != 1 || summary.ActionVerbs["allow"] != 1 || summary.ActionVerbs["drop"] != 1 {
		t.Errorf("unexpected action histogram: %v", summary.ActionVerbs)
	}
}

func TestRecommendations_NeverEmpty(t *testing.T) {
	recs := Recommendations(
		SNATSummary{Total: 1, Parsed: 1},
		LRPSummary{Total: 1, Parsed: 1},
		types.Correlation{Computed: true, Score: 1, Rating: types.CorrelationGood},
		types.ValidationResult{Possible: true, Passed: true},
	)
	if len(recs) != 1 {
		t.Fatalf("a clean analysis yields exactly the all-clear advisory, got %v", recs)
	}
	if !strings.Contains(recs[0], "no major issues") {
		t.Errorf("unexpected all-clear text: %q", recs[0])
	}
}

func TestRecommendations_OrderAndOwners(t *testing.T) {
	recs := Recommendations(
		SNATSummary{},
		LRPSummary{},
		types.Correlation{Rating: types.CorrelationNoData},
		types.ValidationResult{Possible: true, MissingSNAT: []string{"10.0.0.1"}},
	)
	if len(recs) != 3 {
		t.Fatalf("expected 3 advisories, got %v", recs)
	}
	if !strings.Contains(recs[0], "no SNAT rules") {
		t.Errorf("SNAT advisory must come first, got %q", recs[0])
	}
	if !strings.Contains(recs[1], "no LRP rules") {
		t.Errorf("LRP advisory must come second, got %q", recs[1])
	}
	if !strings.Contains(recs[2], "missing SNAT rules for 1 EgressIPs") {
		t.Errorf("validation advisory must come last, got %q", recs[2])
	}
	for _, r := range recs {
		if !strings.Contains(r, "owner:") {
			t.Errorf("advisory should name its owning component: %q", r)
		}
	}
}

func TestAnalyzeRuleSet(t *testing.T) {
	src := &stubSource{ctx: types.AssignmentContext{AllAssignedIPs: []string{"192.168.1.100"}}}
	a := newTestAnalyzer(src)

	set := types.RuleSet{
		Node: "node-1",
		SNAT: snatRecords("snat 192.168.1.100 10.244.1.5 a"),
		LRP:  lrpRecords("100 ip4.src == 10.244.1.5 reroute 192.168.1.100"),
	}

	analysis := a.AnalyzeRuleSet(context.Background(), set)
	if analysis.Node != "node-1" {
		t.Errorf("expected node-1, got %s", analysis.Node)
	}
	if analysis.Correlation.Score != 1.0 {
		t.Errorf("expected full correlation, got %f", analysis.Correlation.Score)
	}
	if !analysis.Validation.Passed {
		t.Errorf("validation should pass: %+v", analysis.Validation)
	}
	if len(analysis.Recommendations) == 0 {
		t.Error("recommendations must never be empty")
	}

	report := analysis.Report()
	if report.SNATCount != 1 || report.LRPCount != 1 {
		t.Errorf("unexpected report counts: %+v", report)
	}
}
