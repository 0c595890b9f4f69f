package analyzer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ovnwatch/ovnwatch/internal/ovn"
	"github.com/ovnwatch/ovnwatch/internal/types"
)

// NodeResult is one node's contribution to a multi-node comparison.
// Err is set when extraction failed for that node; siblings are
// unaffected.
type NodeResult struct {
	Node     string          `json:"node"`
	Analysis *NodeAnalysis   `json:"analysis,omitempty"`
	Snapshot *types.Snapshot `json:"snapshot,omitempty"`
	Err      string          `json:"error,omitempty"`
}

// CountSpread records the per-kind rule count range across nodes.
type CountSpread struct {
	Min     int    `json:"min"`
	MinNode string `json:"min_node"`
	Max     int    `json:"max"`
	MaxNode string `json:"max_node"`
}

// Comparison is the cross-node consistency result.
type Comparison struct {
	Nodes             []string                       `json:"nodes_analyzed"`
	Results           []NodeResult                   `json:"results"`
	CountSpread       map[types.RuleKind]CountSpread `json:"rule_count_comparison"`
	Inconsistencies   []string                       `json:"inconsistencies"`
	OverallConsistent bool                           `json:"overall_consistency"`
	Recommendations   []string                       `json:"recommendations"`
	TakenAt           time.Time                      `json:"taken_at"`
}

// CompareNodes analyzes every node concurrently and diffs rule counts
// and rule content across them. A node that cannot be reached is
// reported failed inside its result; the comparison still covers the
// nodes that answered.
func (a *Analyzer) CompareNodes(ctx context.Context, nodes []string) *Comparison {
	cmp := &Comparison{
		Nodes:   nodes,
		Results: make([]NodeResult, len(nodes)),
		TakenAt: time.Now().UTC(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxParallel)

	for i, node := range nodes {
		i, node := i, node
		g.Go(func() error {
			nodeCtx := gctx
			if a.cfg.NodeTimeout > 0 {
				var cancel context.CancelFunc
				nodeCtx, cancel = context.WithTimeout(gctx, a.cfg.NodeTimeout)
				defer cancel()
			}

			set, err := a.extractor.RuleSet(nodeCtx, node)
			if err != nil {
				// Per-node failure stays local to this result.
				cmp.Results[i] = NodeResult{Node: node, Err: err.Error()}
				a.log.WithField("node", node).WithError(err).Error("rule extraction failed")
				return nil
			}

			snap := ovn.SnapshotOf(set)
			cmp.Results[i] = NodeResult{
				Node:     node,
				Analysis: a.AnalyzeRuleSet(nodeCtx, set),
				Snapshot: &snap,
			}
			return nil
		})
	}
	g.Wait()

	a.compareResults(cmp)
	return cmp
}

func (a *Analyzer) compareResults(cmp *Comparison) {
	var ok []NodeResult
	failed := 0
	for _, r := range cmp.Results {
		if r.Err == "" {
			ok = append(ok, r)
		} else {
			failed++
		}
	}

	cmp.CountSpread = map[types.RuleKind]CountSpread{}
	if len(ok) > 0 {
		for _, kind := range []types.RuleKind{types.KindSNAT, types.KindLRP} {
			spread := countSpread(ok, kind)
			cmp.CountSpread[kind] = spread
			if spread.Min != spread.Max {
				cmp.Inconsistencies = append(cmp.Inconsistencies, fmt.Sprintf(
					"%s rule counts differ across nodes: %d on %s vs %d on %s",
					kind, spread.Min, spread.MinNode, spread.Max, spread.MaxNode))
			}
		}

		for _, kind := range []types.RuleKind{types.KindSNAT, types.KindLRP} {
			if n := distinctFingerprints(ok, kind); n > 1 {
				cmp.Inconsistencies = append(cmp.Inconsistencies, fmt.Sprintf(
					"%s rule content differs across nodes: %d distinct rule sets", kind, n))
			}
		}
	}

	cmp.OverallConsistent = len(cmp.Inconsistencies) == 0 && failed == 0
	cmp.Recommendations = multiNodeRecommendations(cmp, failed)
}

func countSpread(results []NodeResult, kind types.RuleKind) CountSpread {
	count := func(r NodeResult) int {
		if kind == types.KindSNAT {
			return r.Snapshot.SNATCount
		}
		return r.Snapshot.LRPCount
	}

	spread := CountSpread{
		Min: count(results[0]), MinNode: results[0].Node,
		Max: count(results[0]), MaxNode: results[0].Node,
	}
	for _, r := range results[1:] {
		c := count(r)
		if c < spread.Min {
			spread.Min, spread.MinNode = c, r.Node
		}
		if c > spread.Max {
			spread.Max, spread.MaxNode = c, r.Node
		}
	}
	return spread
}

func distinctFingerprints(results []NodeResult, kind types.RuleKind) int {
	seen := map[uint64]struct{}{}
	for _, r := range results {
		if kind == types.KindSNAT {
			seen[r.Snapshot.SNATFingerprint] = struct{}{}
		} else {
			seen[r.Snapshot.LRPFingerprint] = struct{}{}
		}
	}
	return len(seen)
}

func multiNodeRecommendations(cmp *Comparison, failed int) []string {
	var recs []string
	for _, issue := range cmp.Inconsistencies {
		recs = append(recs, "investigate: "+issue)
	}
	if failed > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d node(s) could not be analyzed - re-run the comparison once they are reachable", failed))
	}
	if len(recs) == 0 {
		recs = append(recs, "rule state is consistent across all analyzed nodes")
	}
	return recs
}
