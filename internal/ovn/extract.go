package ovn

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ovnwatch/ovnwatch/internal/types"
)

// DefaultRouter is the logical router ovn-kubernetes programs EgressIP
// rules on.
const DefaultRouter = "ovn_cluster_router"

// DatabaseInfo is a light probe of the OVN northbound database on a node.
type DatabaseInfo struct {
	Available        bool   `json:"available"`
	Error            string `json:"error,omitempty"`
	OutputSample     string `json:"output_sample,omitempty"`
	LineCount        int    `json:"line_count"`
	HasClusterRouter bool   `json:"has_cluster_router"`
}

// Extractor pulls SNAT and LRP rules off a node through an Executor and
// parses them into typed records.
type Extractor struct {
	exec   Executor
	router string
	log    *logrus.Logger
}

// NewExtractor builds an extractor over the given executor. An empty
// router selects DefaultRouter; a nil logger selects the logrus standard
// logger.
func NewExtractor(exec Executor, router string, log *logrus.Logger) *Extractor {
	if router == "" {
		router = DefaultRouter
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Extractor{exec: exec, router: router, log: log}
}

// SNATRules extracts and parses the node's NAT table. A command that
// runs but exits non-zero is "no data for this kind": it logs stderr and
// returns an empty list. A transport error is returned to the caller.
func (e *Extractor) SNATRules(ctx context.Context, node string) ([]types.RuleRecord, error) {
	return e.rules(ctx, node, types.KindSNAT, e.natListArgs())
}

// LRPRules extracts and parses the node's logical router policies.
func (e *Extractor) LRPRules(ctx context.Context, node string) ([]types.RuleRecord, error) {
	return e.rules(ctx, node, types.KindLRP, e.policyListArgs())
}

func (e *Extractor) rules(ctx context.Context, node string, kind types.RuleKind, argv []string) ([]types.RuleRecord, error) {
	res, err := e.exec.Exec(ctx, node, argv)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		e.log.WithFields(logrus.Fields{
			"node":   node,
			"kind":   kind,
			"exit":   res.ExitCode,
			"stderr": strings.TrimSpace(res.Stderr),
		}).Error("rule listing failed, treating as no data")
		return nil, nil
	}
	return ParseRules(kind, res.Stdout), nil
}

// RuleSet extracts both kinds and returns them as one observation.
func (e *Extractor) RuleSet(ctx context.Context, node string) (types.RuleSet, error) {
	snat, err := e.SNATRules(ctx, node)
	if err != nil {
		return types.RuleSet{}, err
	}
	lrp, err := e.LRPRules(ctx, node)
	if err != nil {
		return types.RuleSet{}, err
	}
	return types.RuleSet{
		Node:    node,
		TakenAt: time.Now().UTC(),
		SNAT:    snat,
		LRP:     lrp,
	}, nil
}

// Snapshot reduces one observation to counts and fingerprints for drift
// monitoring.
func (e *Extractor) Snapshot(ctx context.Context, node string) (types.Snapshot, error) {
	set, err := e.RuleSet(ctx, node)
	if err != nil {
		return types.Snapshot{}, err
	}
	return SnapshotOf(set), nil
}

// SnapshotOf fingerprints an already-extracted rule set.
func SnapshotOf(set types.RuleSet) types.Snapshot {
	return types.Snapshot{
		TakenAt:         set.TakenAt,
		SNATCount:       len(set.SNAT),
		LRPCount:        len(set.LRP),
		SNATFingerprint: Fingerprint(set.SNAT),
		LRPFingerprint:  Fingerprint(set.LRP),
	}
}

// DatabaseInfo probes the northbound database with "ovn-nbctl show".
func (e *Extractor) DatabaseInfo(ctx context.Context, node string) DatabaseInfo {
	res, err := e.exec.Exec(ctx, node, e.showArgs())
	if err != nil {
		return DatabaseInfo{Error: err.Error()}
	}
	if res.ExitCode != 0 {
		return DatabaseInfo{Error: strings.TrimSpace(res.Stderr)}
	}

	sample := res.Stdout
	if len(sample) > 1000 {
		sample = sample[:1000]
	}
	return DatabaseInfo{
		Available:        true,
		OutputSample:     sample,
		LineCount:        len(strings.Split(res.Stdout, "\n")),
		HasClusterRouter: strings.Contains(strings.ToLower(res.Stdout), e.router),
	}
}

func (e *Extractor) natListArgs() []string {
	return e.nbctl("lr-nat-list", e.router)
}

func (e *Extractor) policyListArgs() []string {
	return e.nbctl("lr-policy-list", e.router)
}

func (e *Extractor) showArgs() []string {
	return e.nbctl("show")
}

func (e *Extractor) nbctl(args ...string) []string {
	argv := []string{"chroot", "/host", "ovn-nbctl", "--no-leader-only"}
	return append(argv, args...)
}
