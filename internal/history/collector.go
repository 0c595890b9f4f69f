package history

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ovnwatch/ovnwatch/internal/analyzer"
	"github.com/ovnwatch/ovnwatch/internal/types"
)

// Collector flattens analysis output into store records. It is the only
// bridge between the analyzer's report shapes and the metric tables, so
// schema concerns stay out of the analyzer.
type Collector struct {
	store Store
	log   *logrus.Logger
}

// NewCollector builds a collector over a store. A nil logger selects the
// logrus standard logger.
func NewCollector(store Store, log *logrus.Logger) *Collector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Collector{store: store, log: log}
}

// RecordAnalysis stores one node analysis as a rule metric. The
// consistency score is recorded only when it was actually computed;
// no-data analyses store a NULL score, never zero.
func (c *Collector) RecordAnalysis(a *analyzer.NodeAnalysis) error {
	m := RuleMetric{
		Timestamp:   a.TakenAt,
		Node:        a.Node,
		SNATRules:   a.SNATCount,
		LRPRules:    a.LRPCount,
		ParseErrors: (a.SNAT.Total - a.SNAT.Parsed) + (a.LRP.Total - a.LRP.Parsed),
	}
	if a.Correlation.Computed {
		score := a.Correlation.Score
		m.ConsistencyScore = &score
	}

	if err := c.store.RecordRuleMetric(m); err != nil {
		c.log.WithError(err).WithField("node", a.Node).Error("failed to store rule metric")
		return err
	}
	return nil
}

// RecordAssignments stores the per-object state of one assignment
// context observation.
func (c *Collector) RecordAssignments(assignCtx types.AssignmentContext, at time.Time) error {
	for _, obj := range assignCtx.Objects {
		m := AssignmentMetric{
			Timestamp:     at,
			Name:          obj.Name,
			Namespace:     obj.Namespace,
			Status:        obj.Status,
			AssignedNodes: obj.AssignedNodes,
			AssignedIPs:   obj.AssignedIPs,
			PodCount:      obj.PodCount,
		}
		if err := c.store.RecordAssignmentMetric(m); err != nil {
			c.log.WithError(err).WithField("egressip", obj.Name).Error("failed to store assignment metric")
			return err
		}
	}
	return nil
}
