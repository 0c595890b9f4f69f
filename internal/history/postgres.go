package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/ovnwatch/ovnwatch/internal/trend"
)

// PostgresStore persists metrics to PostgreSQL. Every write funnels
// through a single writer goroutine per store handle, making the
// serialization point explicit instead of leaning on driver or engine
// locking; reads go straight to the pooled connection.
type PostgresStore struct {
	db     *sql.DB
	log    *logrus.Logger
	writes chan writeOp
	done   chan struct{}
}

type writeOp struct {
	query  string
	args   []interface{}
	result chan error
}

// NewPostgresStore connects, ensures the schema, and starts the writer.
// A nil logger selects the logrus standard logger.
func NewPostgresStore(connStr string, log *logrus.Logger) (*PostgresStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStore{
		db:     db,
		log:    log,
		writes: make(chan writeOp, 64),
		done:   make(chan struct{}),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go s.writer()
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assignment_status (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		egressip_name TEXT NOT NULL,
		namespace TEXT,
		status TEXT,
		assigned_nodes TEXT[],
		assigned_ips TEXT[],
		pod_count INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_assignment_timestamp ON assignment_status(timestamp);

	CREATE TABLE IF NOT EXISTS ovn_rule_metrics (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		node_name TEXT NOT NULL,
		snat_rules_count INTEGER,
		lrp_rules_count INTEGER,
		parsing_errors INTEGER,
		consistency_score DOUBLE PRECISION
	);
	CREATE INDEX IF NOT EXISTS idx_ovn_timestamp ON ovn_rule_metrics(timestamp);

	CREATE TABLE IF NOT EXISTS performance_tests (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		test_name TEXT NOT NULL,
		execution_time_seconds DOUBLE PRECISION,
		test_passed BOOLEAN,
		scenarios_completed INTEGER,
		total_scenarios INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_perf_timestamp ON performance_tests(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// writer is the store's single serialization point for writes.
func (s *PostgresStore) writer() {
	for op := range s.writes {
		_, err := s.db.Exec(op.query, op.args...)
		op.result <- err
	}
	close(s.done)
}

func (s *PostgresStore) enqueue(query string, args ...interface{}) error {
	op := writeOp{query: query, args: args, result: make(chan error, 1)}
	s.writes <- op
	return <-op.result
}

func (s *PostgresStore) RecordRuleMetric(m RuleMetric) error {
	var score sql.NullFloat64
	if m.ConsistencyScore != nil {
		score = sql.NullFloat64{Float64: *m.ConsistencyScore, Valid: true}
	}
	return s.enqueue(`
		INSERT INTO ovn_rule_metrics
			(timestamp, node_name, snat_rules_count, lrp_rules_count, parsing_errors, consistency_score)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.Timestamp, m.Node, m.SNATRules, m.LRPRules, m.ParseErrors, score)
}

func (s *PostgresStore) RecordAssignmentMetric(m AssignmentMetric) error {
	return s.enqueue(`
		INSERT INTO assignment_status
			(timestamp, egressip_name, namespace, status, assigned_nodes, assigned_ips, pod_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.Timestamp, m.Name, m.Namespace, m.Status,
		pq.Array(m.AssignedNodes), pq.Array(m.AssignedIPs), m.PodCount)
}

func (s *PostgresStore) RecordPerformanceResult(r PerformanceResult) error {
	return s.enqueue(`
		INSERT INTO performance_tests
			(timestamp, test_name, execution_time_seconds, test_passed, scenarios_completed, total_scenarios)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.Timestamp, r.TestName, r.Duration.Seconds(), r.Passed, r.ScenariosCompleted, r.TotalScenarios)
}

// DailyAggregates groups stored records per UTC day for the trend
// aggregator, oldest first.
func (s *PostgresStore) DailyAggregates(family trend.MetricFamily, since time.Time) ([]trend.Aggregate, error) {
	switch family {
	case trend.FamilyAssignments:
		return s.queryAggregates(`
			SELECT date_trunc('day', timestamp) AS day,
			       COUNT(DISTINCT egressip_name)::float8,
			       AVG(pod_count)
			FROM assignment_status
			WHERE timestamp > $1
			GROUP BY day ORDER BY day
		`, since, "unique_egressips", "avg_pod_count")

	case trend.FamilyOVNRules:
		return s.queryAggregates(`
			SELECT date_trunc('day', timestamp) AS day,
			       AVG(snat_rules_count),
			       AVG(lrp_rules_count),
			       AVG(consistency_score)
			FROM ovn_rule_metrics
			WHERE timestamp > $1
			GROUP BY day ORDER BY day
		`, since, "avg_snat_rules", "avg_lrp_rules", "avg_consistency")

	case trend.FamilyPerformance:
		return s.queryAggregates(`
			SELECT date_trunc('day', timestamp) AS day,
			       COUNT(*) FILTER (WHERE test_passed)::float8 / COUNT(*)::float8,
			       AVG(execution_time_seconds)
			FROM performance_tests
			WHERE timestamp > $1
			GROUP BY day ORDER BY day
		`, since, "pass_rate", "avg_execution_time")

	default:
		return nil, fmt.Errorf("unknown metric family: %s", family)
	}
}

func (s *PostgresStore) queryAggregates(query string, since time.Time, metrics ...string) ([]trend.Aggregate, error) {
	rows, err := s.db.Query(query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggs []trend.Aggregate
	for rows.Next() {
		var day time.Time
		cols := make([]sql.NullFloat64, len(metrics))
		dest := make([]interface{}, 0, len(metrics)+1)
		dest = append(dest, &day)
		for i := range cols {
			dest = append(dest, &cols[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		values := map[string]float64{}
		for i, name := range metrics {
			if cols[i].Valid {
				values[name] = cols[i].Float64
			}
		}
		aggs = append(aggs, trend.Aggregate{Date: day.UTC(), Values: values})
	}
	return aggs, rows.Err()
}

func (s *PostgresStore) Summary(since time.Time) (Summary, error) {
	summary := Summary{Since: since}

	var avgPod sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT egressip_name), AVG(pod_count)
		FROM assignment_status WHERE timestamp > $1
	`, since).Scan(&summary.Assignments.Records, &summary.Assignments.UniqueObjects, &avgPod)
	if err != nil {
		return summary, err
	}
	summary.Assignments.AvgPodCount = avgPod.Float64

	var avgSNAT, avgLRP, avgScore sql.NullFloat64
	err = s.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT node_name),
		       AVG(snat_rules_count), AVG(lrp_rules_count), AVG(consistency_score)
		FROM ovn_rule_metrics WHERE timestamp > $1
	`, since).Scan(&summary.Rules.Records, &summary.Rules.UniqueNodes, &avgSNAT, &avgLRP, &avgScore)
	if err != nil {
		return summary, err
	}
	summary.Rules.AvgSNATRules = avgSNAT.Float64
	summary.Rules.AvgLRPRules = avgLRP.Float64
	if avgScore.Valid {
		v := avgScore.Float64
		summary.Rules.AvgConsistency = &v
	}

	var avgDuration sql.NullFloat64
	err = s.db.QueryRow(`
		SELECT COUNT(*), COUNT(*) FILTER (WHERE test_passed), AVG(execution_time_seconds)
		FROM performance_tests WHERE timestamp > $1
	`, since).Scan(&summary.Performance.Total, &summary.Performance.Passed, &avgDuration)
	if err != nil {
		return summary, err
	}
	summary.Performance.AvgDuration = avgDuration.Float64

	return summary, nil
}

// Close drains the writer and closes the connection pool. Callers must
// stop recording before closing.
func (s *PostgresStore) Close() error {
	close(s.writes)
	<-s.done
	return s.db.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping() error {
	return s.db.Ping()
}
