package websql

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Transaction outcomes as recorded in websql_transactions_total.
const (
	outcomeCommitted  = "committed"
	outcomeRolledBack = "rolled_back"
	outcomeFailed     = "failed"
	outcomeSkipped    = "skipped"
)

// Statement outcomes as recorded in websql_statements_total.
const (
	statementOK        = "ok"
	statementFailed    = "failed"
	statementRecovered = "recovered"
)

// Metrics holds the prometheus collectors the engine updates. A nil *Metrics
// records nothing.
type Metrics struct {
	transactions *prometheus.CounterVec
	statements   *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websql",
			Name:      "transactions_total",
			Help:      "Finished transactions by database, scope (root or nested) and outcome.",
		}, []string{"database", "scope", "outcome"}),
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "websql",
			Name:      "statements_total",
			Help:      "Executed user statements by database and outcome.",
		}, []string{"database", "outcome"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "websql",
			Name:      "task_queue_depth",
			Help:      "Root transactions waiting behind the running one.",
		}, []string{"database"}),
	}
	if reg != nil {
		reg.MustRegister(m.transactions, m.statements, m.queueDepth)
	}
	return m
}

func (m *Metrics) transactionDone(database string, root bool, outcome string) {
	if m == nil {
		return
	}
	scope := "nested"
	if root {
		scope = "root"
	}
	m.transactions.WithLabelValues(database, scope, outcome).Inc()
}

func (m *Metrics) statementDone(database, outcome string) {
	if m == nil {
		return
	}
	m.statements.WithLabelValues(database, outcome).Inc()
}

func (m *Metrics) setQueueDepth(database string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(database).Set(float64(depth))
}
