package websql

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/websql/pkg/types"
)

func TestMetrics_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	b := newFakeBridge(false)
	b.failSQL["SELECT broken"] = errors.New("no such column: broken")
	db := openTestDB(t, b, WithMetrics(m))

	require.NoError(t, db.RunTransaction(testContext(t), func(tx *Transaction) error {
		exec(t, tx, "SELECT 1")
		return tx.Transaction(func(child *Transaction) error {
			exec(t, child, "SELECT 2")
			return nil
		})
	}))

	require.NoError(t, db.RunTransaction(testContext(t), func(tx *Transaction) error {
		return tx.ExecuteSQL("SELECT broken", nil, nil, func(*Transaction, error) types.Decision {
			return types.DecisionContinue
		})
	}))

	require.Error(t, db.RunTransaction(testContext(t), func(tx *Transaction) error {
		return tx.ExecuteSQL("SELECT broken", nil, nil, nil)
	}))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transactions.WithLabelValues("T", "root", outcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("T", "nested", outcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactions.WithLabelValues("T", "root", outcomeRolledBack)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.statements.WithLabelValues("T", statementOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statements.WithLabelValues("T", statementRecovered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statements.WithLabelValues("T", statementFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("T")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.transactionDone("T", true, outcomeCommitted)
		m.statementDone("T", statementOK)
		m.setQueueDepth("T", 3)
	})
}
