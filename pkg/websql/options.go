package websql

import (
	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/websql/pkg/types"
)

// TransactionCallback receives the transaction handle and queues statements
// on it. A returned error rolls the transaction back.
type TransactionCallback func(tx *Transaction) error

// StatementCallback receives the result of a successful statement. A returned
// error is handled like a failure of the statement itself.
type StatementCallback func(tx *Transaction, rs *types.ResultSet) error

// StatementErrorCallback receives a statement failure and decides whether the
// transaction may continue.
type StatementErrorCallback func(tx *Transaction, err error) types.Decision

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger used for the database and its transactions.
func WithLogger(l logrus.FieldLogger) Option {
	return func(db *Database) {
		if l != nil {
			db.log = l
		}
	}
}

// WithMetrics records transaction, statement and queue metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(db *Database) {
		db.metrics = m
	}
}

// txOptions collects the optional arguments of Database.Transaction.
type txOptions struct {
	onError    func(error)
	onSuccess  func()
	preflight  func() error
	postflight func() error
	readOnly   bool
	parent     *Transaction

	// beforeRelease runs once, when the queue first drains without error,
	// and may queue final statements.
	beforeRelease func(tx *Transaction)
}

// TxOption configures a single transaction.
type TxOption func(*txOptions)

// OnError sets the continuation that receives the error of a rolled back or
// failed transaction. Unlike the statement callbacks it gets no
// *Transaction: by the time it fires the transaction has finished and
// accepts no further statements.
func OnError(fn func(error)) TxOption {
	return func(o *txOptions) { o.onError = fn }
}

// OnSuccess sets the continuation that fires after a committed transaction.
func OnSuccess(fn func()) TxOption {
	return func(o *txOptions) { o.onSuccess = fn }
}

// Preflight runs fn after the savepoint is taken and before the transaction
// callback. An error skips the callback and rolls back.
func Preflight(fn func() error) TxOption {
	return func(o *txOptions) { o.preflight = fn }
}

// Postflight runs fn after a successful RELEASE, before the success
// continuation. It never runs on the rollback path.
func Postflight(fn func() error) TxOption {
	return func(o *txOptions) { o.postflight = fn }
}

// ReadOnly rejects write statements at ExecuteSQL time.
func ReadOnly() TxOption {
	return func(o *txOptions) { o.readOnly = true }
}

// Parent nests the transaction inside parent. It borrows parent's connection
// and runs as one entry of parent's statement queue.
func Parent(parent *Transaction) TxOption {
	return func(o *txOptions) { o.parent = parent }
}

func withBeforeRelease(fn func(tx *Transaction)) TxOption {
	return func(o *txOptions) { o.beforeRelease = fn }
}

func collectTxOptions(opts []TxOption) txOptions {
	var o txOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
