package websql

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/websql/pkg/types"
)

// writeStatement matches statements a read-only transaction rejects.
var writeStatement = regexp.MustCompile(`(?i)^\s*(?:create|drop|delete|insert|update)\s`)

// Savepoint statement verbs.
const (
	verbSavepoint  = "SAVEPOINT"
	verbRelease    = "RELEASE"
	verbRollbackTo = "ROLLBACK TO"
)

// State is a step of the transaction lifecycle.
type State int

// Transaction states, in lifecycle order. Nested transactions skip
// StateConnecting and StateDisconnecting.
const (
	StateCreated State = iota
	StateConnecting
	StateSavepointPending
	StateRunningCallback
	StateDraining
	StateReleasing
	StateRollingBack
	StateDisconnecting
	StateDone
)

var stateNames = [...]string{
	StateCreated:          "created",
	StateConnecting:       "connecting",
	StateSavepointPending: "savepoint-pending",
	StateRunningCallback:  "running-callback",
	StateDraining:         "draining",
	StateReleasing:        "releasing",
	StateRollingBack:      "rolling-back",
	StateDisconnecting:    "disconnecting",
	StateDone:             "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Transaction is one unit of work against a Database. A root transaction
// owns its connection; a nested one borrows its parent's. Statements queued
// with ExecuteSQL run strictly in order, one at a time, and the first failure
// that is not explicitly recovered rolls the transaction back to its
// savepoint and skips whatever is still queued.
type Transaction struct {
	id       uint64
	db       *Database
	parent   *Transaction
	readOnly bool
	callback TransactionCallback
	opts     txOptions
	log      logrus.FieldLogger

	mu            sync.Mutex
	state         State
	conn          types.Conn
	queue         statementQueue
	err           error
	beforeRelease func(*Transaction)

	// pumping is set while a goroutine is inside advance; pending asks it
	// to run one more step. Bridges that complete synchronously therefore
	// loop here instead of recursing once per statement.
	pumping bool
	pending bool
}

func newTransaction(db *Database, id uint64, cb TransactionCallback, o txOptions) *Transaction {
	tx := &Transaction{
		id:            id,
		db:            db,
		parent:        o.parent,
		readOnly:      o.readOnly,
		callback:      cb,
		opts:          o,
		beforeRelease: o.beforeRelease,
	}
	if tx.parent != nil && tx.parent.readOnly {
		tx.readOnly = true
	}
	tx.log = db.log.WithFields(logrus.Fields{
		"tx":        id,
		"savepoint": tx.SavepointName(),
		"root":      tx.parent == nil,
	})
	return tx
}

// ID returns the transaction id, unique within its database.
func (tx *Transaction) ID() uint64 { return tx.id }

// SavepointName returns the name of the savepoint this transaction opens.
func (tx *Transaction) SavepointName() string { return fmt.Sprintf("trx%d", tx.id) }

// ReadOnly reports whether write statements are rejected.
func (tx *Transaction) ReadOnly() bool { return tx.readOnly }

// IsRoot reports whether the transaction owns its connection.
func (tx *Transaction) IsRoot() bool { return tx.parent == nil }

// Database returns the database the transaction belongs to.
func (tx *Transaction) Database() *Database { return tx.db }

// State returns the current lifecycle state.
func (tx *Transaction) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// ExecuteSQL queues sql with positional args. It never runs the statement
// before returning; onSuccess or onError fire once it has run. Either may be
// nil. A nil onError, or one returning anything but types.DecisionContinue,
// rolls the transaction back when the statement fails.
//
// Empty sql, a write statement in a read-only transaction, and calls after
// the transaction stopped accepting statements return a validation error
// and queue nothing.
func (tx *Transaction) ExecuteSQL(sql string, args []any, onSuccess StatementCallback, onError StatementErrorCallback) error {
	if strings.TrimSpace(sql) == "" {
		return types.NewError(types.KindValidation, types.ErrEmptySQL)
	}
	if tx.readOnly && writeStatement.MatchString(sql) {
		tx.log.WithField("sql", sql).Debug("rejected write in read-only transaction")
		return types.NewError(types.KindReadOnly, types.ErrReadOnlyViolation)
	}
	if args == nil {
		args = []any{}
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.acceptingLocked() {
		return types.NewError(types.KindValidation, types.ErrTransactionFinished)
	}
	tx.queue.push(&entry{sql: sql, args: args, onSuccess: onSuccess, onError: onError})
	return nil
}

// Transaction queues a nested read-write transaction on tx.
func (tx *Transaction) Transaction(cb TransactionCallback, opts ...TxOption) error {
	return tx.db.Transaction(cb, append(opts, Parent(tx))...)
}

// ReadTransaction queues a nested read-only transaction on tx.
func (tx *Transaction) ReadTransaction(cb TransactionCallback, opts ...TxOption) error {
	return tx.db.Transaction(cb, append(opts, ReadOnly(), Parent(tx))...)
}

// acceptingLocked reports whether statements may still be queued.
func (tx *Transaction) acceptingLocked() bool {
	return tx.state == StateRunningCallback || tx.state == StateDraining
}

func (tx *Transaction) enqueueChild(child *Transaction) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.acceptingLocked() {
		return types.NewError(types.KindValidation, types.ErrTransactionFinished)
	}
	tx.queue.push(&entry{child: child})
	child.log.Debug("queued nested transaction")
	return nil
}

func (tx *Transaction) setState(s State) {
	tx.mu.Lock()
	tx.state = s
	tx.mu.Unlock()
	tx.log.WithField("state", s).Debug("transition")
}

func (tx *Transaction) connection() types.Conn {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.conn
}

// fail records err as the transaction's error unless one is already set.
func (tx *Transaction) fail(err error) {
	tx.mu.Lock()
	if tx.err == nil {
		tx.err = err
	}
	tx.mu.Unlock()
}

// run is the task a root transaction places on the database task queue.
func (tx *Transaction) run() {
	tx.setState(StateConnecting)
	tx.db.bridge.Connect(tx.db.name, func(conn types.Conn, err error) {
		if err == nil && conn == nil {
			err = types.Errorf(types.KindConnection, "could not establish DB connection")
		}
		if err != nil {
			err = asKind(types.KindConnection, err)
			tx.log.WithError(err).Error("connect failed")
			tx.setState(StateDone)
			tx.db.metrics.transactionDone(tx.db.name, true, outcomeFailed)
			tx.notify(err)
			tx.db.tasks.runNext()
			return
		}
		tx.mu.Lock()
		tx.conn = conn
		tx.mu.Unlock()
		tx.log.WithField("conn", conn.ID()).Debug("connected")
		tx.begin()
	})
}

// begin takes the savepoint, runs preflight and the callback, then starts
// draining the statement queue.
func (tx *Transaction) begin() {
	if tx.parent != nil {
		conn := tx.parent.connection()
		tx.mu.Lock()
		tx.conn = conn
		tx.mu.Unlock()
	}
	tx.setState(StateSavepointPending)
	tx.control(verbSavepoint, func(err error) {
		if err != nil {
			// No savepoint exists, so there is nothing to roll back to.
			tx.log.WithError(err).Warn("savepoint failed")
			tx.finish(err, outcomeFailed)
			return
		}
		tx.setState(StateRunningCallback)
		if err := tx.runCallback(); err != nil {
			tx.log.WithError(err).Debug("transaction callback failed")
			tx.fail(err)
		}
		tx.setState(StateDraining)
		tx.advance()
	})
}

func (tx *Transaction) runCallback() error {
	if tx.opts.preflight != nil {
		if err := guard(tx.opts.preflight); err != nil {
			return asKind(types.KindStatement, err)
		}
	}
	err := guard(func() error { return tx.callback(tx) })
	return asKind(types.KindStatement, err)
}

// advance runs the next step of the draining queue. See pumping.
func (tx *Transaction) advance() {
	tx.mu.Lock()
	if tx.pumping {
		tx.pending = true
		tx.mu.Unlock()
		return
	}
	tx.pumping = true
	for {
		tx.pending = false
		tx.mu.Unlock()
		tx.step()
		tx.mu.Lock()
		if !tx.pending {
			tx.pumping = false
			tx.mu.Unlock()
			return
		}
	}
}

// step dispatches the head of the queue, or moves to releasing or rolling
// back. Every path ends in exactly one later call to advance or finish.
func (tx *Transaction) step() {
	tx.mu.Lock()
	if tx.err != nil {
		cause := tx.err
		skipped := tx.queue.drain()
		tx.state = StateRollingBack
		tx.mu.Unlock()
		tx.rollback(cause, skipped)
		return
	}
	e, ok := tx.queue.pop()
	if !ok {
		if hook := tx.beforeRelease; hook != nil {
			tx.beforeRelease = nil
			tx.mu.Unlock()
			hook(tx)
			tx.advance()
			return
		}
		tx.state = StateReleasing
		tx.mu.Unlock()
		tx.release()
		return
	}
	tx.mu.Unlock()

	if e.child != nil {
		e.child.begin()
		return
	}
	tx.dispatch(e)
}

func (tx *Transaction) dispatch(e *entry) {
	tx.log.WithField("sql", e.sql).Debug("executing")
	tx.db.bridge.Execute(tx.connection(), e.sql, e.args, func(res *types.NativeResult, err error) {
		tx.complete(e, res, err)
	})
}

// complete runs the statement's callbacks and decides whether the failure,
// if any, forces a rollback.
func (tx *Transaction) complete(e *entry, res *types.NativeResult, err error) {
	if err != nil {
		err = asKind(types.KindStatement, err)
	} else if e.onSuccess != nil {
		rs := types.NewResultSet(res)
		if cbErr := guard(func() error { return e.onSuccess(tx, rs) }); cbErr != nil {
			err = asKind(types.KindStatement, cbErr)
		}
	}

	if err == nil {
		tx.db.metrics.statementDone(tx.db.name, statementOK)
		tx.advance()
		return
	}

	decision := tx.decide(e.onError, err)
	log := tx.log.WithError(err).WithFields(logrus.Fields{"sql": e.sql, "decision": decision})
	if decision.ForcesRollback() {
		log.Debug("statement failed")
		tx.db.metrics.statementDone(tx.db.name, statementFailed)
		tx.fail(err)
	} else {
		log.Debug("statement failure recovered")
		tx.db.metrics.statementDone(tx.db.name, statementRecovered)
	}
	tx.advance()
}

// decide asks onError what to do about err. A missing handler, or one that
// panics, forces a rollback.
func (tx *Transaction) decide(onError StatementErrorCallback, err error) (d types.Decision) {
	if onError == nil {
		return types.DecisionUnspecified
	}
	defer func() {
		if r := recover(); r != nil {
			tx.log.WithField("panic", r).Warn("statement error callback panicked")
			d = types.DecisionRollback
		}
	}()
	return onError(tx, err)
}

func (tx *Transaction) release() {
	tx.log.WithField("state", StateReleasing).Debug("transition")
	tx.control(verbRelease, func(err error) {
		if err != nil {
			tx.log.WithError(err).Warn("release failed")
			tx.finish(err, outcomeFailed)
			return
		}
		if tx.opts.postflight != nil {
			if err := guard(tx.opts.postflight); err != nil {
				tx.log.WithError(err).Warn("postflight failed")
				tx.finish(asKind(types.KindStatement, err), outcomeFailed)
				return
			}
		}
		tx.finish(nil, outcomeCommitted)
	})
}

// rollback issues ROLLBACK TO and then RELEASE whatever the first one did,
// and reports cause. Their own failures are only logged.
func (tx *Transaction) rollback(cause error, skipped []*entry) {
	tx.log.WithError(cause).WithField("skipped", len(skipped)).Debug("rolling back")
	for _, e := range skipped {
		if e.child != nil {
			e.child.skip(cause)
		}
	}
	tx.control(verbRollbackTo, func(err error) {
		if err != nil {
			tx.log.WithError(err).Warn("rollback failed")
		}
		tx.control(verbRelease, func(err error) {
			if err != nil {
				tx.log.WithError(err).Warn("release after rollback failed")
			}
			tx.finish(cause, outcomeRolledBack)
		})
	})
}

// skip finishes a nested transaction that never started because its parent
// failed first.
func (tx *Transaction) skip(cause error) {
	tx.setState(StateDone)
	tx.db.metrics.transactionDone(tx.db.name, false, outcomeSkipped)
	tx.notify(&types.Error{Kind: types.KindStatement, Err: types.ErrSkipped, Message: cause.Error()})
}

// finish reports the outcome. A nested transaction hands control back to its
// parent and marks it failed when cause is set. A root transaction
// disconnects first and then lets the next task run.
func (tx *Transaction) finish(cause error, outcome string) {
	tx.db.metrics.transactionDone(tx.db.name, tx.IsRoot(), outcome)

	if tx.parent != nil {
		tx.setState(StateDone)
		tx.notify(cause)
		if cause != nil {
			tx.parent.fail(cause)
		}
		tx.parent.advance()
		return
	}

	tx.setState(StateDisconnecting)
	conn := tx.connection()
	tx.db.bridge.Disconnect(conn, func(err error) {
		if err != nil {
			tx.log.WithError(err).WithField("conn", conn.ID()).Warn("disconnect failed")
		}
		tx.setState(StateDone)
		tx.notify(cause)
		tx.db.tasks.runNext()
	})
}

// notify calls the error or success continuation. A panic in either is
// logged so that the queue keeps moving.
func (tx *Transaction) notify(cause error) {
	defer func() {
		if r := recover(); r != nil {
			tx.log.WithField("panic", r).Error("transaction continuation panicked")
		}
	}()
	if cause != nil {
		tx.log.WithError(cause).Debug("transaction failed")
		if tx.opts.onError != nil {
			tx.opts.onError(cause)
		}
		return
	}
	tx.log.Debug("transaction committed")
	if tx.opts.onSuccess != nil {
		tx.opts.onSuccess()
	}
}

// control issues a savepoint statement for this transaction.
func (tx *Transaction) control(verb string, done func(error)) {
	sql := verb + " " + tx.SavepointName()
	tx.log.WithField("sql", sql).Debug("executing")
	tx.db.bridge.Execute(tx.connection(), sql, []any{}, func(_ *types.NativeResult, err error) {
		done(asKind(types.KindStatement, err))
	})
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &types.Error{Kind: types.KindStatement, Message: fmt.Sprint(r), Err: types.ErrCallbackPanic}
		}
	}()
	return fn()
}
