package websql

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/websql/pkg/types"
)

// Database is the handle returned by OpenDatabase. It owns the task queue
// that serializes root transactions, the transaction id counter used for
// savepoint names, and the integer version of the database.
type Database struct {
	name          string
	displayName   string
	estimatedSize int64

	bridge  types.Bridge
	log     logrus.FieldLogger
	metrics *Metrics

	mu      sync.RWMutex
	version int

	lastID atomic.Uint64
	tasks  taskQueue
}

// OpenDatabase validates its arguments, negotiates the version with the
// bridge and returns the Database.
//
// version "" or "0" accepts whatever version is stored. Otherwise the stored
// version must equal it, or be unset, in which case it is set to version.
// A mismatch returns an error matching types.ErrVersionMismatch and onCreate
// never fires. displayName and estimatedSize are kept for callers only.
// Versions are non-negative decimal integers; "1.5" or "v2" are rejected
// with types.ErrInvalidVersion rather than truncated.
func OpenDatabase(ctx context.Context, bridge types.Bridge, name, version, displayName string,
	estimatedSize int64, onCreate func(*Database), opts ...Option) (*Database, error) {
	if strings.TrimSpace(name) == "" {
		return nil, types.NewError(types.KindValidation, types.ErrEmptyName)
	}
	if bridge == nil {
		return nil, types.Errorf(types.KindValidation, "bridge must not be nil")
	}
	requested, err := parseVersion(version, true)
	if err != nil {
		return nil, err
	}

	db := &Database{
		name:          name,
		displayName:   displayName,
		estimatedSize: estimatedSize,
		bridge:        bridge,
		log:           logrus.StandardLogger(),
		version:       requested,
	}
	for _, opt := range opts {
		opt(db)
	}
	db.log = db.log.WithField("db", name)
	db.tasks.onDepth = func(n int) { db.metrics.setQueueDepth(db.name, n) }

	if err := db.negotiateVersion(ctx, requested); err != nil {
		db.log.WithError(err).Error("open failed")
		return nil, err
	}
	db.log.WithField("version", db.Version()).Debug("database opened")

	if onCreate != nil {
		onCreate(db)
	}
	return db, nil
}

// negotiateVersion reconciles the requested version with the stored one.
func (db *Database) negotiateVersion(ctx context.Context, requested int) error {
	type result struct {
		version int
		err     error
	}
	got := make(chan result, 1)
	db.bridge.GetVersion(db.name, func(v int, err error) {
		got <- result{v, err}
	})

	var actual int
	select {
	case r := <-got:
		if r.err != nil {
			return asKind(types.KindConnection, r.err)
		}
		actual = r.version
	case <-ctx.Done():
		return ctx.Err()
	}

	switch {
	case requested == 0 || requested == actual:
		db.setVersion(actual)
		return nil
	case actual == 0:
		set := make(chan error, 1)
		db.bridge.SetVersion(db.name, requested, func(err error) {
			set <- err
		})
		select {
		case err := <-set:
			if err != nil {
				return asKind(types.KindConnection, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		db.setVersion(requested)
		return nil
	default:
		return types.Errorf(types.KindVersionMismatch,
			"unable to open database, %w: %d does not match the current version of %d",
			types.ErrVersionMismatch, requested, actual)
	}
}

// Name returns the database name.
func (db *Database) Name() string { return db.name }

// DisplayName returns the display name given to OpenDatabase.
func (db *Database) DisplayName() string { return db.displayName }

// EstimatedSize returns the size hint given to OpenDatabase.
func (db *Database) EstimatedSize() int64 { return db.estimatedSize }

// Version returns the current database version; 0 means unset.
func (db *Database) Version() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.version
}

func (db *Database) setVersion(v int) {
	db.mu.Lock()
	db.version = v
	db.mu.Unlock()
}

// nextID returns a transaction id never handed out before by this database.
func (db *Database) nextID() uint64 {
	return db.lastID.Add(1)
}

// Transaction schedules a read-write transaction. It returns at once; cb runs
// later, after every root transaction scheduled before it has finished and
// disconnected. With the Parent option the transaction is nested instead and
// runs inside the parent's statement queue.
//
// The only errors returned are validation errors; everything else is
// reported through the OnError continuation.
func (db *Database) Transaction(cb TransactionCallback, opts ...TxOption) error {
	if cb == nil {
		return types.NewError(types.KindValidation, types.ErrNilCallback)
	}
	o := collectTxOptions(opts)
	if o.parent != nil && o.parent.db != db {
		return types.Errorf(types.KindValidation, "parent transaction belongs to database %q", o.parent.db.name)
	}

	tx := newTransaction(db, db.nextID(), cb, o)
	if tx.parent != nil {
		return tx.parent.enqueueChild(tx)
	}
	tx.log.Debug("scheduling transaction")
	db.tasks.schedule(tx.run)
	return nil
}

// ReadTransaction is Transaction with the ReadOnly option.
func (db *Database) ReadTransaction(cb TransactionCallback, opts ...TxOption) error {
	return db.Transaction(cb, append(opts, ReadOnly())...)
}

// ChangeVersion runs a read-write transaction that fails with
// types.ErrVersionMismatch before cb runs unless the current version equals
// oldVersion, and that stores newVersion with PRAGMA user_version on its own
// connection before releasing. Version reports newVersion once the
// transaction has committed. Nested under a read-only parent it returns
// types.ErrReadOnlyViolation and schedules nothing.
func (db *Database) ChangeVersion(oldVersion, newVersion string, cb TransactionCallback, opts ...TxOption) error {
	oldV, err := parseVersion(oldVersion, false)
	if err != nil {
		return err
	}
	newV, err := parseVersion(newVersion, false)
	if err != nil {
		return err
	}
	if cb == nil {
		return types.NewError(types.KindValidation, types.ErrNilCallback)
	}
	if o := collectTxOptions(opts); o.parent != nil && o.parent.readOnly {
		return types.Errorf(types.KindReadOnly, "%w: cannot change version inside read-only transaction %s",
			types.ErrReadOnlyViolation, o.parent.SavepointName())
	}
	return db.Transaction(cb, append(opts, db.changeVersionOption(oldV, newV))...)
}

// changeVersionOption wraps any caller preflight and postflight with the
// version check and the version update.
func (db *Database) changeVersionOption(oldV, newV int) TxOption {
	return func(o *txOptions) {
		userPre, userPost := o.preflight, o.postflight
		o.readOnly = false

		o.preflight = func() error {
			if cur := db.Version(); cur != oldV {
				return types.Errorf(types.KindVersionMismatch,
					"%w: first param to changeVersion is %d, current database version is %d",
					types.ErrVersionMismatch, oldV, cur)
			}
			if userPre != nil {
				return userPre()
			}
			return nil
		}
		withBeforeRelease(func(tx *Transaction) {
			stmt := fmt.Sprintf("PRAGMA user_version=%d", newV)
			if err := tx.ExecuteSQL(stmt, nil, nil, nil); err != nil {
				tx.fail(err)
			}
		})(o)
		o.postflight = func() error {
			db.setVersion(newV)
			db.log.WithField("version", newV).Debug("version changed")
			if userPost != nil {
				return userPost()
			}
			return nil
		}
	}
}

// RunTransaction schedules a transaction like Transaction and waits until it
// has finished, returning nil on commit or the error it was rolled back
// with. Cancelling ctx abandons the wait, not the transaction. It cannot be
// used with Parent: a nested transaction only runs after the parent's
// callback has returned.
func (db *Database) RunTransaction(ctx context.Context, cb TransactionCallback, opts ...TxOption) error {
	if o := collectTxOptions(opts); o.parent != nil {
		return types.Errorf(types.KindValidation, "cannot wait on a nested transaction")
	}
	done := make(chan error, 1)
	if err := db.Transaction(cb, append(opts, waitOption(done))...); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunReadTransaction is RunTransaction with the ReadOnly option.
func (db *Database) RunReadTransaction(ctx context.Context, cb TransactionCallback, opts ...TxOption) error {
	return db.RunTransaction(ctx, cb, append(opts, ReadOnly())...)
}

// RunChangeVersion is ChangeVersion that waits like RunTransaction.
func (db *Database) RunChangeVersion(ctx context.Context, oldVersion, newVersion string, cb TransactionCallback, opts ...TxOption) error {
	done := make(chan error, 1)
	if err := db.ChangeVersion(oldVersion, newVersion, cb, append(opts, waitOption(done))...); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitOption chains the caller's continuations with a send on done.
func waitOption(done chan<- error) TxOption {
	return func(o *txOptions) {
		userErr, userOK := o.onError, o.onSuccess
		o.onError = func(err error) {
			defer func() { done <- err }()
			if userErr != nil {
				userErr(err)
			}
		}
		o.onSuccess = func() {
			defer func() { done <- nil }()
			if userOK != nil {
				userOK()
			}
		}
	}
}

// parseVersion parses a version string. An empty string is 0 when allowEmpty
// is set and a validation error otherwise.
func parseVersion(v string, allowEmpty bool) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		if allowEmpty {
			return 0, nil
		}
		return 0, types.NewError(types.KindValidation, types.ErrInvalidVersion)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, types.Errorf(types.KindValidation, "%w: %q", types.ErrInvalidVersion, v)
	}
	return n, nil
}

// asKind wraps err in a *types.Error of the given kind unless it already
// carries one.
func asKind(kind types.ErrorKind, err error) error {
	if err == nil || types.KindOf(err) != 0 {
		return err
	}
	return types.NewError(kind, err)
}
