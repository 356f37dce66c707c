// Package sqlite implements types.Bridge on SQLite files through sqlx.
// Each database name maps to one file under Config.DataDir and one *sqlx.DB
// pool; a Connect pins a single pool connection for the life of a root
// transaction so that its savepoints all land on the same native handle.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ivpusic/grpool"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/websql/pkg/types"
)

// jobsPerWorker sizes the completion queue of the async pool.
const jobsPerWorker = 64

// Bridge implements types.Bridge. It is unusable until Attach succeeds and
// again after Detach.
type Bridge struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	pool     *grpool.Pool
	log      logrus.FieldLogger

	dbMu sync.Mutex
	dbs  map[string]*sqlx.DB
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger for connection and statement events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBridge creates a detached Bridge. Call Attach before use.
func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		log: logrus.StandardLogger(),
		dbs: make(map[string]*sqlx.DB),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.WithField("component", "sqlite")
	return b
}

// Attach validates config, creates DataDir and, with Config.Async, starts
// the completion pool. It returns types.ErrAlreadyAttached on a second call.
func (b *Bridge) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.DataDir == "" {
		config.DataDir = "."
	}
	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if config.Async {
		workers := config.GetWorkers()
		b.pool = grpool.NewPool(workers, workers*jobsPerWorker)
	}
	b.config = config
	b.attached = true
	b.log.WithFields(logrus.Fields{
		"driver":   config.Driver,
		"data_dir": config.DataDir,
		"async":    config.Async,
	}).Debug("bridge attached")
	return nil
}

// Detach waits for queued completions, stops the pool and closes every
// database. Pinned connections still open are closed with their pool.
// Detach is idempotent.
func (b *Bridge) Detach() error {
	b.mu.Lock()
	if !b.attached {
		b.mu.Unlock()
		return nil
	}
	b.attached = false
	pool := b.pool
	b.pool = nil
	b.mu.Unlock()

	if pool != nil {
		pool.WaitAll()
		pool.Release()
	}

	b.dbMu.Lock()
	defer b.dbMu.Unlock()
	var firstErr error
	for name, db := range b.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "close database %q", name)
		}
		delete(b.dbs, name)
	}
	b.log.Debug("bridge detached")
	return firstErr
}

// Config returns the configuration given to Attach.
func (b *Bridge) Config() types.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// dispatch runs fn inline, or on the pool when the bridge is async. A
// detached bridge calls fail instead.
func (b *Bridge) dispatch(fn func(), fail func(error)) {
	b.mu.RLock()
	if !b.attached {
		b.mu.RUnlock()
		fail(types.NewError(types.KindConnection, types.ErrBridgeDetached))
		return
	}
	pool := b.pool
	if pool == nil {
		b.mu.RUnlock()
		fn()
		return
	}
	// Counted before unlocking so that Detach waits for this job.
	pool.WaitCount(1)
	b.mu.RUnlock()
	pool.JobQueue <- func() {
		defer pool.JobDone()
		fn()
	}
}

// database returns the pool for name, opening it on first use.
func (b *Bridge) database(name string) (*sqlx.DB, error) {
	b.dbMu.Lock()
	defer b.dbMu.Unlock()

	if db, ok := b.dbs[name]; ok {
		return db, nil
	}
	cfg := b.Config()
	path := dataFile(cfg.DataDir, name)
	db, err := sqlx.Open(cfg.Driver, dsn(cfg.Driver, path, cfg.GetBusyTimeout()))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	b.dbs[name] = db
	b.log.WithFields(logrus.Fields{"db": name, "path": path}).Debug("database opened")
	return db, nil
}

// Connect pins a pool connection for name and applies the per-connection
// pragmas, retrying up to Config.ConnectRetries times.
func (b *Bridge) Connect(name string, done func(types.Conn, error)) {
	b.dispatch(func() {
		c, err := b.connect(name)
		if err != nil {
			done(nil, err)
			return
		}
		done(c, nil)
	}, func(err error) { done(nil, err) })
}

func (b *Bridge) connect(name string) (*conn, error) {
	db, err := b.database(name)
	if err != nil {
		return nil, nativeError(types.KindConnection, err, "connect %q", name)
	}
	retries := b.Config().GetConnectRetries()

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		c, err := openConn(context.Background(), db, name)
		if err == nil {
			b.log.WithFields(logrus.Fields{"db": name, "conn": c.id, "attempt": attempt}).Debug("connected")
			return c, nil
		}
		lastErr = err
		b.log.WithError(err).WithFields(logrus.Fields{"db": name, "attempt": attempt}).Warn("connect attempt failed")
	}
	return nil, nativeError(types.KindConnection, lastErr, "connect %q after %d attempts", name, retries)
}

// Disconnect returns the pinned connection to its pool.
func (b *Bridge) Disconnect(tc types.Conn, done func(error)) {
	c, err := asConn(tc)
	if err != nil {
		done(err)
		return
	}
	b.dispatch(func() {
		if err := c.close(); err != nil {
			done(nativeError(types.KindConnection, err, "disconnect %s", c.id))
			return
		}
		b.log.WithFields(logrus.Fields{"db": c.name, "conn": c.id}).Debug("disconnected")
		done(nil)
	}, done)
}

// Execute runs sql on the pinned connection.
func (b *Bridge) Execute(tc types.Conn, sql string, args []any, done func(*types.NativeResult, error)) {
	c, err := asConn(tc)
	if err != nil {
		done(nil, err)
		return
	}
	b.dispatch(func() {
		res, err := c.execute(context.Background(), sql, args)
		if err != nil {
			done(nil, nativeError(types.KindStatement, err, "execute %q", sql))
			return
		}
		done(res, nil)
	}, func(err error) { done(nil, err) })
}

// GetVersion reads PRAGMA user_version of name.
func (b *Bridge) GetVersion(name string, done func(int, error)) {
	b.dispatch(func() {
		v, err := b.getVersion(name)
		if err != nil {
			done(0, nativeError(types.KindConnection, err, "read version of %q", name))
			return
		}
		done(v, nil)
	}, func(err error) { done(0, err) })
}

func (b *Bridge) getVersion(name string) (int, error) {
	db, err := b.database(name)
	if err != nil {
		return 0, err
	}
	var v int
	if err := db.Get(&v, "PRAGMA user_version"); err != nil {
		return 0, err
	}
	return v, nil
}

// SetVersion writes PRAGMA user_version of name.
func (b *Bridge) SetVersion(name string, version int, done func(error)) {
	b.dispatch(func() {
		db, err := b.database(name)
		if err == nil {
			_, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
		}
		if err != nil {
			done(nativeError(types.KindConnection, err, "set version of %q to %d", name, version))
			return
		}
		done(nil)
	}, done)
}

var _ types.Bridge = (*Bridge)(nil)
