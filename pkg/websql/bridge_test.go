package websql

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/websql/pkg/types"
)

// fakeConn is the connection handle of fakeBridge.
type fakeConn struct{ id string }

func (c *fakeConn) ID() string { return c.id }

// fakeBridge records every call in order and completes either inside the
// call or from a fresh goroutine.
type fakeBridge struct {
	deferred bool

	mu       sync.Mutex
	ops      []string
	nextConn int
	open     map[string]bool

	version       int
	getVersionErr error
	setVersionErr error
	connectErr    error
	disconnectErr error
	failSQL       map[string]error
	results       map[string]*types.NativeResult

	// hangVersion leaves GetVersion uncompleted.
	hangVersion bool
}

func newFakeBridge(deferred bool) *fakeBridge {
	return &fakeBridge{
		deferred: deferred,
		open:     make(map[string]bool),
		failSQL:  make(map[string]error),
		results:  make(map[string]*types.NativeResult),
	}
}

func (b *fakeBridge) record(op string) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
}

func (b *fakeBridge) complete(fn func()) {
	if !b.deferred {
		fn()
		return
	}
	go func() {
		runtime.Gosched()
		fn()
	}()
}

func (b *fakeBridge) Connect(name string, done func(types.Conn, error)) {
	b.record("connect")
	b.mu.Lock()
	err := b.connectErr
	var conn *fakeConn
	if err == nil {
		b.nextConn++
		conn = &fakeConn{id: fmt.Sprintf("%s-%d", name, b.nextConn)}
		b.open[conn.id] = true
	}
	b.mu.Unlock()
	b.complete(func() {
		if err != nil {
			done(nil, err)
			return
		}
		done(conn, nil)
	})
}

func (b *fakeBridge) Disconnect(conn types.Conn, done func(error)) {
	b.record("disconnect")
	b.mu.Lock()
	delete(b.open, conn.ID())
	err := b.disconnectErr
	b.mu.Unlock()
	b.complete(func() { done(err) })
}

func (b *fakeBridge) Execute(conn types.Conn, sql string, args []any, done func(*types.NativeResult, error)) {
	b.record(sql)
	b.mu.Lock()
	live := conn != nil && b.open[conn.ID()]
	err := b.failSQL[sql]
	res := b.results[sql]
	b.mu.Unlock()
	if !live {
		err = types.NewError(types.KindConnection, types.ErrConnectionClosed)
	}
	if res == nil {
		res = &types.NativeResult{}
	}
	b.complete(func() {
		if err != nil {
			done(nil, err)
			return
		}
		done(res, nil)
	})
}

func (b *fakeBridge) GetVersion(name string, done func(int, error)) {
	b.record("getVersion")
	b.mu.Lock()
	v, err, hang := b.version, b.getVersionErr, b.hangVersion
	b.mu.Unlock()
	if hang {
		return
	}
	b.complete(func() { done(v, err) })
}

func (b *fakeBridge) SetVersion(name string, version int, done func(error)) {
	b.record(fmt.Sprintf("setVersion %d", version))
	b.mu.Lock()
	err := b.setVersionErr
	if err == nil {
		b.version = version
	}
	b.mu.Unlock()
	b.complete(func() { done(err) })
}

// calls returns the recorded operations, leaving out open-time version calls.
func (b *fakeBridge) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, op := range b.ops {
		if op == "getVersion" || strings.HasPrefix(op, "setVersion") {
			continue
		}
		out = append(out, op)
	}
	return out
}

func (b *fakeBridge) indexOf(op string, nth int) int {
	seen := 0
	for i, c := range b.calls() {
		if c == op {
			if seen == nth {
				return i
			}
			seen++
		}
	}
	return -1
}

// forEachMode runs fn against a synchronous and a deferred bridge.
func forEachMode(t *testing.T, fn func(t *testing.T, b *fakeBridge)) {
	t.Helper()
	for _, deferred := range []bool{false, true} {
		name := "sync"
		if deferred {
			name = "deferred"
		}
		t.Run(name, func(t *testing.T) {
			if deferred {
				defer leaktest.Check(t)()
			}
			fn(t, newFakeBridge(deferred))
		})
	}
}

// quietLogger returns a logger that records entries instead of printing them.
func quietLogger() (*logrus.Logger, *logtest.Hook) {
	l, hook := logtest.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return l, hook
}

func nullLogger() *logrus.Logger {
	l, _ := quietLogger()
	return l
}

func openTestDB(t *testing.T, b *fakeBridge, opts ...Option) *Database {
	t.Helper()
	l, _ := quietLogger()
	opts = append([]Option{WithLogger(l)}, opts...)
	db, err := OpenDatabase(context.Background(), b, "T", "", "Test", 1024, nil, opts...)
	require.NoError(t, err)
	return db
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// exec queues sql and marks the test failed on a validation error. Callbacks
// run off the test goroutine, so it must not use require.
func exec(t *testing.T, tx *Transaction, sql string) {
	t.Helper()
	assert.NoError(t, tx.ExecuteSQL(sql, nil, nil, nil))
}
