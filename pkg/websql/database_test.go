package websql

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/websql/pkg/types"
)

func TestOpenDatabase_Validation(t *testing.T) {
	tests := []struct {
		name    string
		dbName  string
		version string
		bridge  bool
		wantIs  error
	}{
		{name: "empty name", dbName: "", bridge: true, wantIs: types.ErrEmptyName},
		{name: "blank name", dbName: "   ", bridge: true, wantIs: types.ErrEmptyName},
		{name: "non-numeric version", dbName: "T", version: "1.0", bridge: true, wantIs: types.ErrInvalidVersion},
		{name: "negative version", dbName: "T", version: "-1", bridge: true, wantIs: types.ErrInvalidVersion},
		{name: "nil bridge", dbName: "T"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var bridge types.Bridge
			if tt.bridge {
				bridge = newFakeBridge(false)
			}
			db, err := OpenDatabase(context.Background(), bridge, tt.dbName, tt.version, "", 0, nil)
			require.Error(t, err)
			assert.Nil(t, db)
			assert.Equal(t, types.KindValidation, types.KindOf(err))
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestOpenDatabase_VersionNegotiation(t *testing.T) {
	tests := []struct {
		name        string
		stored      int
		requested   string
		wantVersion int
		wantSet     bool
		wantErr     error
	}{
		{name: "empty accepts stored", stored: 3, requested: "", wantVersion: 3},
		{name: "zero accepts stored", stored: 3, requested: "0", wantVersion: 3},
		{name: "equal", stored: 2, requested: "2", wantVersion: 2},
		{name: "unset is initialised", stored: 0, requested: "5", wantVersion: 5, wantSet: true},
		{name: "mismatch", stored: 2, requested: "1", wantErr: types.ErrVersionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBridge(true)
			b.version = tt.stored
			l, _ := quietLogger()

			created := 0
			db, err := OpenDatabase(testContext(t), b, "T", tt.requested, "Test", 0,
				func(*Database) { created++ }, WithLogger(l))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, types.KindVersionMismatch, types.KindOf(err))
				assert.Nil(t, db)
				assert.Zero(t, created)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, db.Version())
			assert.Equal(t, 1, created)
			assert.Equal(t, tt.wantSet, hasOp(b, "setVersion 5"))
		})
	}
}

func TestOpenDatabase_BridgeErrors(t *testing.T) {
	t.Run("get version", func(t *testing.T) {
		b := newFakeBridge(false)
		b.getVersionErr = errors.New("disk I/O error")
		_, err := OpenDatabase(testContext(t), b, "T", "", "", 0, nil, WithLogger(nullLogger()))
		assert.Equal(t, types.KindConnection, types.KindOf(err))
	})

	t.Run("set version", func(t *testing.T) {
		b := newFakeBridge(false)
		b.setVersionErr = errors.New("attempt to write a readonly database")
		_, err := OpenDatabase(testContext(t), b, "T", "4", "", 0, nil, WithLogger(nullLogger()))
		assert.Equal(t, types.KindConnection, types.KindOf(err))
	})

	t.Run("cancelled while negotiating", func(t *testing.T) {
		b := newFakeBridge(false)
		b.hangVersion = true
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := OpenDatabase(ctx, b, "T", "", "", 0, nil, WithLogger(nullLogger()))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestOpenDatabase_Accessors(t *testing.T) {
	db := openTestDB(t, newFakeBridge(false))
	assert.Equal(t, "T", db.Name())
	assert.Equal(t, "Test", db.DisplayName())
	assert.Equal(t, int64(1024), db.EstimatedSize())
	assert.Equal(t, 0, db.Version())
}

func TestDatabase_TransactionValidation(t *testing.T) {
	db := openTestDB(t, newFakeBridge(false))

	assert.ErrorIs(t, db.Transaction(nil), types.ErrNilCallback)
	assert.ErrorIs(t, db.ReadTransaction(nil), types.ErrNilCallback)
	assert.ErrorIs(t, db.ChangeVersion("0", "1", nil), types.ErrNilCallback)
	assert.ErrorIs(t, db.ChangeVersion("", "1", func(*Transaction) error { return nil }), types.ErrInvalidVersion)
	assert.ErrorIs(t, db.ChangeVersion("0", "x", func(*Transaction) error { return nil }), types.ErrInvalidVersion)
	assert.False(t, db.tasks.busy())
}

func TestChangeVersion_Success(t *testing.T) {
	forEachMode(t, func(t *testing.T, b *fakeBridge) {
		db := openTestDB(t, b)

		var seenDuring int
		err := db.RunChangeVersion(testContext(t), "0", "2", func(tx *Transaction) error {
			seenDuring = tx.Database().Version()
			return tx.ExecuteSQL("CREATE TABLE t(id)", nil, nil, nil)
		})

		require.NoError(t, err)
		assert.Equal(t, 0, seenDuring)
		assert.Equal(t, 2, db.Version())
		assert.Equal(t, []string{
			"connect",
			"SAVEPOINT trx1",
			"CREATE TABLE t(id)",
			"PRAGMA user_version=2",
			"RELEASE trx1",
			"disconnect",
		}, b.calls())
	})
}

func TestChangeVersion_Mismatch(t *testing.T) {
	b := newFakeBridge(false)
	b.version = 1
	l, _ := quietLogger()
	db, err := OpenDatabase(testContext(t), b, "T", "1", "", 0, nil, WithLogger(l))
	require.NoError(t, err)

	called := false
	err = db.RunChangeVersion(testContext(t), "0", "2", func(*Transaction) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, types.ErrVersionMismatch)
	assert.Equal(t, types.KindVersionMismatch, types.KindOf(err))
	assert.False(t, called)
	assert.Equal(t, 1, db.Version())
	assert.Equal(t, []string{
		"connect", "SAVEPOINT trx1", "ROLLBACK TO trx1", "RELEASE trx1", "disconnect",
	}, b.calls())
}

func TestChangeVersion_RollbackKeepsVersion(t *testing.T) {
	b := newFakeBridge(false)
	b.failSQL["ALTER TABLE t ADD COLUMN name"] = errors.New("no such table: t")
	db := openTestDB(t, b)

	err := db.RunChangeVersion(testContext(t), "0", "1", func(tx *Transaction) error {
		return tx.ExecuteSQL("ALTER TABLE t ADD COLUMN name", nil, nil, nil)
	})

	assert.Error(t, err)
	assert.Equal(t, 0, db.Version())
	assert.Equal(t, -1, b.indexOf("PRAGMA user_version=1", 0))
}

func TestChangeVersion_RunsCallerHooks(t *testing.T) {
	b := newFakeBridge(false)
	db := openTestDB(t, b)

	var order []string
	err := db.RunChangeVersion(testContext(t), "0", "3", func(*Transaction) error {
		order = append(order, "callback")
		return nil
	},
		Preflight(func() error { order = append(order, "preflight"); return nil }),
		Postflight(func() error {
			order = append(order, "postflight")
			assert.Equal(t, 3, db.Version())
			return nil
		}),
		ReadOnly(),
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"preflight", "callback", "postflight"}, order)
}

func TestRunTransaction_ContextCancelled(t *testing.T) {
	b := newFakeBridge(false)
	db := openTestDB(t, b)

	release := make(chan struct{})
	finished := make(chan error, 1)
	require.NoError(t, db.Transaction(func(*Transaction) error {
		<-release
		return nil
	}, OnSuccess(func() { finished <- nil }), OnError(func(err error) { finished <- err })))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := db.RunTransaction(ctx, func(*Transaction) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	assert.NoError(t, <-finished)
}

func TestParseVersion(t *testing.T) {
	n, err := parseVersion(" 7 ", false)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = parseVersion("", true)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = parseVersion("", false)
	assert.ErrorIs(t, err, types.ErrInvalidVersion)
	for _, v := range []string{"1.0", "1.5", "v2", "-1"} {
		_, err = parseVersion(v, true)
		assert.ErrorIs(t, err, types.ErrInvalidVersion, v)
	}
}

func hasOp(b *fakeBridge, op string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.ops {
		if o == op {
			return true
		}
	}
	return false
}
