// Package websql implements Web-SQL style transactions over an asynchronous
// types.Bridge to a single-writer SQLite store.
//
// A Database serializes its root transactions through a FIFO task queue:
// each root transaction connects, issues SAVEPOINT trx<id>, runs the user
// callback, drains its statement queue one statement at a time, then either
// RELEASEs the savepoint or rolls back to it, and disconnects before the
// next root transaction starts. Nested transactions borrow the parent's
// connection and run as a single entry of the parent's statement queue.
//
// Example:
//
//	bridge, _ := sqlite.NewBridge(types.Config{Driver: types.DriverModernC, DataDir: dir})
//	db, err := websql.OpenDatabase(ctx, bridge, "notes", "", "Notes", 0, nil)
//	if err != nil {
//	    return err
//	}
//	err = db.RunTransaction(ctx, func(tx *websql.Transaction) error {
//	    return tx.ExecuteSQL("INSERT INTO notes(body) VALUES (?)", []any{"hi"}, nil, nil)
//	})
package websql
