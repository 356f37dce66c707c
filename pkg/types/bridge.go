package types

// Conn is an open native connection, handed out by Bridge.Connect. It is
// owned by the root transaction that received it and lent to every nested
// transaction below it. Only the owner passes it back to Disconnect.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string
}

// Bridge is the asynchronous boundary to the native store. Every method
// completes by calling done exactly once, either before returning or later
// from another goroutine. Callers must not assume which.
type Bridge interface {
	// Connect opens a connection to the named database.
	Connect(name string, done func(Conn, error))

	// Disconnect closes a connection obtained from Connect.
	Disconnect(conn Conn, done func(error))

	// Execute runs one parameterized statement. Arguments bind positionally
	// in slice order.
	Execute(conn Conn, sql string, args []any, done func(*NativeResult, error))

	// GetVersion reads the stored version of the named database; 0 means
	// the version was never set.
	GetVersion(name string, done func(int, error))

	// SetVersion stores the version of the named database.
	SetVersion(name string, version int, done func(error))
}

// Column is one key/value pair of a native row.
type Column struct {
	Key   string `json:"Key"`
	Value any    `json:"Value"`
}

// NativeRow is a row as the bridge returns it: ordered column pairs.
type NativeRow []Column

// NativeResult is the raw outcome of Bridge.Execute.
type NativeResult struct {
	Rows         []NativeRow `json:"rows"`
	RowsAffected int64       `json:"rowsAffected"`
	InsertID     int64       `json:"insertId"`
}
