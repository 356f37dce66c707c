package websql

// entry is one pending item of a transaction's statement queue: either a
// SQL statement or a nested transaction that runs as a single unit.
type entry struct {
	sql       string
	args      []any
	onSuccess StatementCallback
	onError   StatementErrorCallback

	child *Transaction
}

// statementQueue is the FIFO of pending entries owned by one transaction.
// The owning transaction's mutex guards it.
type statementQueue struct {
	entries []*entry
}

func (q *statementQueue) push(e *entry) {
	q.entries = append(q.entries, e)
}

func (q *statementQueue) pop() (*entry, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	e := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	return e, true
}

func (q *statementQueue) len() int {
	return len(q.entries)
}

// drain empties the queue and returns what was left in it.
func (q *statementQueue) drain() []*entry {
	rest := q.entries
	q.entries = nil
	return rest
}
