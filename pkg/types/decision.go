package types

// Decision is what a statement error handler returns to say whether the
// owning transaction may continue after the failure.
type Decision int

// Decision values. The zero value rolls back, as does a missing handler.
const (
	DecisionUnspecified Decision = iota
	DecisionContinue
	DecisionRollback
)

// ForcesRollback reports whether the transaction must roll back.
func (d Decision) ForcesRollback() bool {
	return d != DecisionContinue
}

func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "continue"
	case DecisionRollback:
		return "rollback"
	default:
		return "unspecified"
	}
}
