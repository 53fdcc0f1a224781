package repl

import "time"

type Operation string

const (
	Insert Operation = "INSERT"
	Update Operation = "UPDATE"
)

// RowChange is one inserted or updated row of the watched table.
type RowChange struct {
	Operation Operation
	Id        int64

	// Confirmed reports whether the confirmation column is set in the new row.
	Confirmed bool

	// WasConfirmed is the same flag for the old row. It is nil unless the
	// table uses REPLICA IDENTITY FULL.
	WasConfirmed *bool

	Timestamp time.Time
	Xid       uint32
}

// BecameConfirmed is true for updates that set the confirmation column.
// Without the old row it assumes the column was just set.
func (c RowChange) BecameConfirmed() bool {
	if !c.Confirmed {
		return false
	}
	if c.Operation == Insert {
		return true
	}
	return c.WasConfirmed == nil || !*c.WasConfirmed
}
