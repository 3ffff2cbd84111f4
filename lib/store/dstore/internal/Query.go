package internal

import "github.com/ValentinKolb/dLock/lib/db"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGetSlice  QueryType = iota // Retrieve a range of columns of a row.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGetSlice:
		return "GetSlice"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type  QueryType     // The type of Query to perform.
	Row   string        // The row for the Query (empty for GetDBInfo).
	Slice db.SliceQuery // The column range of a GetSlice query.
}
