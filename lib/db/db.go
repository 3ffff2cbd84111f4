package db

import (
	"bytes"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple Implementation = "maple"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureMutate   Feature = 1 << iota // Support for Mutate operations
	FeatureGetSlice                     // Support for GetSlice operations
	FeatureSave                         // Support for Save operations
	FeatureLoad                         // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureMutate:
		return "Mutate"
	case FeatureGetSlice:
		return "GetSlice"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// Entry is a single column of a row together with its value.
type Entry struct {
	Column []byte
	Value  []byte
}

// SliceQuery selects the columns of a row in the half-open range [Start, End).
// A nil End means the range is unbounded above. A positive Limit caps the
// number of returned entries.
type SliceQuery struct {
	Start []byte
	End   []byte
	Limit int
}

// Contains reports whether column lies inside the query range.
func (q SliceQuery) Contains(column []byte) bool {
	if bytes.Compare(column, q.Start) < 0 {
		return false
	}
	return q.End == nil || bytes.Compare(column, q.End) < 0
}

// ColumnQuery returns a query that selects exactly one column.
func ColumnQuery(column []byte) SliceQuery {
	end := make([]byte, len(column)+1)
	copy(end, column)
	return SliceQuery{Start: column, End: end, Limit: 1}
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KCVDB defines an interface for key-column-value database implementations.
// Every row holds an ordered set of columns. Columns are compared as raw bytes.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KCVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Mutate applies deletions and then additions to a single row as one atomic step.
	// Additions overwrite existing columns. A row without columns ceases to exist.
	// The writeIndex parameter is used as a logical timestamp for the mutation.
	Mutate(row string, additions []Entry, deletions [][]byte, writeIndex uint64)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// GetSlice returns the columns of row that match the query in ascending column order.
	// Returned slices are copies and safe to modify.
	GetSlice(row string, query SliceQuery) []Entry

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Returns true if the feature is supported, false otherwise.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database .
	WriteIdx() (index uint64)

	// Close closes the database.
	Close() (err error)
}
