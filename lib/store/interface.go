package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dLock/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KCVDB

// Consistency selects the guarantee a single read or write asks the backend for.
type Consistency uint8

const (
	// ConsistencyDefault is whatever the backend offers by default (possibly stale reads).
	ConsistencyDefault Consistency = iota
	// ConsistencyKey requests key-consistent operations across the whole cluster:
	// a read observes every write to the same key that completed before it.
	ConsistencyKey
	// ConsistencyLocalKey requests key-consistent operations only within the local
	// replica or datacenter. Writers in other datacenters may not be observed.
	ConsistencyLocalKey
)

func (c Consistency) String() string {
	switch c {
	case ConsistencyDefault:
		return "default"
	case ConsistencyKey:
		return "key-consistent"
	case ConsistencyLocalKey:
		return "local-key-consistent"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// Features describes the guarantees a store can give.
type Features struct {
	// Distributed is true if more than one process or node holds the data.
	Distributed bool
	// KeyConsistent is true if ConsistencyKey is honoured.
	KeyConsistent bool
	// LocalKeyConsistent is true if ConsistencyLocalKey is honoured.
	LocalKeyConsistent bool
}

// IStore is the generic interface for interacting with a key-column-value store.
// Write operations return only an error (nil on success),
// while read operations return the requested data along with an error (nil on success).
// Errors produced by the backend are of type *Error.
type IStore interface {
	// Mutate applies deletions and additions to a single row.
	// Additions overwrite existing columns.
	Mutate(ctx context.Context, row string, additions []db.Entry, deletions [][]byte, level Consistency) (err error)

	// GetSlice returns the columns of row inside [q.Start, q.End) in ascending byte order.
	GetSlice(ctx context.Context, row string, q db.SliceQuery, level Consistency) (entries []db.Entry, err error)

	// Features returns the guarantees of the store.
	Features() Features

	// Close releases the resources held by the store.
	Close() (err error)
}

// IInfoStore is implemented by stores backed by a db.KCVDB engine that can
// describe it. The redis and SQL backends do not implement it.
type IInfoStore interface {
	IStore

	// GetDBInfo returns metadata about the engine underlying the store.
	GetDBInfo(ctx context.Context) (info db.DatabaseInfo, err error)
}

// --------------------------------------------------------------------------
// Convenience operations
// --------------------------------------------------------------------------

// Write stores a single column.
func Write(ctx context.Context, s IStore, row string, column, value []byte, level Consistency) error {
	return s.Mutate(ctx, row, []db.Entry{{Column: column, Value: value}}, nil, level)
}

// Delete removes a single column.
func Delete(ctx context.Context, s IStore, row string, column []byte, level Consistency) error {
	return s.Mutate(ctx, row, nil, [][]byte{column}, level)
}

// Read returns the columns of row inside [start, end).
func Read(ctx context.Context, s IStore, row string, start, end []byte, level Consistency) ([]db.Entry, error) {
	return s.GetSlice(ctx, row, db.SliceQuery{Start: start, End: end}, level)
}

// ReadColumn returns the value of a single column.
// The boolean return value indicates whether the column exists.
func ReadColumn(ctx context.Context, s IStore, row string, column []byte, level Consistency) ([]byte, bool, error) {
	entries, err := s.GetSlice(ctx, row, db.ColumnQuery(column), level)
	if err != nil || len(entries) == 0 {
		return nil, false, err
	}
	return entries[0].Value, true, nil
}

// GetDBInfo returns the engine metadata of s, or an error with
// RetCUnsupportedOperation if s cannot describe its engine.
func GetDBInfo(ctx context.Context, s IStore) (db.DatabaseInfo, error) {
	is, ok := s.(IInfoStore)
	if !ok {
		return db.DatabaseInfo{}, Errorf(RetCUnsupportedOperation, "%T does not expose engine information", s)
	}
	return is.GetDBInfo(ctx)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new store error with a formatted message.
func Errorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// IsTemporary reports whether err is a store error that may succeed when retried.
func IsTemporary(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == RetCTemporary
}

// IsUnsupported reports whether err is a store error with RetCUnsupportedOperation.
func IsUnsupported(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == RetCUnsupportedOperation
}

// IsPermanent reports whether err is a store error that fails the same way
// when retried, e.g. an internal error or an unsupported operation.
func IsPermanent(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code != RetCTemporary && se.Code != RetCSuccess
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCTemporary                           // 4: Backend temporarily unavailable (timeout, busy, connection loss).
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCTemporary:
		return "Temporary"
	default:
		return "Unknown"
	}
}
