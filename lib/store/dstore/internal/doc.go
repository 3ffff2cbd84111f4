// Package internal defines the messages exchanged between the dstore client
// and its state machine.
//
// A Command is a row mutation. It is the only message written to the RAFT
// log and has a compact binary encoding:
//
//	- 1 byte: command type (Mutate)
//	- u32 row length, row
//	- u32 number of additions, each as u32 column length, column,
//	  u32 value length, value
//	- u32 number of deletions, each as u32 column length, column
//
// All integers are big endian. Decoding rejects truncated input, counts that
// cannot fit the remaining bytes and trailing bytes. Decoded fields are copies
// and never alias the log entry.
//
// A Query (GetSlice, GetDBInfo) is passed to the local state machine as a Go
// value and is never encoded.
//
// The types are not safe for concurrent use.
package internal
