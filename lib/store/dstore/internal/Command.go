package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dLock/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTMutate CommandType = iota // Apply deletions and additions to a single row.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTMutate:
		return "Mutate"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTMutate:
		return db.FeatureMutate, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type      CommandType
	Row       string
	Additions []db.Entry
	Deletions [][]byte
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := 1 + 4 + len(command.Row) + 4 + 4 // Type + RowLen + Row + AddCount + DelCount
	for _, e := range command.Additions {
		size += 4 + len(e.Column) + 4 + len(e.Value)
	}
	for _, c := range command.Deletions {
		size += 4 + len(c)
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for row length (big endian) followed by the row,
// 4 bytes for the number of additions, each as column length, column, value length, value,
// 4 bytes for the number of deletions, each as column length, column.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	off := 1
	off = putBytes(result, off, []byte(command.Row))

	binary.BigEndian.PutUint32(result[off:], uint32(len(command.Additions)))
	off += 4
	for _, e := range command.Additions {
		off = putBytes(result, off, e.Column)
		off = putBytes(result, off, e.Value)
	}

	binary.BigEndian.PutUint32(result[off:], uint32(len(command.Deletions)))
	off += 4
	for _, c := range command.Deletions {
		off = putBytes(result, off, c)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	// Minimum size: 1 (Type) + 4 (RowLen) + 4 (AddCount) + 4 (DelCount) = 13 bytes
	if len(data) < 13 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	r := reader{data: data, off: 1}

	row, err := r.bytes("row")
	if err != nil {
		return err
	}
	command.Row = string(row)

	n, err := r.count("additions")
	if err != nil {
		return err
	}
	command.Additions = nil
	if n > 0 {
		command.Additions = make([]db.Entry, n)
	}
	for i := range command.Additions {
		if command.Additions[i].Column, err = r.bytes("column"); err != nil {
			return err
		}
		if command.Additions[i].Value, err = r.bytes("value"); err != nil {
			return err
		}
	}

	n, err = r.count("deletions")
	if err != nil {
		return err
	}
	command.Deletions = nil
	if n > 0 {
		command.Deletions = make([][]byte, n)
	}
	for i := range command.Deletions {
		if command.Deletions[i], err = r.bytes("column"); err != nil {
			return err
		}
	}

	if r.off != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-r.off)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func putBytes(dst []byte, off int, b []byte) int {
	binary.BigEndian.PutUint32(dst[off:], uint32(len(b)))
	off += 4
	return off + copy(dst[off:], b)
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) count(what string) (int, error) {
	if len(r.data)-r.off < 4 {
		return 0, fmt.Errorf("data too short for %s count", what)
	}
	n := int(binary.BigEndian.Uint32(r.data[r.off:]))
	r.off += 4
	// every element needs at least a 4 byte length prefix
	if n > (len(r.data)-r.off)/4 {
		return 0, fmt.Errorf("invalid %s count %d", what, n)
	}
	return n, nil
}

// bytes returns a copy of the next length prefixed field.
func (r *reader) bytes(what string) ([]byte, error) {
	if len(r.data)-r.off < 4 {
		return nil, fmt.Errorf("data too short for %s length", what)
	}
	n := int(binary.BigEndian.Uint32(r.data[r.off:]))
	r.off += 4
	if len(r.data)-r.off < n {
		return nil, fmt.Errorf("data too short for %s of length %d", what, n)
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b, nil
}
