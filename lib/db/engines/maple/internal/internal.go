package internal

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ValentinKolb/dLock/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Cell Type (column-value pair with metadata)
// --------------------------------------------------------------------------

// Cell stores a column of a row with metadata
type Cell struct {
	Column []byte
	Value  []byte
	Index  uint64 // write index when this cell was created/updated
}

func (c Cell) String() string {
	return fmt.Sprintf("Cell{Column: %x, Index: %d, ValueLen: %d}", c.Column, c.Index, len(c.Value))
}

// --------------------------------------------------------------------------
// Row Type (immutable, sorted list of cells)
// --------------------------------------------------------------------------

// Row is an immutable snapshot of all cells of a row sorted by column.
// Mutations never change a Row in place, they build a new one (copy-on-write),
// so readers can use a loaded Row without locking.
type Row struct {
	Cells []Cell
}

// Search returns the position of the first cell whose column is >= column.
func (r *Row) Search(column []byte) int {
	return sort.Search(len(r.Cells), func(i int) bool {
		return bytes.Compare(r.Cells[i].Column, column) >= 0
	})
}

// Apply returns a new row with deletions removed and additions inserted or replaced.
// Deletions are applied before additions. The values of additions are copied.
func (r *Row) Apply(additions []Cell, deletions [][]byte) *Row {
	cells := make([]Cell, 0, len(r.Cells)+len(additions))
	cells = append(cells, r.Cells...)

	for _, col := range deletions {
		i := sort.Search(len(cells), func(i int) bool {
			return bytes.Compare(cells[i].Column, col) >= 0
		})
		if i < len(cells) && bytes.Equal(cells[i].Column, col) {
			cells = append(cells[:i], cells[i+1:]...)
		}
	}

	for _, add := range additions {
		cell := Cell{
			Column: append([]byte(nil), add.Column...),
			Value:  append([]byte{}, add.Value...),
			Index:  add.Index,
		}
		i := sort.Search(len(cells), func(i int) bool {
			return bytes.Compare(cells[i].Column, cell.Column) >= 0
		})
		if i < len(cells) && bytes.Equal(cells[i].Column, cell.Column) {
			cells[i] = cell
			continue
		}
		cells = append(cells, Cell{})
		copy(cells[i+1:], cells[i:])
		cells[i] = cell
	}

	return &Row{Cells: cells}
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database.
// Each shard owns the rows whose keys hash to it.
type Shard struct {
	Rows *xsync.MapOf[string, *Row]
}

// NewShard creates a new, empty shard
func NewShard() *Shard {
	return &Shard{
		Rows: xsync.NewMapOf[string, *Row](),
	}
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
