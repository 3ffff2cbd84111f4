package maple

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dLock/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum     = "MAPLECV\x00" // File format identifier
	mapleVersion = 1             // Database version
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements a sharded key-column-value database
type mapleImpl struct {
	numShards int               // Number of shards
	seed      uint64            // Seed for hash function
	shards    []*internal.Shard // Array of shards
	currIndex atomic.Uint64     // Current logical timestamp
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = auto)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards: runtime.NumCPU(), // Auto-determine based on CPU count
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) db.KCVDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}

	newDB := &mapleImpl{
		numShards: opts.NumShards,
		seed:      util.GenerateSeed(),
		shards:    newShards(opts.NumShards),
	}
	newDB.currIndex.Store(0)

	return newDB
}

func newShards(n int) []*internal.Shard {
	shards := make([]*internal.Shard, n)
	for i := 0; i < n; i++ {
		shards[i] = internal.NewShard()
	}
	return shards
}

// shardFor returns the shard responsible for a row
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) shardFor(row string) *internal.Shard {
	return internal.GetShard(util.HashString(row, maple.seed), maple.shards)
}

// --------------------------------------------------------------------------
// Core KCVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Mutate applies deletions and additions to a row as one atomic step.
// Readers observe either the row before or after the whole mutation.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// Mutations of the same row are serialized by the shard map.
func (maple *mapleImpl) Mutate(row string, additions []db.Entry, deletions [][]byte, writeIndex uint64) {

	// update the current index
	maple.SetWriteIdx(writeIndex)

	if len(additions) == 0 && len(deletions) == 0 {
		return
	}

	cells := make([]internal.Cell, len(additions))
	for i, add := range additions {
		cells[i] = internal.Cell{Column: add.Column, Value: add.Value, Index: writeIndex}
	}

	shard := maple.shardFor(row)
	shard.Rows.Compute(row, func(old *internal.Row, loaded bool) (*internal.Row, bool) {
		if !loaded {
			old = &internal.Row{}
		}
		updated := old.Apply(cells, deletions)

		// empty rows are removed
		return updated, len(updated.Cells) == 0
	})
}

// --------------------------------------------------------------------------
// Core KCVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// GetSlice returns the columns of a row inside [query.Start, query.End).
// The returned entries are copies of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) GetSlice(row string, query db.SliceQuery) []db.Entry {
	r, ok := maple.shardFor(row).Rows.Load(row)
	if !ok {
		return nil
	}

	var result []db.Entry
	for i := r.Search(query.Start); i < len(r.Cells); i++ {
		cell := r.Cells[i]
		if query.End != nil && bytes.Compare(cell.Column, query.End) >= 0 {
			break
		}
		result = append(result, db.Entry{
			Column: append([]byte(nil), cell.Column...),
			Value:  append([]byte{}, cell.Value...),
		})
		if query.Limit > 0 && len(result) >= query.Limit {
			break
		}
	}
	return result
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer
// Concurrent reading and writing is allowed during Save operation
//
// Thread-safety: This function allows concurrent operations with all other functions
// except Load. Rows are immutable, so each row is written as a consistent snapshot,
// but the database as a whole is a fuzzy snapshot.
func (maple *mapleImpl) Save(w io.Writer) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type rowToSave struct {
		key string
		row *internal.Row
	}

	var rows []rowToSave
	for _, shard := range maple.shards {
		shard.Rows.Range(func(key string, row *internal.Row) bool {
			rows = append(rows, rowToSave{key, row})
			return true
		})
	}

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	// Write maple version
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}

	// Write seed
	if err := binary.Write(bw, binary.LittleEndian, maple.seed); err != nil {
		return err
	}

	// Write total row count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(rows))); err != nil {
		return err
	}

	for _, item := range rows {
		if err := writeBytes(bw, []byte(item.key)); err != nil {
			return err
		}

		// Write cell count
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.row.Cells))); err != nil {
			return err
		}

		for _, cell := range item.row.Cells {
			if err := binary.Write(bw, binary.LittleEndian, cell.Index); err != nil {
				return err
			}
			if err := writeBytes(bw, cell.Column); err != nil {
				return err
			}
			if err := writeBytes(bw, cell.Value); err != nil {
				return err
			}
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load restores a database from the reader
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {

	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}

	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}

	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	// Read seed
	var seed uint64
	if err := binary.Read(br, binary.LittleEndian, &seed); err != nil {
		return err
	}

	// Recreate empty shards with the loaded seed
	maple.shards = newShards(maple.numShards)
	maple.seed = seed
	maple.currIndex.Store(0)

	// Read row count
	var rowCount uint64
	if err := binary.Read(br, binary.LittleEndian, &rowCount); err != nil {
		return err
	}

	// Track the highest index seen during load
	var maxIndex uint64 = 0

	for i := uint64(0); i < rowCount; i++ {
		key, err := readBytes(br)
		if err != nil {
			return err
		}

		var cellCount uint32
		if err := binary.Read(br, binary.LittleEndian, &cellCount); err != nil {
			return err
		}

		cells := make([]internal.Cell, 0, cellCount)
		for j := uint32(0); j < cellCount; j++ {
			var cell internal.Cell
			if err := binary.Read(br, binary.LittleEndian, &cell.Index); err != nil {
				return err
			}
			if cell.Column, err = readBytes(br); err != nil {
				return err
			}
			if cell.Value, err = readBytes(br); err != nil {
				return err
			}
			if cell.Index > maxIndex {
				maxIndex = cell.Index
			}
			cells = append(cells, cell)
		}

		if len(cells) > 0 {
			maple.shardFor(string(key)).Rows.Store(string(key), &internal.Row{Cells: cells})
		}
	}

	// Update current index to the highest seen during load
	maple.SetWriteIdx(maxIndex)

	return nil
}

// writeBytes writes a length prefixed byte slice
func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readBytes reads a length prefixed byte slice
func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// --------------------------------------------------------------------------
// KCVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {

	histogram := util.NewCellSizeHistogram()
	samplesPerShard := 100

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		cellCount  int
		shardSizes = make([]float64, len(maple.shards))
	)
	wg.Add(len(maple.shards))

	// concurrently collect samples from all shards
	for shardIndex, shard := range maple.shards {
		go func(i int, s *internal.Shard) {
			defer wg.Done()
			count, cells := 0, 0
			s.Rows.Range(func(_ string, row *internal.Row) bool {
				for _, cell := range row.Cells {
					histogram.AddSample(len(cell.Column) + len(cell.Value))
				}
				cells += len(row.Cells)
				count++
				return count < samplesPerShard
			})

			mu.Lock()
			defer mu.Unlock()
			cellCount += cells
			shardSizes[i] = float64(s.Rows.Size())
		}(shardIndex, shard)
	}
	wg.Wait()

	// 8 bytes index plus two length prefixes per cell
	cellOverhead := 16
	sizeBytes := (histogram.MedianEstimate()*60+histogram.AverageSize()*40)/100 + cellOverhead

	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		SampledCells      int                    `json:"sampled_cells"`
		Info              string                 `json:"info"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		SampledCells:      cellCount,
		Info:              "All values (including SizeBytes) are estimates and may vary depending on the database state.",
	}

	return db.DatabaseInfo{
		SizeBytes:         sizeBytes,
		DbType:            db.ImplMaple,
		SupportedFeatures: []db.Feature{db.FeatureMutate, db.FeatureGetSlice, db.FeatureSave, db.FeatureLoad},
		Metadata:          meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KCVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureMutate |
		db.FeatureGetSlice |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close is a no-op, the maple engine holds no background resources
func (maple *mapleImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index
// It only updates if the new index is greater than the current one
//
// Thread-safety: This method is thread-safe and can be called concurrently.
// It uses atomic operations to ensure that the index only increases.
func (maple *mapleImpl) SetWriteIdx(newIdx uint64) {
	for {
		currIdx := maple.currIndex.Load()
		if newIdx <= currIdx {
			return
		}
		if maple.currIndex.CompareAndSwap(currIdx, newIdx) {
			return
		}
	}
}

// WriteIdx returns the current index of the database
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}
