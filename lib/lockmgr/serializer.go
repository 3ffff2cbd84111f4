package lockmgr

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// --------------------------------------------------------------------------
// Claim Codec
// --------------------------------------------------------------------------
//
// A lock on (row, column) is stored in its own row: a 4 byte big-endian length
// of row, followed by row and column. Every claim is one column of that row:
// 8 byte big-endian timestamp ticks followed by the rid of the writer. The value
// is empty. Because columns sort by bytes, the oldest claim sorts first.

const tsLen = 8

var (
	// claimSliceStart and claimSliceEnd bound every possible claim column.
	claimSliceStart = []byte{0x00}
	claimSliceEnd   = bytes.Repeat([]byte{0xFF}, tsLen+1)

	emptyValue = []byte{}
)

// lockRow returns the store row holding the claims on key.
func lockRow(key LockKey) string {
	b := make([]byte, 4, 4+len(key.Row)+len(key.Column))
	binary.BigEndian.PutUint32(b, uint32(len(key.Row)))
	b = append(b, key.Row...)
	b = append(b, key.Column...)
	return string(b)
}

// claimColumn encodes a claim written at ticks by rid.
func claimColumn(ticks int64, rid []byte) []byte {
	b := make([]byte, tsLen, tsLen+len(rid))
	binary.BigEndian.PutUint64(b, uint64(ticks))
	return append(b, rid...)
}

// parseClaimColumn decodes a claim column into its ticks and rid.
func parseClaimColumn(col []byte) (int64, []byte, error) {
	if len(col) < tsLen {
		return 0, nil, fmt.Errorf("claim column too short: %d bytes", len(col))
	}
	return int64(binary.BigEndian.Uint64(col[:tsLen])), col[tsLen:], nil
}
