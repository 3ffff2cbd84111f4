package idauthority

import (
	"fmt"
)

// IDBlock is a half-open range [Start, End) of counter values granted to one
// caller. The IDs of the block carry the tag in their low TagBits bits.
type IDBlock struct {
	Namespace string
	Partition int
	Start     int64
	End       int64
	Tag       int
	TagBits   int
}

// NumIDs returns the number of IDs in the block.
func (b IDBlock) NumIDs() int64 {
	return b.End - b.Start
}

// ID returns the i-th ID of the block. It panics if i is out of range.
func (b IDBlock) ID(i int64) int64 {
	if i < 0 || i >= b.NumIDs() {
		panic(fmt.Sprintf("id index %d out of range [0,%d)", i, b.NumIDs()))
	}
	return ((b.Start + i) << b.TagBits) + int64(b.Tag)
}

// Overlaps reports whether the two blocks share an ID.
func (b IDBlock) Overlaps(o IDBlock) bool {
	if b.Namespace != o.Namespace || b.Partition != o.Partition || b.NumIDs() <= 0 || o.NumIDs() <= 0 {
		return false
	}
	if b.TagBits == o.TagBits && b.Tag != o.Tag {
		return false
	}
	lo, hi := b.ID(0), b.ID(b.NumIDs()-1)
	olo, ohi := o.ID(0), o.ID(o.NumIDs()-1)
	if hi < olo || ohi < lo {
		return false
	}
	if b.TagBits == o.TagBits {
		return true
	}
	for i := int64(0); i < b.NumIDs(); i++ {
		if id := b.ID(i); id >= olo && id <= ohi && o.contains(id) {
			return true
		}
	}
	return false
}

func (b IDBlock) contains(id int64) bool {
	if id&((1<<b.TagBits)-1) != int64(b.Tag) {
		return false
	}
	c := id >> b.TagBits
	return c >= b.Start && c < b.End
}

func (b IDBlock) String() string {
	if b.TagBits == 0 {
		return fmt.Sprintf("%s/%d[%d,%d)", b.Namespace, b.Partition, b.Start, b.End)
	}
	return fmt.Sprintf("%s/%d[%d,%d)#%d/%d", b.Namespace, b.Partition, b.Start, b.End, b.Tag, b.TagBits)
}
