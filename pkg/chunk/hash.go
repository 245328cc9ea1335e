package chunk

import (
	"github.com/daviszhen/pjoin/pkg/util"
)

// hash entry layout in the arena, preceding the tuple:
//
//	hash uint32 | next uint32 | rowid uint32 | pad uint32 | tuple...
//
// references point at the tuple so RefDatum works uniformly; the entry
// header sits at ref - hashEntryHead.
const hashEntryHead = 16

// NewHashChunk builds a hash-organized inner chunk. The bucket count is
// rounded up to a power of two. hashMin/hashMax default to the full range;
// SetHashRange narrows it for partitioned tables.
func NewHashChunk(ncols int, rowCap int) *Chunk {
	nslots := max(int(util.NextPowerOfTwo(uint64(rowCap*2))), 1024)
	util.AssertFunc(util.IsPowerOfTwo(uint64(nslots)))
	c := &Chunk{
		_format:   FormatHash,
		_ncols:    ncols,
		_arena:    util.GAlloc.Alloc(arenaBase + rowCap*(hashEntryHead+TupleSize(ncols))),
		_arenaPos: arenaBase,
		_buckets:  make([]uint32, nslots),
		_bitmask:  uint32(nslots - 1),
		_hashMin:  0,
		_hashMax:  ^uint32(0),
		_rowIndex: make([]uint32, 0, rowCap),
	}
	return c
}

func (c *Chunk) SetHashRange(hashMin, hashMax uint32) {
	util.AssertFunc(c._format == FormatHash)
	util.AssertFunc(hashMin <= hashMax)
	c._hashMin = hashMin
	c._hashMax = hashMax
}

func (c *Chunk) HashInRange(hash uint32) bool {
	return hash >= c._hashMin && hash <= c._hashMax
}

// InsertHash appends one row under the given hash value, chaining it in
// front of its bucket.
func (c *Chunk) InsertHash(hash uint32, values []Datum, isnull []bool) {
	util.AssertFunc(c._format == FormatHash)
	util.AssertFunc(len(values) == c._ncols)
	sz := hashEntryHead + TupleSize(len(values))
	util.AssertFunc(c._arenaPos+sz <= len(c._arena))
	head := c._arenaPos
	ref := uint32(head + hashEntryHead)
	slot := hash & c._bitmask
	ptr := util.BytesSliceToPointer(c._arena[head:])
	util.Store2[uint32](hash, ptr, 0)
	util.Store2[uint32](c._buckets[slot], ptr, 4)
	util.Store2[uint32](c._nitems, ptr, 8)
	encodeTuple(c._arena[head+hashEntryHead:head+sz], values, isnull)
	c._buckets[slot] = ref
	c._rowIndex = append(c._rowIndex, ref)
	c._arenaPos += sz
	c._nitems++
}

// HashFirstRef returns the first chained entry for a hash value, NullRef if
// the bucket is empty.
func (c *Chunk) HashFirstRef(hash uint32) uint32 {
	util.AssertFunc(c._format == FormatHash)
	return c._buckets[hash&c._bitmask]
}

// HashNextRef walks the collision chain.
func (c *Chunk) HashNextRef(ref uint32) uint32 {
	util.AssertFunc(ref != NullRef)
	return util.Load[uint32](util.BytesSliceToPointer(c._arena[ref-hashEntryHead+4:]))
}

func (c *Chunk) RefEntryHash(ref uint32) uint32 {
	util.AssertFunc(ref != NullRef)
	return util.Load[uint32](util.BytesSliceToPointer(c._arena[ref-hashEntryHead:]))
}

// RefRowID returns the 0-based build row id of a chained entry, used to
// index the outer-join map.
func (c *Chunk) RefRowID(ref uint32) uint32 {
	util.AssertFunc(ref != NullRef)
	return util.Load[uint32](util.BytesSliceToPointer(c._arena[ref-hashEntryHead+8:]))
}
