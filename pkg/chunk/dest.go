package chunk

import (
	"github.com/daviszhen/pjoin/pkg/util"
)

// Destination chunks accumulate rows from many blocks at once. The row count
// and the byte usage of the variable area are packed into one atomic word so
// a whole-block reservation either lands completely or not at all. Tuples
// (row mode) and extra payloads (slot mode) grow from the arena end, row
// references from the front, the same two-sided layout the reservation
// formula assumes.

func packState(nitems, usage uint32) uint64 {
	return uint64(nitems)<<32 | uint64(usage)
}

func unpackState(state uint64) (nitems, usage uint32) {
	return uint32(state >> 32), uint32(state)
}

// NewDestRowChunk builds a row-mode destination chunk: at most rowCap rows
// and byteCap serialized tuple bytes.
func NewDestRowChunk(ncols int, rowCap int, byteCap int) *Chunk {
	c := &Chunk{
		_format:   FormatRow,
		_ncols:    ncols,
		_arena:    util.GAlloc.Alloc(arenaBase + byteCap),
		_rowIndex: make([]uint32, rowCap),
	}
	return c
}

// NewDestSlotChunk builds a slot-mode destination chunk: fixed value/null
// arrays plus extraCap bytes of variable-length extra area.
func NewDestSlotChunk(ncols int, rowCap int, extraCap int) *Chunk {
	c := &Chunk{
		_format:     FormatSlot,
		_ncols:      ncols,
		_arena:      util.GAlloc.Alloc(arenaBase + extraCap),
		_slotValues: make([]Datum, rowCap*ncols),
		_slotIsnull: make([]bool, rowCap*ncols),
	}
	return c
}

func (c *Chunk) destRowCap() uint32 {
	if c._format == FormatSlot {
		return uint32(len(c._slotValues) / c._ncols)
	}
	return uint32(len(c._rowIndex))
}

// TryReserve claims nrows row slots and nbytes of the variable area in one
// compare-and-swap. It returns the base row index and base usage on success;
// ok == false means the chunk cannot hold the request and nothing was
// reserved.
func (c *Chunk) TryReserve(nrows, nbytes uint32) (baseIndex, baseUsage uint32, ok bool) {
	byteCap := uint32(len(c._arena) - arenaBase)
	for {
		cur := c._state.Load()
		nitems, usage := unpackState(cur)
		newNitems := nitems + nrows
		newUsage := usage + nbytes
		if newNitems > c.destRowCap() || newUsage > byteCap {
			return 0, 0, false
		}
		if c._state.CompareAndSwap(cur, packState(newNitems, newUsage)) {
			return nitems, usage, true
		}
	}
}

// DestCard returns the number of rows reserved so far.
func (c *Chunk) DestCard() int {
	nitems, _ := unpackState(c._state.Load())
	return int(nitems)
}

func (c *Chunk) DestUsage() int {
	_, usage := unpackState(c._state.Load())
	return int(usage)
}

// WriteRowAt serializes one row-mode tuple. destOffset counts back from the
// arena end and must lie inside the reserved region.
func (c *Chunk) WriteRowAt(destIndex uint32, destOffset uint32, values []Datum, isnull []bool) {
	util.AssertFunc(c._format == FormatRow)
	util.AssertFunc(destIndex < c.destRowCap())
	pos := len(c._arena) - int(destOffset)
	util.AssertFunc(pos >= arenaBase)
	sz := TupleSize(len(values))
	encodeTuple(c._arena[pos:pos+sz], values, isnull)
	c._rowIndex[destIndex] = uint32(pos)
}

// DestRowRef returns the reference of an emitted row-mode row.
func (c *Chunk) DestRowRef(destIndex uint32) uint32 {
	util.AssertFunc(c._format == FormatRow)
	util.AssertFunc(int(destIndex) < c.DestCard())
	return c._rowIndex[destIndex]
}

// WriteSlotAt stores one slot-mode row: fixed-width values plus an optional
// extra payload copied to the arena end. Values flagged useExtra hold byte
// offsets relative to the start of the payload and are rebased onto the
// arena during the move.
func (c *Chunk) WriteSlotAt(destIndex uint32, destOffset uint32,
	values []Datum, isnull []bool, useExtra []bool, extra []byte) {
	util.AssertFunc(c._format == FormatSlot)
	util.AssertFunc(destIndex < c.destRowCap())
	base := int(destIndex) * c._ncols
	if len(extra) > 0 {
		pos := len(c._arena) - int(destOffset)
		util.AssertFunc(pos >= arenaBase)
		copy(c._arena[pos:pos+len(extra)], extra)
		for i := range values {
			if isnull[i] || !useExtra[i] {
				continue
			}
			util.AssertFunc(values[i] < uint64(len(extra)))
			values[i] += uint64(pos)
		}
	}
	copy(c._slotValues[base:base+c._ncols], values)
	copy(c._slotIsnull[base:base+c._ncols], isnull)
}

// SlotDatum reads back one slot-mode column value.
func (c *Chunk) SlotDatum(rowIndex int, col int) (Datum, bool) {
	util.AssertFunc(c._format == FormatSlot)
	util.AssertFunc(rowIndex < c.DestCard())
	base := rowIndex*c._ncols + col
	return c._slotValues[base], c._slotIsnull[base]
}

// SlotExtraBytes resolves an extra-area value written by WriteSlotAt.
func (c *Chunk) SlotExtraBytes(value Datum, length int) []byte {
	util.AssertFunc(c._format == FormatSlot)
	pos := int(value)
	util.AssertFunc(pos >= arenaBase && pos+length <= len(c._arena))
	return c._arena[pos : pos+length]
}
