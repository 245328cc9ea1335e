// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chunk

import (
	"sync/atomic"

	"github.com/daviszhen/pjoin/pkg/util"
)

type Format uint8

const (
	FormatRow Format = iota
	FormatBlock
	FormatColumn
	FormatHash
	FormatSlot
)

// NullRef is the row reference of a missing row. Real references are byte
// offsets into the chunk arena (or index+1 for the column format), so zero
// never aliases a live row.
const NullRef uint32 = 0

// arena offset 0 is reserved so that no live tuple gets ref == NullRef
const arenaBase = 8

type Datum = uint64

// Chunk is a tagged row/column container. Source chunks are host-built and
// read-only to the engine. Destination chunks are mutated through the packed
// (nitems, usage) reservation state only.
type Chunk struct {
	_format Format
	_ncols  int

	_arena    []byte
	_arenaPos int

	//row & hash & dest(row): row -> tuple offset
	_rowIndex []uint32
	_nitems   uint32

	//dest: packed (nitems << 32 | usage)
	_state atomic.Uint64

	//hash
	_buckets []uint32
	_bitmask uint32
	_hashMin uint32
	_hashMax uint32

	//block
	_partSz int
	_pages  []blockPage

	//column
	_cols []columnData

	//slot
	_slotValues []Datum
	_slotIsnull []bool
}

type columnData struct {
	values []Datum
	isnull []bool
}

func (c *Chunk) Format() Format {
	return c._format
}

func (c *Chunk) ColumnCount() int {
	return c._ncols
}

func (c *Chunk) Card() int {
	return int(c._nitems)
}

// tuple layout: ncols uint16 | isnull [ncols]byte | pad to 8 | values [ncols]x8
func TupleSize(ncols int) int {
	return util.AlignValue8(2+ncols) + 8*ncols
}

func encodeTuple(dst []byte, values []Datum, isnull []bool) {
	ncols := len(values)
	util.Store[uint16](uint16(ncols), util.BytesSliceToPointer(dst))
	for i := 0; i < ncols; i++ {
		b := byte(0)
		if isnull[i] {
			b = 1
		}
		dst[2+i] = b
	}
	base := util.AlignValue8(2 + ncols)
	vals := util.ToSlice[Datum](dst[base:], 8)
	copy(vals[:ncols], values)
}

// EncodeTuple serializes one row with the engine's fixed-width layout.
func EncodeTuple(values []Datum, isnull []bool) []byte {
	buf := make([]byte, TupleSize(len(values)))
	encodeTuple(buf, values, isnull)
	return buf
}

func (c *Chunk) tupleAt(offset uint32) ([]byte, int) {
	util.AssertFunc(offset >= arenaBase && int(offset) < len(c._arena))
	buf := c._arena[offset:]
	ncols := int(util.Load[uint16](util.BytesSliceToPointer(buf)))
	return buf, ncols
}

// RefDatum reads one column of the row addressed by ref. The second result
// is the null flag. ref must not be NullRef.
func (c *Chunk) RefDatum(ref uint32, col int) (Datum, bool) {
	util.AssertFunc(ref != NullRef)
	if c._format == FormatColumn {
		cd := &c._cols[col]
		idx := int(ref - 1)
		return cd.values[idx], cd.isnull[idx]
	}
	buf, ncols := c.tupleAt(ref)
	util.AssertFunc(col < ncols)
	if buf[2+col] != 0 {
		return 0, true
	}
	base := util.AlignValue8(2 + ncols)
	vals := util.ToSlice[Datum](buf[base:], 8)
	return vals[col], false
}

func (c *Chunk) appendTuple(values []Datum, isnull []bool) uint32 {
	sz := TupleSize(len(values))
	util.AssertFunc(c._arenaPos+sz <= len(c._arena))
	offset := uint32(c._arenaPos)
	encodeTuple(c._arena[c._arenaPos:c._arenaPos+sz], values, isnull)
	c._arenaPos += sz
	return offset
}

// NewRowChunk builds an empty plain-row source chunk with room for rowCap
// rows of ncols columns.
func NewRowChunk(ncols int, rowCap int) *Chunk {
	c := &Chunk{
		_format:   FormatRow,
		_ncols:    ncols,
		_arena:    util.GAlloc.Alloc(arenaBase + rowCap*TupleSize(ncols)),
		_arenaPos: arenaBase,
		_rowIndex: make([]uint32, 0, rowCap),
	}
	return c
}

func (c *Chunk) AppendRow(values []Datum, isnull []bool) {
	util.AssertFunc(c._format == FormatRow)
	util.AssertFunc(len(values) == c._ncols)
	c._rowIndex = append(c._rowIndex, c.appendTuple(values, isnull))
	c._nitems++
}

// RowRef maps a row index to its reference, NullRef if out of range. Valid
// for the row, hash and column formats (block rows go through page/line
// addressing instead).
func (c *Chunk) RowRef(rowIndex uint32) uint32 {
	util.AssertFunc(c._format != FormatBlock)
	if rowIndex >= c._nitems {
		return NullRef
	}
	if c._format == FormatColumn {
		return rowIndex + 1
	}
	return c._rowIndex[rowIndex]
}

// NewColumnChunk builds a columnar source chunk. References are index+1.
func NewColumnChunk(ncols int, rowCap int) *Chunk {
	c := &Chunk{
		_format: FormatColumn,
		_ncols:  ncols,
		_cols:   make([]columnData, ncols),
	}
	for i := range c._cols {
		c._cols[i].values = make([]Datum, 0, rowCap)
		c._cols[i].isnull = make([]bool, 0, rowCap)
	}
	return c
}

func (c *Chunk) AppendColumnRow(values []Datum, isnull []bool) {
	util.AssertFunc(c._format == FormatColumn)
	util.AssertFunc(len(values) == c._ncols)
	for i := range c._cols {
		c._cols[i].values = append(c._cols[i].values, values[i])
		c._cols[i].isnull = append(c._cols[i].isnull, isnull[i])
	}
	c._nitems++
}
