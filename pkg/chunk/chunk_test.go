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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowChunkRoundTrip(t *testing.T) {
	c := NewRowChunk(3, 4)
	c.AppendRow([]Datum{1, 2, 3}, []bool{false, false, false})
	c.AppendRow([]Datum{0, 5, 0}, []bool{true, false, true})
	require.Equal(t, 2, c.Card())
	require.Equal(t, FormatRow, c.Format())

	ref := c.RowRef(0)
	require.NotEqual(t, NullRef, ref)
	v, isnull := c.RefDatum(ref, 0)
	assert.Equal(t, Datum(1), v)
	assert.False(t, isnull)

	ref = c.RowRef(1)
	v, isnull = c.RefDatum(ref, 0)
	assert.True(t, isnull)
	assert.Equal(t, Datum(0), v)
	v, isnull = c.RefDatum(ref, 1)
	assert.False(t, isnull)
	assert.Equal(t, Datum(5), v)

	assert.Equal(t, NullRef, c.RowRef(2))
}

func TestColumnChunkRefs(t *testing.T) {
	c := NewColumnChunk(2, 3)
	c.AppendColumnRow([]Datum{10, 20}, []bool{false, false})
	c.AppendColumnRow([]Datum{0, 40}, []bool{true, false})

	//column refs are index+1, so row 0 never aliases NullRef
	require.Equal(t, uint32(1), c.RowRef(0))
	v, isnull := c.RefDatum(c.RowRef(1), 0)
	assert.True(t, isnull)
	v, isnull = c.RefDatum(c.RowRef(1), 1)
	assert.False(t, isnull)
	assert.Equal(t, Datum(40), v)
}

func TestHashChainWalk(t *testing.T) {
	c := NewHashChunk(2, 8)
	//three rows under the same hash value, one under another
	c.InsertHash(77, []Datum{1, 100}, []bool{false, false})
	c.InsertHash(77, []Datum{1, 101}, []bool{false, false})
	c.InsertHash(99, []Datum{2, 200}, []bool{false, false})
	c.InsertHash(77, []Datum{1, 102}, []bool{false, false})

	var got []Datum
	var ids []uint32
	for ref := c.HashFirstRef(77); ref != NullRef; ref = c.HashNextRef(ref) {
		require.Equal(t, uint32(77), c.RefEntryHash(ref))
		v, isnull := c.RefDatum(ref, 1)
		require.False(t, isnull)
		got = append(got, v)
		ids = append(ids, c.RefRowID(ref))
	}
	//chained in front of the bucket, newest first
	assert.Equal(t, []Datum{102, 101, 100}, got)
	assert.Equal(t, []uint32{3, 1, 0}, ids)

	ref := c.HashFirstRef(99)
	require.NotEqual(t, NullRef, ref)
	assert.Equal(t, uint32(2), c.RefRowID(ref))
}

func TestHashRange(t *testing.T) {
	c := NewHashChunk(1, 4)
	assert.True(t, c.HashInRange(0))
	assert.True(t, c.HashInRange(^uint32(0)))
	c.SetHashRange(100, 200)
	assert.False(t, c.HashInRange(99))
	assert.True(t, c.HashInRange(100))
	assert.True(t, c.HashInRange(200))
	assert.False(t, c.HashInRange(201))
}

func TestBlockPagesWithDeadLines(t *testing.T) {
	c := NewBlockChunk(2, 4, 2, 5)
	c.AppendPage(
		[][]Datum{{1, 10}, nil, {3, 30}},
		[][]bool{{false, false}, nil, {false, false}})
	c.AppendPage(
		[][]Datum{{4, 40}, {5, 50}},
		[][]bool{{false, false}, {false, false}})

	//block cardinality counts pages
	require.Equal(t, 2, c.Card())
	require.Equal(t, 4, c.PartSize())
	require.Equal(t, uint32(3), c.PageNumLines(0))
	require.Equal(t, uint32(2), c.PageNumLines(1))

	assert.Equal(t, NullRef, c.PageLineRef(0, 2))
	ref := c.PageLineRef(0, 3)
	require.NotEqual(t, NullRef, ref)
	v, isnull := c.RefDatum(ref, 1)
	require.False(t, isnull)
	assert.Equal(t, Datum(30), v)

	ref = c.PageLineRef(1, 1)
	v, _ = c.RefDatum(ref, 0)
	assert.Equal(t, Datum(4), v)
}

func TestDestReserveBounds(t *testing.T) {
	rowSz := uint32(TupleSize(2))
	c := NewDestRowChunk(2, 3, int(rowSz)*3)

	base, usage, ok := c.TryReserve(2, rowSz*2)
	require.True(t, ok)
	assert.Equal(t, uint32(0), base)
	assert.Equal(t, uint32(0), usage)

	//over the row cap
	_, _, ok = c.TryReserve(2, rowSz)
	assert.False(t, ok)
	//over the byte cap
	_, _, ok = c.TryReserve(1, rowSz*2)
	assert.False(t, ok)

	base, usage, ok = c.TryReserve(1, rowSz)
	require.True(t, ok)
	assert.Equal(t, uint32(2), base)
	assert.Equal(t, rowSz*2, usage)
	assert.Equal(t, 3, c.DestCard())
	assert.Equal(t, int(rowSz)*3, c.DestUsage())
}

func TestDestRowWriteAndRead(t *testing.T) {
	rowSz := uint32(TupleSize(2))
	c := NewDestRowChunk(2, 8, int(rowSz)*8)
	base, usage, ok := c.TryReserve(2, rowSz*2)
	require.True(t, ok)

	//tuples grow back from the arena end: destOffset is usage so far plus
	//this tuple's size
	c.WriteRowAt(base+0, usage+rowSz, []Datum{7, 0}, []bool{false, true})
	c.WriteRowAt(base+1, usage+rowSz*2, []Datum{8, 9}, []bool{false, false})

	v, isnull := c.RefDatum(c.DestRowRef(0), 0)
	require.False(t, isnull)
	assert.Equal(t, Datum(7), v)
	_, isnull = c.RefDatum(c.DestRowRef(0), 1)
	assert.True(t, isnull)
	v, _ = c.RefDatum(c.DestRowRef(1), 1)
	assert.Equal(t, Datum(9), v)
}

func TestDestReserveConcurrent(t *testing.T) {
	const workers = 8
	const perWorker = 50
	rowSz := uint32(TupleSize(1))
	c := NewDestRowChunk(1, workers*perWorker, int(rowSz)*workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				base, usage, ok := c.TryReserve(1, rowSz)
				if !assert.True(t, ok) {
					return
				}
				c.WriteRowAt(base, usage+rowSz,
					[]Datum{Datum(w*perWorker + i)}, []bool{false})
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, workers*perWorker, c.DestCard())
	//every written value must be readable exactly once
	seen := make(map[Datum]bool)
	for i := 0; i < c.DestCard(); i++ {
		v, isnull := c.RefDatum(c.DestRowRef(uint32(i)), 0)
		require.False(t, isnull)
		require.False(t, seen[v], "value %d written twice", v)
		seen[v] = true
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestSlotWriteWithExtraRebase(t *testing.T) {
	c := NewDestSlotChunk(2, 4, 64)
	base, usage, ok := c.TryReserve(1, 8)
	require.True(t, ok)

	extra := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	//column 1 holds an offset into the extra payload
	values := []Datum{42, 0}
	c.WriteSlotAt(base, usage+8, values,
		[]bool{false, false}, []bool{false, true}, extra)

	v, isnull := c.SlotDatum(0, 0)
	require.False(t, isnull)
	assert.Equal(t, Datum(42), v)

	off, isnull := c.SlotDatum(0, 1)
	require.False(t, isnull)
	assert.Equal(t, extra, c.SlotExtraBytes(off, len(extra)))
}

func TestSlotWriteWithoutExtra(t *testing.T) {
	c := NewDestSlotChunk(2, 4, 64)
	base, usage, ok := c.TryReserve(1, 0)
	require.True(t, ok)
	c.WriteSlotAt(base, usage, []Datum{11, 0},
		[]bool{false, true}, []bool{false, false}, nil)

	v, isnull := c.SlotDatum(0, 0)
	require.False(t, isnull)
	assert.Equal(t, Datum(11), v)
	_, isnull = c.SlotDatum(0, 1)
	assert.True(t, isnull)
}

func TestEncodeTupleLayout(t *testing.T) {
	buf := EncodeTuple([]Datum{3, 4, 5}, []bool{false, true, false})
	require.Len(t, buf, TupleSize(3))
	//the isnull byte array starts right after the column count
	assert.Equal(t, byte(0), buf[2])
	assert.Equal(t, byte(1), buf[3])
	assert.Equal(t, byte(0), buf[4])
}
