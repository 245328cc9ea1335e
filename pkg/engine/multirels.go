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

package engine

import (
	"sync/atomic"

	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

type Strategy uint8

const (
	StrategyNestLoop Strategy = iota
	StrategyHash
)

// RelChunk is one inner relation: its chunk, the join strategy for its
// depth, and the outer-join direction flags.
type RelChunk struct {
	Chunk      *chunk.Chunk
	Strategy   Strategy
	LeftOuter  bool
	RightOuter bool

	//bit offset of this relation's rows inside one outer-join map replica,
	//-1 when the relation needs no map
	ojmapOffset int
}

// MultiRelsSet is the ordered set of inner relations plus the shared
// outer-join map. The map has one replica per device; a bit means "this
// inner row matched at least once" and only ever flips false -> true during
// a pass.
type MultiRelsSet struct {
	_rels       []RelChunk
	_numDevices int
	_ojmapBits  int
	_ojmapWords int
	_ojmap      []atomic.Uint32
	_crc        *util.CRCTable
}

func NewMultiRelsSet(numDevices int, rels ...RelChunk) *MultiRelsSet {
	util.AssertFunc(numDevices >= 1)
	util.AssertFunc(len(rels) >= 1)
	mr := &MultiRelsSet{
		_rels:       rels,
		_numDevices: numDevices,
		_crc:        util.NewCRCTable(),
	}
	bits := 0
	for i := range mr._rels {
		rel := &mr._rels[i]
		if rel.Strategy == StrategyNestLoop {
			util.AssertFunc(rel.Chunk.Format() == chunk.FormatRow)
		} else {
			util.AssertFunc(rel.Chunk.Format() == chunk.FormatHash)
		}
		if rel.RightOuter {
			rel.ojmapOffset = bits
			bits += rel.Chunk.Card()
		} else {
			rel.ojmapOffset = -1
		}
	}
	mr._ojmapBits = bits
	mr._ojmapWords = (bits + 31) / 32
	mr._ojmap = make([]atomic.Uint32, numDevices*mr._ojmapWords)
	return mr
}

func (mr *MultiRelsSet) NumRels() int {
	return len(mr._rels)
}

func (mr *MultiRelsSet) NumDevices() int {
	return mr._numDevices
}

func (mr *MultiRelsSet) CRCTable() *util.CRCTable {
	return mr._crc
}

// Rel returns the relation joined at the given depth (1-based).
func (mr *MultiRelsSet) Rel(depth int) *RelChunk {
	util.AssertFunc(depth >= 1 && depth <= len(mr._rels))
	return &mr._rels[depth-1]
}

func (mr *MultiRelsSet) InnerChunk(depth int) *chunk.Chunk {
	return mr.Rel(depth).Chunk
}

func (mr *MultiRelsSet) HasOuterJoinMap(depth int) bool {
	return mr.Rel(depth).ojmapOffset >= 0
}

func (mr *MultiRelsSet) mapSlot(device int, depth int, rowID uint32) (int, uint32) {
	util.AssertFunc(device >= 0 && device < mr._numDevices)
	rel := mr.Rel(depth)
	util.AssertFunc(rel.ojmapOffset >= 0)
	util.AssertFunc(int(rowID) < rel.Chunk.Card())
	bit := rel.ojmapOffset + int(rowID)
	return device*mr._ojmapWords + bit/32, uint32(1) << (bit % 32)
}

// SetMatched marks an inner row as matched on one device replica.
// Idempotent; the bit is never cleared during a pass.
func (mr *MultiRelsSet) SetMatched(device int, depth int, rowID uint32) {
	word, mask := mr.mapSlot(device, depth, rowID)
	if mr._ojmap[word].Load()&mask == 0 {
		mr._ojmap[word].Or(mask)
	}
}

func (mr *MultiRelsSet) IsMatched(device int, depth int, rowID uint32) bool {
	word, mask := mr.mapSlot(device, depth, rowID)
	return mr._ojmap[word].Load()&mask != 0
}

// ColocateOuterJoinMap ORs every device replica into the destination
// device's replica. Run once after all blocks of the main pass finish on
// every device; idempotent and position-wise independent.
func (mr *MultiRelsSet) ColocateOuterJoinMap(destDevice int) {
	util.AssertFunc(destDevice >= 0 && destDevice < mr._numDevices)
	for i := 0; i < mr._ojmapWords; i++ {
		var word uint32
		for dev := 0; dev < mr._numDevices; dev++ {
			word |= mr._ojmap[dev*mr._ojmapWords+i].Load()
		}
		mr._ojmap[destDevice*mr._ojmapWords+i].Store(word)
	}
}
