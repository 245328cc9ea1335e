package engine

import (
	"github.com/daviszhen/pjoin/pkg/util"
)

// pseudoStack is the per-block scratch arena of partial join combinations.
// Depth d stores tuples of d+1 row references in a bounded FIFO of nrooms
// slots; the per-depth sub-arenas are packed triangularly.
type pseudoStack struct {
	_arena   []uint32
	_nrooms  int
	_numRels int
}

func newPseudoStack(arena []uint32, nrooms, numRels int) pseudoStack {
	util.AssertFunc(len(arena) >= nrooms*(numRels+1)*(numRels+2)/2)
	return pseudoStack{_arena: arena, _nrooms: nrooms, _numRels: numRels}
}

func (ps *pseudoStack) depthBase(depth int) int {
	util.AssertFunc(depth >= 0 && depth <= ps._numRels)
	return ps._nrooms * depth * (depth + 1) / 2
}

// read returns the combination at the given slot of a depth: d+1 refs.
func (ps *pseudoStack) read(depth int, idx uint32) []uint32 {
	util.AssertFunc(int(idx) < ps._nrooms)
	width := depth + 1
	begin := ps.depthBase(depth) + int(idx)*width
	util.AssertFunc(begin+width <= len(ps._arena))
	return ps._arena[begin : begin+width]
}

// write stores a combination. len(refs) must be depth+1.
func (ps *pseudoStack) write(depth int, idx uint32, refs []uint32) {
	util.AssertFunc(len(refs) == depth+1)
	copy(ps.read(depth, idx), refs)
}

// writeExtended stores an outer combination extended by one inner ref.
func (ps *pseudoStack) writeExtended(depth int, idx uint32, xRefs []uint32, innerRef uint32) {
	util.AssertFunc(len(xRefs) == depth)
	dst := ps.read(depth, idx)
	copy(dst[:depth], xRefs)
	dst[depth] = innerRef
}
