package engine

import (
	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

// blockState is the block-shared execution state: one producer/consumer
// queue cursor pair per pseudo-stack depth plus the scan/statistics
// counters. It is owned by exactly one block, so no atomics here; every
// cross-block resource goes through JoinControl or MultiRelsSet.
type blockState struct {
	scanDone  bool
	baseDepth int

	srcReadPos uint32

	wipCount []uint32
	readPos  []uint32
	writePos []uint32

	statSourceNitems uint64
	statNitems       []uint64
}

// blockWorker executes the depth state machine for one block. The lanes of
// the block advance in lockstep phases; every lane-visible decision (next
// depth, window advance) is taken once per phase over the whole lane vector,
// which is what keeps the shared counters coherent.
type blockWorker struct {
	ctl     *JoinControl
	rels    *MultiRelsSet
	src     *chunk.Chunk //nil on the right-outer pass
	dst     *chunk.Chunk
	spec    JoinSpec
	blockID int
	device  int

	st     blockState
	pstack pseudoStack

	//block-replicated checksum table
	crc util.CRCTable

	//per-lane private state
	lState  [][]uint32
	matched [][]bool
	kcxt    []EvalContext

	//per-lane scratch, reused by every stage
	laneRefs  []uint32
	laneXIdx  []uint32
	laneFlags []bool
	laneRanks []uint32
	laneSizes []uint32
	laneOffs  []uint32

	matchedSync []bool

	//projection buffers
	projOut []ProjOutput
}

func newBlockWorker(ctl *JoinControl, rels *MultiRelsSet, src, dst *chunk.Chunk,
	spec JoinSpec, blockID, device int) *blockWorker {
	lanes := ctl._lanes
	numRels := ctl._numRels
	bw := &blockWorker{
		ctl:     ctl,
		rels:    rels,
		src:     src,
		dst:     dst,
		spec:    spec,
		blockID: blockID,
		device:  device,
		crc:     *rels.CRCTable(),
	}
	bw.st.wipCount = make([]uint32, numRels+1)
	bw.st.readPos = make([]uint32, numRels+1)
	bw.st.writePos = make([]uint32, numRels+1)
	bw.st.statNitems = make([]uint64, numRels+1)
	bw.pstack = newPseudoStack(ctl.pstackView(blockID), ctl._pstackNrooms, numRels)
	bw.lState = make([][]uint32, lanes)
	bw.matched = make([][]bool, lanes)
	bw.kcxt = make([]EvalContext, lanes)
	for lane := 0; lane < lanes; lane++ {
		bw.lState[lane] = make([]uint32, numRels+1)
		bw.matched[lane] = make([]bool, numRels+1)
		bw.kcxt[lane].CRC = &bw.crc
	}
	bw.laneRefs = make([]uint32, lanes)
	bw.laneXIdx = make([]uint32, lanes)
	bw.laneFlags = make([]bool, lanes)
	bw.laneRanks = make([]uint32, lanes)
	bw.laneSizes = make([]uint32, lanes)
	bw.laneOffs = make([]uint32, lanes)
	bw.matchedSync = make([]bool, lanes)
	bw.projOut = make([]ProjOutput, lanes)
	return bw
}

// stairlikeBinaryCount ranks every lane whose flag is set with its exclusive
// position among set lanes and returns the total. This is the compaction
// primitive shared by every stage: survivors land at base+rank.
func stairlikeBinaryCount(flags []bool, ranks []uint32) uint32 {
	count := uint32(0)
	for lane, f := range flags {
		ranks[lane] = count
		if f {
			count++
		}
	}
	return count
}

// stairlikeSum computes the exclusive prefix sum of per-lane sizes and
// returns the total.
func stairlikeSum(sizes []uint32, offsets []uint32) uint32 {
	total := uint32(0)
	for lane, sz := range sizes {
		offsets[lane] = total
		total += sz
	}
	return total
}

// errorDepth performs the block-wide reduction over per-lane error codes.
// On the first error the whole block aborts without advancing any cursor.
func (bw *blockWorker) errorDepth(depth int) int {
	for lane := range bw.kcxt {
		if err := bw.kcxt[lane].Errcode; err != nil {
			bw.ctl.setEvalErr(&EvalError{Depth: depth, Lane: lane, Cause: err})
			return depthAborted
		}
	}
	return depth
}

func (bw *blockWorker) lanes() int {
	return bw.ctl._lanes
}

func (bw *blockWorker) numRels() int {
	return bw.ctl._numRels
}

func (bw *blockWorker) nrooms() int {
	return bw.ctl._pstackNrooms
}
