package engine

import (
	"sync/atomic"

	"github.com/daviszhen/pjoin/pkg/util"
)

const pstackAlign = 64

// JoinControl is the per-launch descriptor shared by host and engine. The
// pseudo-stack lives in one flat byte arena, one triangular region per
// block; the suspend area holds one context per block. Statistics are
// written back with atomics and read by the host after the launch.
type JoinControl struct {
	_numRels      int
	_numBlocks    int
	_lanes        int
	_pstackNrooms int

	_resumeContext bool

	_srcReadPos atomic.Uint32

	//out: statistics
	_sourceNitems atomic.Uint64
	_outerNitems  atomic.Uint64
	_statNitems   []atomic.Uint64

	_err atomic.Pointer[EvalError]

	_arena            []byte
	_pstackOffset     int
	_pstackBlockBytes int

	_suspend []suspendBlock
}

func NewJoinControl(numBlocks, lanes, pstackNrooms, numRels int) *JoinControl {
	util.AssertFunc(numBlocks >= 1)
	util.AssertFunc(lanes >= 2)
	util.AssertFunc(numRels >= 1)
	//every stage pushes up to one full lane window at a time
	util.AssertFunc(pstackNrooms >= lanes)

	ctl := &JoinControl{
		_numRels:      numRels,
		_numBlocks:    numBlocks,
		_lanes:        lanes,
		_pstackNrooms: pstackNrooms,
		_statNitems:   make([]atomic.Uint64, numRels),
	}
	//triangular pseudo-stack region: depth d holds tuples of d+1 refs
	refsPerBlock := pstackNrooms * (numRels + 1) * (numRels + 2) / 2
	ctl._pstackBlockBytes = int(util.AlignValue(uint32(4*refsPerBlock), pstackAlign))
	ctl._pstackOffset = pstackAlign
	ctl._arena = util.GAlloc.Alloc(ctl._pstackOffset + numBlocks*ctl._pstackBlockBytes)

	ctl._suspend = make([]suspendBlock, numBlocks)
	for i := range ctl._suspend {
		ctl._suspend[i].init(numRels, lanes)
	}
	return ctl
}

// pstackView returns the typed view over one block's pseudo-stack region.
func (ctl *JoinControl) pstackView(blockID int) []uint32 {
	util.AssertFunc(blockID >= 0 && blockID < ctl._numBlocks)
	begin := ctl._pstackOffset + blockID*ctl._pstackBlockBytes
	end := begin + ctl._pstackBlockBytes
	util.AssertFunc(end <= len(ctl._arena))
	return util.ToSlice[uint32](ctl._arena[begin:end], 4)
}

func (ctl *JoinControl) NumRels() int {
	return ctl._numRels
}

func (ctl *JoinControl) NumBlocks() int {
	return ctl._numBlocks
}

func (ctl *JoinControl) Lanes() int {
	return ctl._lanes
}

func (ctl *JoinControl) PstackNrooms() int {
	return ctl._pstackNrooms
}

func (ctl *JoinControl) SetResume(resume bool) {
	ctl._resumeContext = resume
}

func (ctl *JoinControl) Resume() bool {
	return ctl._resumeContext
}

// Completed reports that every block finished its traversal; a false result
// means at least one block suspended and the host must relaunch.
func (ctl *JoinControl) Completed() bool {
	for i := range ctl._suspend {
		if ctl._suspend[i].depth != DepthDone {
			return false
		}
	}
	return true
}

func (ctl *JoinControl) EvalErr() error {
	if e := ctl._err.Load(); e != nil {
		return e
	}
	return nil
}

func (ctl *JoinControl) setEvalErr(e *EvalError) {
	ctl._err.CompareAndSwap(nil, e)
}

// SourceNitems is the number of source rows scanned so far.
func (ctl *JoinControl) SourceNitems() uint64 {
	return ctl._sourceNitems.Load()
}

// OuterNitems is the number of source rows surviving the visibility filter.
func (ctl *JoinControl) OuterNitems() uint64 {
	return ctl._outerNitems.Load()
}

// StatNitems is the number of combinations emitted at the given join depth
// (1-based).
func (ctl *JoinControl) StatNitems(depth int) uint64 {
	util.AssertFunc(depth >= 1 && depth <= ctl._numRels)
	return ctl._statNitems[depth-1].Load()
}
