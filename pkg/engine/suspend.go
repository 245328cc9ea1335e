package engine

// laneSuspend is one lane's private traversal state: the per-depth loop
// cursor and the per-depth "matched an inner row" flag.
type laneSuspend struct {
	lState  []uint32
	matched []bool
}

// suspendBlock is one block's saved execution context. It is written only
// when the destination buffer runs out, consumed exactly once on the next
// resumed launch, and stamped with DepthDone afterwards so a stray resume
// can never replay stale state.
type suspendBlock struct {
	depth     int
	baseDepth int
	scanDone  bool

	srcReadPos uint32
	wipCount   []uint32
	readPos    []uint32
	writePos   []uint32

	statSourceNitems uint64
	statNitems       []uint64

	threads []laneSuspend
}

func (sb *suspendBlock) init(numRels, lanes int) {
	sb.depth = DepthDone
	sb.wipCount = make([]uint32, numRels+1)
	sb.readPos = make([]uint32, numRels+1)
	sb.writePos = make([]uint32, numRels+1)
	sb.statNitems = make([]uint64, numRels+1)
	sb.threads = make([]laneSuspend, lanes)
	for i := range sb.threads {
		sb.threads[i].lState = make([]uint32, numRels+1)
		sb.threads[i].matched = make([]bool, numRels+1)
	}
}

// suspendContext saves the block-shared counters and every lane's private
// cursors as one unit.
func (bw *blockWorker) suspendContext(depth int) {
	sb := &bw.ctl._suspend[bw.blockID]
	sb.depth = depth
	sb.baseDepth = bw.st.baseDepth
	sb.scanDone = bw.st.scanDone
	sb.srcReadPos = bw.st.srcReadPos
	copy(sb.wipCount, bw.st.wipCount)
	copy(sb.readPos, bw.st.readPos)
	copy(sb.writePos, bw.st.writePos)
	sb.statSourceNitems = bw.st.statSourceNitems
	copy(sb.statNitems, bw.st.statNitems)
	for lane := range sb.threads {
		copy(sb.threads[lane].lState, bw.lState[lane])
		copy(sb.threads[lane].matched, bw.matched[lane])
	}
}

// resumeContext restores the saved context and invalidates it, returning the
// depth to re-enter the state machine at.
func (bw *blockWorker) resumeContext() int {
	sb := &bw.ctl._suspend[bw.blockID]
	depth := sb.depth
	if depth == DepthDone {
		//this block had already finished; nothing to replay
		return DepthDone
	}
	bw.st.baseDepth = sb.baseDepth
	bw.st.scanDone = sb.scanDone
	bw.st.srcReadPos = sb.srcReadPos
	copy(bw.st.wipCount, sb.wipCount)
	copy(bw.st.readPos, sb.readPos)
	copy(bw.st.writePos, sb.writePos)
	bw.st.statSourceNitems = sb.statSourceNitems
	copy(bw.st.statNitems, sb.statNitems)
	for lane := range sb.threads {
		copy(bw.lState[lane], sb.threads[lane].lState)
		copy(bw.matched[lane], sb.threads[lane].matched)
	}
	//one-shot: a double resume must not replay this context
	sb.depth = DepthDone
	return depth
}
