package engine

import (
	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

// loadSource is the depth-0 stage: fetch the next source window through the
// shared atomic cursor, evaluate visibility per row, and compact the
// survivors into the depth-0 pseudo-stack.
func (bw *blockWorker) loadSource() int {
	lanes := bw.lanes()
	src := bw.src
	util.Fill(bw.laneRefs, lanes, chunk.NullRef)
	util.Fill(bw.laneFlags, lanes, false)

	switch src.Format() {
	case chunk.FormatRow, chunk.FormatColumn:
		bw.st.srcReadPos = bw.ctl._srcReadPos.Add(uint32(lanes)) - uint32(lanes)
		for lane := 0; lane < lanes; lane++ {
			rowIdx := bw.st.srcReadPos + uint32(lane)
			if rowIdx < uint32(src.Card()) {
				ref := src.RowRef(rowIdx)
				bw.laneRefs[lane] = ref
				bw.laneFlags[lane] = bw.spec.EvalVisibility(&bw.kcxt[lane], src, ref)
			}
		}
		util.AssertFunc(bw.st.wipCount[0] == 0)

	case chunk.FormatBlock:
		partSz := src.PartSize()
		nParts := lanes / partSz
		util.AssertFunc(nParts >= 1)
		//intra-page line cursor; advances uniformly across lanes
		loops := bw.lState[0][0]
		for lane := 0; lane < lanes; lane++ {
			bw.lState[lane][0]++
		}
		if loops == 0 {
			bw.st.srcReadPos = bw.ctl._srcReadPos.Add(uint32(nParts)) - uint32(nParts)
		}
		for lane := 0; lane < partSz*nParts && lane < lanes; lane++ {
			partID := bw.st.srcReadPos + uint32(lane/partSz)
			lineNo := uint32(lane%partSz) + loops*uint32(partSz) + 1
			if partID >= uint32(src.Card()) {
				continue
			}
			if lineNo > src.PageNumLines(partID) {
				continue
			}
			ref := src.PageLineRef(partID, lineNo)
			if ref == chunk.NullRef {
				//dead line pointer
				continue
			}
			bw.laneRefs[lane] = ref
			bw.laneFlags[lane] = bw.spec.EvalVisibility(&bw.kcxt[lane], src, ref)
		}

	default:
		panic("unsupported source chunk format")
	}

	if d := bw.errorDepth(0); d == depthAborted {
		return depthAborted
	}

	fetched := uint32(0)
	for lane := 0; lane < lanes; lane++ {
		if bw.laneRefs[lane] != chunk.NullRef {
			fetched++
		}
	}
	if src.Format() == chunk.FormatBlock {
		bw.st.wipCount[0] = fetched
	}
	bw.st.statSourceNitems += uint64(fetched)

	count := stairlikeBinaryCount(bw.laneFlags, bw.laneRanks)
	if count > 0 {
		wrBase := bw.st.writePos[0]
		for lane := 0; lane < lanes; lane++ {
			if bw.laneFlags[lane] {
				bw.pstack.write(0, wrBase+bw.laneRanks[lane], bw.laneRefs[lane:lane+1])
			}
		}
		bw.st.writePos[0] += count
		bw.st.statNitems[0] += uint64(count)

		//dive into the deeper depth before the buffer would overflow on
		//the next window
		if int(bw.st.writePos[0])+lanes > bw.nrooms() {
			return 1
		}
	} else if fetched == 0 {
		//nothing left in this window; the next visit fetches a fresh one
		util.AssertFunc(int(bw.st.writePos[0])+lanes <= bw.nrooms())
		for lane := 0; lane < lanes; lane++ {
			bw.lState[lane][0] = 0
		}
	}

	//end of the source relation?
	if bw.st.srcReadPos >= uint32(src.Card()) {
		//don't rewind the stack any more
		bw.st.scanDone = true
		if bw.st.writePos[0] == 0 {
			for d := 1; d <= bw.numRels(); d++ {
				if bw.st.readPos[d] < bw.st.writePos[d] {
					return d + 1
				}
			}
			return DepthDone
		}
		return 1
	}
	return 0
}
