package engine

import (
	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

// loadOuter is the base stage of a right-outer pass: it scans the inner
// relation of outerDepth through the shared cursor and emits the rows the
// colocated outer-join map never saw a match for. The synthetic combination
// carries NullRef for every shallower position, so deeper stages and the
// projection treat the missing outer side as NULL.
func (bw *blockWorker) loadOuter(outerDepth int) int {
	rel := bw.rels.Rel(outerDepth)
	kdsIn := rel.Chunk
	lanes := bw.lanes()
	util.AssertFunc(rel.RightOuter)

	bw.st.srcReadPos = bw.ctl._srcReadPos.Add(uint32(lanes)) - uint32(lanes)
	util.Fill(bw.laneFlags, lanes, false)
	util.Fill(bw.laneRefs, lanes, chunk.NullRef)

	//pick up inner rows, if unreferenced
	for lane := 0; lane < lanes; lane++ {
		rowIdx := bw.st.srcReadPos + uint32(lane)
		if rowIdx < uint32(kdsIn.Card()) &&
			!bw.rels.IsMatched(bw.device, outerDepth, rowIdx) {
			bw.laneFlags[lane] = true
			bw.laneRefs[lane] = kdsIn.RowRef(rowIdx)
		}
	}

	count := stairlikeBinaryCount(bw.laneFlags, bw.laneRanks)
	if count > 0 {
		wrBase := bw.st.writePos[outerDepth]
		bw.st.writePos[outerDepth] += count
		bw.st.statNitems[outerDepth] += uint64(count)
		for lane := 0; lane < lanes; lane++ {
			if !bw.laneFlags[lane] {
				continue
			}
			dst := bw.pstack.read(outerDepth, wrBase+bw.laneRanks[lane])
			util.Fill(dst, outerDepth, chunk.NullRef)
			dst[outerDepth] = bw.laneRefs[lane]
		}
		//dive into the deeper depth before the next window would overflow
		if int(bw.st.writePos[outerDepth])+lanes > bw.nrooms() {
			return outerDepth + 1
		}
	}

	//end of the inner relation?
	if bw.st.srcReadPos >= uint32(kdsIn.Card()) {
		//don't rewind the stack any more
		bw.st.scanDone = true
		if bw.st.writePos[outerDepth] == 0 {
			for d := outerDepth + 1; d <= bw.numRels(); d++ {
				if bw.st.readPos[d] < bw.st.writePos[d] {
					return d + 1
				}
			}
			return DepthDone
		}
		return outerDepth + 1
	}
	return outerDepth
}
