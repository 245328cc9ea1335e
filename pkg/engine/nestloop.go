package engine

import (
	"github.com/daviszhen/pjoin/pkg/chunk"
	"github.com/daviszhen/pjoin/pkg/util"
)

// execNestLoop joins the pending outer combinations of depth-1 against the
// inner relation configured for this depth with a nested-loop scan. The lane
// vector is split into an x axis (outer combinations, xUnit wide) and a y
// axis (inner stride); lState[depth] is the shared loop counter over the
// inner relation.
func (bw *blockWorker) execNestLoop(depth int) int {
	rel := bw.rels.Rel(depth)
	kdsIn := rel.Chunk
	lanes := bw.lanes()
	util.AssertFunc(depth >= 1 && depth <= bw.numRels())

	if bw.st.readPos[depth-1] >= bw.st.writePos[depth-1] {
		//no outer combinations pending. If this depth still has room for a
		//full window, a shallower depth may be able to produce more outer
		//tuples; otherwise flush deeper first.
		util.AssertFunc(bw.st.wipCount[depth] == 0)
		if int(bw.st.writePos[depth])+lanes <= bw.nrooms() {
			if d := bw.rewindStack(depth - 1); d >= bw.st.baseDepth {
				return d
			}
		}
		return depth + 1
	}

	xUnit := min(int(bw.st.writePos[depth-1]-bw.st.readPos[depth-1]), lanes)
	yUnit := lanes / xUnit

	util.Fill(bw.laneFlags, lanes, false)
	util.Fill(bw.laneRefs, lanes, chunk.NullRef)

	if uint32(yUnit)*bw.lState[0][depth] >= uint32(kdsIn.Card()) {
		//the whole inner relation was scanned for this outer window
		if rel.LeftOuter {
			util.Fill(bw.matchedSync, xUnit, false)
			for lane := 0; lane < lanes; lane++ {
				if bw.matched[lane][depth] {
					bw.matchedSync[lane%xUnit] = true
				}
			}
			anyUnmatched := false
			for x := 0; x < xUnit; x++ {
				if !bw.matchedSync[x] {
					anyUnmatched = true
					break
				}
			}
			if anyUnmatched {
				//emit exactly one null-extended combination per unmatched
				//outer row: the y==0 lane of that x column
				for lane := 0; lane < lanes; lane++ {
					x := lane % xUnit
					y := lane / xUnit
					bw.laneFlags[lane] = y == 0 && !bw.matchedSync[x]
					bw.laneXIdx[lane] = bw.st.readPos[depth-1] + uint32(x)
					//don't generate the LEFT OUTER tuple again
					bw.matched[lane][depth] = true
				}
				return bw.compactJoinResults(depth, lanes)
			}
		}
		//advance the outer window
		for lane := 0; lane < lanes; lane++ {
			bw.lState[lane][depth] = 0
			bw.matched[lane][depth] = false
		}
		bw.st.wipCount[depth] = 0
		bw.st.readPos[depth-1] += uint32(xUnit)
		return depth
	}

	for lane := 0; lane < lanes; lane++ {
		x := lane % xUnit
		y := lane / xUnit
		xIdx := bw.st.readPos[depth-1] + uint32(x)
		util.AssertFunc(xIdx < bw.st.writePos[depth-1])
		bw.laneXIdx[lane] = xIdx
		if y < yUnit {
			yIdx := uint32(y) + uint32(yUnit)*bw.lState[lane][depth]
			if yIdx < uint32(kdsIn.Card()) {
				iRef := kdsIn.RowRef(yIdx)
				xRefs := bw.pstack.read(depth-1, xIdx)
				if bw.spec.EvalJoinQuals(&bw.kcxt[lane], bw.src, bw.rels, depth, xRefs, iRef) {
					bw.laneFlags[lane] = true
					bw.laneRefs[lane] = iRef
					bw.matched[lane][depth] = true
					if rel.RightOuter {
						bw.rels.SetMatched(bw.device, depth, yIdx)
					}
				}
			}
		}
		bw.lState[lane][depth]++
	}
	if d := bw.errorDepth(depth); d == depthAborted {
		return depthAborted
	}
	return bw.compactJoinResults(depth, lanes)
}

// compactJoinResults packs the matched (or synthetic) combinations of a join
// stage into the depth's pseudo-stack slots via prefix-sum ranking.
// laneFlags/laneRefs/laneXIdx describe each lane's result.
func (bw *blockWorker) compactJoinResults(depth int, wip int) int {
	lanes := bw.lanes()
	count := stairlikeBinaryCount(bw.laneFlags, bw.laneRanks)
	wrBase := bw.st.writePos[depth]
	bw.st.wipCount[depth] = uint32(wip)
	bw.st.writePos[depth] += count
	bw.st.statNitems[depth] += uint64(count)
	for lane := 0; lane < lanes; lane++ {
		if !bw.laneFlags[lane] {
			continue
		}
		xRefs := bw.pstack.read(depth-1, bw.laneXIdx[lane])
		bw.pstack.writeExtended(depth, wrBase+bw.laneRanks[lane], xRefs, bw.laneRefs[lane])
	}
	//run this depth again while a full window still fits; otherwise dive
	//deeper to flush the results
	if int(bw.st.writePos[depth])+lanes <= bw.nrooms() {
		return depth
	}
	return depth + 1
}
